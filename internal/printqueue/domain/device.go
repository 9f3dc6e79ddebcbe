package domain

import "time"

// DeviceLivenessWindow is how recent a heartbeat must be for the device to
// count as alive.
const DeviceLivenessWindow = 2 * time.Minute

// Device is the latest heartbeat of a running printing agent.
type Device struct {
	DeviceID     string    `json:"device_id"`
	OwnerID      string    `json:"owner_id"`
	Hostname     string    `json:"hostname"`
	AgentKind    string    `json:"agent_kind"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Alive reports whether the heartbeat is within window of now.
func (d Device) Alive(now time.Time, window time.Duration) bool {
	return now.Sub(d.LastActiveAt) <= window
}

// CountAlive returns the number of distinct devices alive at now.
func CountAlive(devices []Device, now time.Time, window time.Duration) int {
	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		if d.Alive(now, window) {
			seen[d.DeviceID] = struct{}{}
		}
	}
	return len(seen)
}

// MultipleDevicesDetected reports whether more than one agent of the same
// owner could be printing the queue.
func MultipleDevicesDetected(devices []Device, now time.Time, window time.Duration) bool {
	return CountAlive(devices, now, window) >= 2
}
