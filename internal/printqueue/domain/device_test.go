package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMultipleDevicesDetected(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	device := func(id string, age time.Duration) Device {
		return Device{DeviceID: id, OwnerID: "owner-a", LastActiveAt: now.Add(-age)}
	}

	tests := []struct {
		name    string
		devices []Device
		want    bool
	}{
		{name: "both within window", devices: []Device{device("a", 119*time.Second), device("b", 60*time.Second)}, want: true},
		{name: "both outside window", devices: []Device{device("a", 121*time.Second), device("b", 130*time.Second)}, want: false},
		{name: "single device", devices: []Device{device("a", 0)}, want: false},
		{name: "same device twice", devices: []Device{device("a", 1*time.Second), device("a", 2*time.Second)}, want: false},
		{name: "none", devices: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MultipleDevicesDetected(tt.devices, now, DeviceLivenessWindow))
		})
	}
}
