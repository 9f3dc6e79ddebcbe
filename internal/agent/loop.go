package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

// Loop merges poll ticks and push notifications into one trigger channel
// drained by a single dispatcher goroutine.
type Loop struct {
	ownerID  string
	interval time.Duration
	store    QueueStore
	cycle    func(ctx context.Context) error
	logger   *slog.Logger

	triggers chan struct{}

	mu         sync.Mutex
	suspended  bool
	lastPollAt time.Time
	lastErr    error
}

// NewLoop creates a loop calling cycle for every trigger.
func NewLoop(ownerID string, interval time.Duration, store QueueStore, cycle func(context.Context) error, logger *slog.Logger) *Loop {
	return &Loop{
		ownerID:  ownerID,
		interval: interval,
		store:    store,
		cycle:    cycle,
		logger:   logger,
		// one slot: triggers arriving during a cycle coalesce into one rerun
		triggers: make(chan struct{}, 1),
	}
}

// Trigger requests a dispatch cycle without blocking.
func (l *Loop) Trigger() {
	select {
	case l.triggers <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	unsubscribe, err := l.store.Subscribe(ctx, l.ownerID, func(domain.PendingEvent) { l.Trigger() })
	if err != nil {
		l.logger.Warn("Push notifications unavailable, polling only",
			slog.String("owner_id", l.ownerID),
			slog.String("error", err.Error()),
		)
		unsubscribe = func() {}
	}
	defer unsubscribe()

	go l.tick(ctx)

	l.logger.Info("Dispatch loop started",
		slog.String("owner_id", l.ownerID),
		slog.Duration("poll_interval", l.interval),
	)

	l.Trigger()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Dispatch loop stopped", slog.String("owner_id", l.ownerID))
			return
		case <-l.triggers:
			if l.Suspended() {
				continue
			}
			l.runCycle(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Trigger()
		}
	}
}

func (l *Loop) runCycle(ctx context.Context) {
	err := l.cycle(ctx)

	l.mu.Lock()
	l.lastPollAt = time.Now().UTC()
	l.lastErr = err
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("Dispatch cycle failed, retrying next tick",
			slog.String("owner_id", l.ownerID),
			slog.String("error", err.Error()),
		)
	}
}

// Suspend stops cycles until Resume; triggers are dropped meanwhile.
func (l *Loop) Suspend() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspended = true
}

// Resume re-enables cycles and runs one right away.
func (l *Loop) Resume() {
	l.mu.Lock()
	was := l.suspended
	l.suspended = false
	l.mu.Unlock()

	if was {
		l.Trigger()
	}
}

func (l *Loop) Suspended() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suspended
}

// LastPoll returns when the last cycle ran and its error.
func (l *Loop) LastPoll() (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastPollAt, l.lastErr
}
