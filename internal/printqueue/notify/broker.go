package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

// ErrBrokerClosed is returned by operations on a closed Broker.
var ErrBrokerClosed = errors.New("broker is closed")

const subscriberBuffer = 16

// Broker fans pending events out to in-process subscribers. Publishing
// never blocks: a subscriber whose buffer is full loses the event and picks
// the request up on its next poll.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]*subscription
	nextID  uint64
	closed  bool
	dropped atomic.Uint64
	logger  *slog.Logger
}

type subscription struct {
	ch   chan domain.PendingEvent
	done chan struct{}
	once sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewBroker creates an empty broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[string]map[uint64]*subscription),
		logger: logger,
	}
}

// PublishPending delivers event to every subscriber of its owner.
func (b *Broker) PublishPending(_ context.Context, event domain.PendingEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	for id, sub := range b.subs[event.OwnerID] {
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Debug("Dropped pending event for slow subscriber",
				slog.String("owner_id", event.OwnerID),
				slog.Uint64("subscription", id),
			)
		}
	}

	return nil
}

// Subscribe runs fn for each event of ownerID on a dedicated goroutine
// until cancel is called or ctx is done.
func (b *Broker) Subscribe(ctx context.Context, ownerID string, fn Handler) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}

	b.nextID++
	id := b.nextID
	sub := &subscription{
		ch:   make(chan domain.PendingEvent, subscriberBuffer),
		done: make(chan struct{}),
	}
	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[uint64]*subscription)
	}
	b.subs[ownerID][id] = sub
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.remove(ownerID, id)
				return
			case <-sub.done:
				return
			case event := <-sub.ch:
				fn(event)
			}
		}
	}()

	return func() { b.remove(ownerID, id) }, nil
}

func (b *Broker) remove(ownerID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[ownerID][id]
	if !ok {
		return
	}
	sub.stop()
	delete(b.subs[ownerID], id)
	if len(b.subs[ownerID]) == 0 {
		delete(b.subs, ownerID)
	}
}

// Subscribers returns the number of live subscriptions for ownerID.
func (b *Broker) Subscribers(ownerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ownerID])
}

// Dropped returns how many events were discarded because of full buffers.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.stop()
		}
	}
	b.subs = nil
	return nil
}
