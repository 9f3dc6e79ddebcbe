// Package notify carries "new pending print request" announcements from the
// producer side to running print agents. Agents still poll; a notification
// only shortens the time until the next dispatch.
package notify

import (
	"context"

	"github.com/cuongbtq/print-relay/internal/printqueue/domain"
)

// Handler is invoked for every pending event delivered to a subscription.
// It must not block for long; agents forward the event to their trigger
// channel and return.
type Handler func(domain.PendingEvent)

// Publisher announces newly enqueued requests.
type Publisher interface {
	PublishPending(ctx context.Context, event domain.PendingEvent) error
}

// Subscriber delivers events for a single owner until cancel is called or
// ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, ownerID string, fn Handler) (cancel func(), err error)
}

// Notifier is both ends of the channel.
type Notifier interface {
	Publisher
	Subscriber
}
