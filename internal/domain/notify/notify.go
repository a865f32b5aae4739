// Package notify holds the event model shared by the connection layer and
// the dispatcher. Payload delivery rides PostgreSQL's NOTIFY mechanism,
// which is at-most-once: nothing here pretends otherwise.
package notify

import (
	"context"
	"fmt"
	"time"
)

// ListenPolicy selects the buffering discipline for a channel.
type ListenPolicy string

const (
	// ListenAll delivers every notification in arrival order, none dropped.
	ListenAll ListenPolicy = "ALL"
	// ListenLast keeps only the freshest pending notification; an arriving
	// one may overwrite an undelivered one.
	ListenLast ListenPolicy = "LAST"
)

// ParsePolicy maps a config string onto a ListenPolicy.
func ParsePolicy(s string) (ListenPolicy, error) {
	switch p := ListenPolicy(s); p {
	case ListenAll, ListenLast:
		return p, nil
	default:
		return "", fmt.Errorf("unknown listen policy: %q", s)
	}
}

// NoTimeout disables timeout events for a run: delivery loops wait
// indefinitely and Timeout is never produced.
const NoTimeout time.Duration = 0

// Notification is a single event pushed by the database server.
type Notification struct {
	Channel    string
	Payload    string
	ReceivedAt time.Time
}

// Timeout reports that nothing arrived on Channel within the configured
// window. It is synthesized by the dispatcher, never by a connector.
type Timeout struct {
	Channel string
}

// Event is either a Notification or a Timeout.
type Event interface {
	event()
}

func (Notification) event() {}
func (Timeout) event()      {}

// Handler consumes events for one channel. A returned error is logged by
// the delivery loop and never stops it.
type Handler func(ctx context.Context, ev Event) error

// Registration binds a channel to its handler and buffering policy. The
// set of registrations is fixed for the lifetime of a run.
type Registration struct {
	Channel string
	Handler Handler
	Policy  ListenPolicy
}

// Connector produces a continuous stream of notifications for a fixed
// channel set, surviving connection loss internally. The stream closes
// only when ctx is cancelled; a non-nil error from Listen means the
// subscription itself was rejected and is not retried.
type Connector interface {
	Listen(ctx context.Context, channels ...string) (<-chan Notification, error)
	Close() error
}
