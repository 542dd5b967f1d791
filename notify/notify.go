package notify

import (
	"context"
	"errors"
	"time"
)

// ErrClosed indicates the notifier has been closed.
var ErrClosed = errors.New("notifier is closed")

// Reasons attached to events.
const (
	ReasonStarted          = "started"
	ReasonStopped          = "stopped"
	ReasonRadioUnavailable = "radio_unavailable"
	ReasonRestored         = "restored"
)

// Event reports the broadcast status of a beacon.
type Event struct {
	// Broadcasting is true while the beacon advertises.
	Broadcasting bool `json:"broadcast_status"`

	// Reason is one of the Reason constants.
	Reason string `json:"reason,omitempty"`

	// UUID is the proximity UUID concerned, when known.
	UUID string `json:"uuid,omitempty"`

	// At is when the change happened.
	At time.Time `json:"at"`
}

// Notifier publishes and subscribes to broadcast status events.
type Notifier interface {
	// Publish delivers ev to current subscribers.
	Publish(ctx context.Context, ev Event) error

	// Subscribe returns a channel receiving events published after the call
	// returns. The channel is closed when ctx is done or the notifier closes.
	Subscribe(ctx context.Context) (<-chan Event, error)

	// Close stops delivery and closes all subscription channels.
	Close() error
}
