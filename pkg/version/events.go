package version

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// EventType names a change notification
type EventType string

const (
	EventSaved      EventType = "version.saved"
	EventApproved   EventType = "version.approved"
	EventRolledBack EventType = "version.rolled_back"
	EventPruned     EventType = "version.pruned"
)

// Event is published after a successful write
type Event struct {
	Type       EventType `json:"type"`
	PageType   string    `json:"pageType"`
	Field      string    `json:"field"`
	VersionID  string    `json:"versionId,omitempty"`
	SourceID   string    `json:"sourceId,omitempty"`   // rolled-back version
	VersionIDs []string  `json:"versionIds,omitempty"` // pruned versions
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Key is the partition key; events of one scope stay ordered
func (e Event) Key() string {
	return Scope{PageType: e.PageType, Field: e.Field}.String()
}

// Publisher delivers events to interested consumers
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Recorder receives operational measurements
type Recorder interface {
	ObserveOperation(op, kind string, d time.Duration)
	VersionsPruned(n int)
	EventPublished(eventType string, err error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}
func (nopRecorder) VersionsPruned(int)                             {}
func (nopRecorder) EventPublished(string, error)                   {}

// notifier fans a finished write out to the publisher. Publication errors
// are logged and counted but never returned.
type notifier struct {
	publisher Publisher
	recorder  Recorder
	logger    zerolog.Logger
	clock     func() time.Time
}

func (n *notifier) publish(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = n.clock().UTC()
	}

	err := n.publisher.Publish(ctx, e)
	n.recorder.EventPublished(string(e.Type), err)
	if err != nil {
		n.logger.Warn().
			Err(err).
			Str("event", string(e.Type)).
			Str("scope", e.Key()).
			Msg("Event publication failed")
	}
}
