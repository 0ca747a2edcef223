// Package events publishes engagement mutation events to NATS JetStream.
// Consumers (statistics, karma, notifications) subscribe to engagement.events.>.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Stream and subject names for every engagement event type.
const (
	StreamName = "ENGAGEMENT"
	SubjectAll = "engagement.events.>"

	SubjectVoteToggled    = "engagement.events.vote.toggled"
	SubjectCommentCreated = "engagement.events.comment.created"
	SubjectCommentDeleted = "engagement.events.comment.deleted"
)

// Event is the canonical envelope sent to all engagement.events.* subjects.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher publishes events to NATS JetStream.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
	now func() time.Time
}

// New creates a Publisher using an existing JetStream context.
// Pass js=nil to get a no-op stub (useful in tests and without NATS).
func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log, now: time.Now}
}

// Encode builds the wire form of an event.
func (p *Publisher) Encode(eventName, userID string, props map[string]any) ([]byte, error) {
	now := time.Now
	if p != nil && p.now != nil {
		now = p.now
	}
	return json.Marshal(Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: now().UTC(),
		Properties: props,
	})
}

// Publish sends an event asynchronously (fire-and-forget).
// Failures are logged as warnings and never surface to the caller.
// The publisher is safe to call with a nil receiver.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := p.Encode(eventName, userID, props)
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
