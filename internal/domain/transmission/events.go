package transmission

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of outcome event
type EventType string

const (
	EventTransmissionLogged EventType = "TransmissionLogged"
	EventResultReconciled   EventType = "ResultReconciled"
)

// Event is published after a ledger row is written
type Event struct {
	ID        string      `json:"id"`
	EventType EventType   `json:"event_type"`
	RunID     string      `json:"run_id"`
	Type      MessageType `json:"msg_type"`
	Partner   string      `json:"msg_partner"`
	Source    string      `json:"link_source"`
	Key       string      `json:"link_key"`
	Result    string      `json:"msg_result"`
	Warnings  []string    `json:"warnings,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent creates an event describing a stored record
func NewEvent(eventType EventType, runID string, rec *Record, warnings []string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		EventType: eventType,
		RunID:     runID,
		Type:      rec.Type,
		Partner:   rec.Partner,
		Source:    rec.Source,
		Key:       rec.Key,
		Result:    rec.Result,
		Warnings:  warnings,
		Timestamp: time.Now().UTC(),
	}
}

// PartitionKey is the message key used when publishing
func (e *Event) PartitionKey() string {
	return DedupKey(e.Type, e.Source, e.Key)
}

// Payload encodes the event as JSON
func (e *Event) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers outcome events. Implementations are best effort.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
