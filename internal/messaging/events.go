package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a user lifecycle change.
type EventType string

const (
	EventUserCreated EventType = "user_created"
	EventUserUpdated EventType = "user_updated"
	EventUserDeleted EventType = "user_deleted"
)

// Broker topology. Created idempotently on every connect.
const (
	ExchangeName        = "user_events"
	ExchangeType        = "topic"
	QueueName           = "user_notifications"
	BindingKey          = "user.*"
	DeadLetterQueueName = "user_notifications.dlq"
)

// Known reports whether t is one of the event types the consumer acts on.
func (t EventType) Known() bool {
	switch t {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		return true
	}
	return false
}

// RoutingKey returns the routing key a message of this type is published with.
func RoutingKey(eventType string) string {
	return "user." + eventType
}

// UserData is the user record carried inside an event.
type UserData struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Event is the envelope published to and consumed from the broker.
type Event struct {
	EventType EventType `json:"event_type"`
	UserID    int64     `json:"user_id"`
	UserData  UserData  `json:"user_data"`
	Timestamp string    `json:"timestamp"`
}

// NewEvent builds an envelope for user with an ISO-8601 UTC timestamp.
func NewEvent(eventType EventType, user UserData, now time.Time) Event {
	return Event{
		EventType: eventType,
		UserID:    user.ID,
		UserData:  user,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

// Encode serializes the event to its JSON wire format.
func (e Event) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return body, nil
}

// DecodeEvent parses a message body into an Event. Unknown event types decode
// without error.
func DecodeEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
