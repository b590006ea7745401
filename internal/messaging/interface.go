package messaging

import "context"

// EventPublisher is what the CRUD layer calls after a committed mutation.
// The result is advisory; callers never fail a request on it.
type EventPublisher interface {
	Publish(ctx context.Context, eventType EventType, user UserData) bool
}

// BrokerPublisher sends an already-built envelope to the broker.
type BrokerPublisher interface {
	Publish(ctx context.Context, eventType string, event Event) bool
}

var (
	_ EventPublisher  = (*UserEventPublisher)(nil)
	_ BrokerPublisher = (*Broker)(nil)
)
