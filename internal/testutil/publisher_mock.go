package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
)

// PublishedEvent represents an event handed to the publisher
type PublishedEvent struct {
	EventType  messaging.EventType
	RoutingKey string
	User       messaging.UserData
	Timestamp  time.Time
}

// MockPublisher is an in-memory messaging.EventPublisher. It records every
// call and never touches RabbitMQ. Set Unavailable to simulate a broker that
// is down.
type MockPublisher struct {
	mu          sync.RWMutex
	events      []PublishedEvent
	Unavailable bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		events: make([]PublishedEvent, 0),
	}
}

// Publish records the event and reports success unless Unavailable is set.
// Calls are recorded either way.
func (m *MockPublisher) Publish(_ context.Context, eventType messaging.EventType, user messaging.UserData) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, PublishedEvent{
		EventType:  eventType,
		RoutingKey: messaging.RoutingKey(string(eventType)),
		User:       user,
		Timestamp:  time.Now(),
	})
	return !m.Unavailable
}

// GetAllEvents returns a copy of every recorded event
func (m *MockPublisher) GetAllEvents() []PublishedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	eventsCopy := make([]PublishedEvent, len(m.events))
	copy(eventsCopy, m.events)
	return eventsCopy
}

// GetEventsByType returns all events of the given type
func (m *MockPublisher) GetEventsByType(eventType messaging.EventType) []PublishedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []PublishedEvent
	for _, event := range m.events {
		if event.EventType == eventType {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

func (m *MockPublisher) GetEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.events)
}

// GetLastEvent returns the most recent event, or nil if none were published
func (m *MockPublisher) GetLastEvent() *PublishedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.events) == 0 {
		return nil
	}
	last := m.events[len(m.events)-1]
	return &last
}

func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = make([]PublishedEvent, 0)
}

// AssertEventCount asserts the exact number of events of the given type
func (m *MockPublisher) AssertEventCount(t *testing.T, eventType messaging.EventType, expected int) {
	t.Helper()

	if count := len(m.GetEventsByType(eventType)); count != expected {
		t.Errorf("Expected %d %s events, got %d", expected, eventType, count)
	}
}

// AssertNoEvents asserts that nothing was published
func (m *MockPublisher) AssertNoEvents(t *testing.T) {
	t.Helper()

	if count := m.GetEventCount(); count > 0 {
		t.Errorf("Expected no events to be published, but found %d", count)
	}
}
