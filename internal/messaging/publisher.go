package messaging

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// MetricsRecorder records publish outcomes.
type MetricsRecorder interface {
	RecordEventPublished(ctx context.Context, eventType string, published bool)
}

// UserEventPublisher turns a committed user mutation into a broker event.
type UserEventPublisher struct {
	broker  BrokerPublisher
	metrics MetricsRecorder
	now     func() time.Time
}

// NewUserEventPublisher creates a publisher. broker may be nil, in which case
// every Publish logs and returns false. metrics is optional.
func NewUserEventPublisher(broker BrokerPublisher, metrics MetricsRecorder) *UserEventPublisher {
	return &UserEventPublisher{
		broker:  broker,
		metrics: metrics,
		now:     time.Now,
	}
}

// Publish stamps the envelope with the server time and forwards it.
func (p *UserEventPublisher) Publish(ctx context.Context, eventType EventType, user UserData) bool {
	published := false
	defer func() {
		if p != nil && p.metrics != nil {
			p.metrics.RecordEventPublished(ctx, string(eventType), published)
		}
	}()

	if p == nil || p.broker == nil {
		log.Warnf("Message broker not connected. Event '%s' not published.", eventType)
		return false
	}

	event := NewEvent(eventType, user, p.now())
	published = p.broker.Publish(ctx, string(eventType), event)
	return published
}
