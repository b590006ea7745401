package telemetry

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the counters for the HTTP surface and the notification pipeline.
type Metrics struct {
	HTTPRequestsTotal metric.Int64Counter
	HTTPDurationMs    metric.Float64Histogram

	EventsPublishedTotal   metric.Int64Counter
	MessagesProcessedTotal metric.Int64Counter
	EmailsSentTotal        metric.Int64Counter
}

// InitMetrics creates the metrics on the global meter provider.
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("github.com/WailSalutem-Health-Care/user-service")

	httpRequestsTotal, err := meter.Int64Counter(
		"http_server_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	httpDurationMs, err := meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	eventsPublished, err := meter.Int64Counter(
		"user_events_published_total",
		metric.WithDescription("User events handed to the broker, by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	messagesProcessed, err := meter.Int64Counter(
		"notification_messages_processed_total",
		metric.WithDescription("Messages consumed from the notification queue, by settlement"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	emailsSent, err := meter.Int64Counter(
		"notification_emails_total",
		metric.WithDescription("Notification emails attempted, by delivery result"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, err
	}

	log.Println("✓ Custom metrics initialized")

	return &Metrics{
		HTTPRequestsTotal:      httpRequestsTotal,
		HTTPDurationMs:         httpDurationMs,
		EventsPublishedTotal:   eventsPublished,
		MessagesProcessedTotal: messagesProcessed,
		EmailsSentTotal:        emailsSent,
	}, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http_method", method),
		attribute.String("http_route", route),
		attribute.Int("http_status_code", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPDurationMs.Record(ctx, durationMs, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordEventPublished(ctx context.Context, eventType string, published bool) {
	m.EventsPublishedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Bool("published", published),
	))
}

func (m *Metrics) RecordMessageProcessed(ctx context.Context, eventType string, outcome string) {
	m.MessagesProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordEmailSent(ctx context.Context, eventType string, delivered bool) {
	m.EmailsSentTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Bool("delivered", delivered),
	))
}
