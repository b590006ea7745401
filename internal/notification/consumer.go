package notification

import (
	"context"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WailSalutem-Health-Care/user-service/internal/email"
	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/user-service/notification")

// DeliverySource feeds deliveries to a handler until ctx is cancelled.
type DeliverySource interface {
	Consume(ctx context.Context, handler messaging.DeliveryHandler) error
}

// MetricsRecorder receives one call per processed message and per email attempt.
type MetricsRecorder interface {
	RecordMessageProcessed(ctx context.Context, eventType string, outcome string)
	RecordEmailSent(ctx context.Context, eventType string, delivered bool)
}

// Options tunes a Consumer. Zero values fall back to in-memory tracking,
// built-in templates and no redelivery cap.
type Options struct {
	// MaxRedeliveries is how many times a failing message is requeued before
	// it is dead-lettered. Zero or less requeues forever.
	MaxRedeliveries int
	// Templates maps event types to provider template ids.
	Templates map[string]string
	Tracker   AttemptTracker
	Renderer  Renderer
	Metrics   MetricsRecorder
}

// Consumer turns user events into notification emails.
type Consumer struct {
	source          DeliverySource
	sender          email.Sender
	renderer        Renderer
	tracker         AttemptTracker
	templates       map[string]string
	maxRedeliveries int
	metrics         MetricsRecorder

	running atomic.Bool
}

func NewConsumer(source DeliverySource, sender email.Sender, opts Options) *Consumer {
	c := &Consumer{
		source:          source,
		sender:          sender,
		renderer:        opts.Renderer,
		tracker:         opts.Tracker,
		templates:       opts.Templates,
		maxRedeliveries: opts.MaxRedeliveries,
		metrics:         opts.Metrics,
	}
	if c.renderer == nil {
		c.renderer = TemplateRenderer{}
	}
	if c.tracker == nil {
		c.tracker = NewMemoryTracker()
	}
	return c
}

// Run blocks consuming deliveries until ctx is cancelled or the source fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)

	log.Info("Notification consumer started")
	err := c.source.Consume(ctx, c.Handle)
	log.Info("Notification consumer stopped")
	return err
}

// Running reports whether Run is currently consuming.
func (c *Consumer) Running() bool {
	return c != nil && c.running.Load()
}

// Handle processes a single delivery and decides how it is settled.
// Undeliverable email is acknowledged; only processing failures are retried.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) messaging.Outcome {
	ctx = otel.GetTextMapPropagator().Extract(ctx, messaging.HeaderCarrier(d.Headers))
	ctx, span := tracer.Start(ctx, "notification.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", messaging.QueueName),
			attribute.String("messaging.rabbitmq.destination.routing_key", d.RoutingKey),
		),
	)
	defer span.End()

	event, err := messaging.DecodeEvent(d.Body)
	if err != nil {
		derr := &DecodeError{Err: err}
		log.WithField("routing_key", d.RoutingKey).Errorf("Dropping message: %v", derr)
		span.RecordError(derr)
		span.SetStatus(codes.Error, "decode failed")
		c.recordProcessed(ctx, "", messaging.Reject)
		return messaging.Reject
	}

	span.SetAttributes(
		attribute.String("event.type", string(event.EventType)),
		attribute.Int64("user.id", event.UserID),
	)
	logger := log.WithFields(log.Fields{
		"event_type": event.EventType,
		"user_id":    event.UserID,
	})
	logger.Info("Received event")

	if err := c.dispatch(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := c.failed(ctx, d)
		logger.WithField("outcome", outcome).Errorf("Error processing message: %v", err)
		c.recordProcessed(ctx, event.EventType, outcome)
		return outcome
	}

	if d.Redelivered {
		if err := c.tracker.Clear(ctx, DeliveryKey(d)); err != nil {
			logger.Warnf("Failed to clear redelivery count: %v", err)
		}
	}
	c.recordProcessed(ctx, event.EventType, messaging.Ack)
	return messaging.Ack
}

func (c *Consumer) dispatch(ctx context.Context, event messaging.Event) error {
	if !event.EventType.Known() {
		log.WithField("event_type", event.EventType).Info("Ignoring unknown event type")
		return nil
	}

	user := event.UserData
	if user.Email == "" {
		return &HandlerError{EventType: event.EventType, Err: ErrMissingRecipient}
	}

	var delivered bool
	if templateID := c.templates[string(event.EventType)]; templateID != "" {
		delivered = c.sender.SendTemplate(ctx, user.Email, templateID, map[string]interface{}{
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		})
	} else {
		msg, err := c.renderer.Render(event.EventType, user)
		if err != nil {
			return &HandlerError{EventType: event.EventType, Err: err}
		}
		delivered = c.sender.Send(ctx, user.Email, msg.Subject, msg.Text, msg.HTML)
	}

	if c.metrics != nil {
		c.metrics.RecordEmailSent(ctx, string(event.EventType), delivered)
	}
	if !delivered {
		log.WithFields(log.Fields{
			"event_type": event.EventType,
			"user_id":    user.ID,
		}).Warn("Notification email was not sent")
	}
	return nil
}

// failed settles a message whose handler returned an error. It is requeued
// until the attempt count passes the cap.
func (c *Consumer) failed(ctx context.Context, d amqp.Delivery) messaging.Outcome {
	if c.maxRedeliveries <= 0 {
		return messaging.Requeue
	}

	key := DeliveryKey(d)
	attempts, terr := c.tracker.Fail(ctx, key)
	if terr != nil {
		log.Warnf("Redelivery tracking unavailable, requeueing: %v", terr)
		return messaging.Requeue
	}
	if attempts <= c.maxRedeliveries {
		return messaging.Requeue
	}

	log.WithField("attempts", attempts).Error("Giving up on message, sending to dead-letter queue")
	if err := c.tracker.Clear(ctx, key); err != nil {
		log.Warnf("Failed to clear redelivery count: %v", err)
	}
	return messaging.Reject
}

func (c *Consumer) recordProcessed(ctx context.Context, eventType messaging.EventType, outcome messaging.Outcome) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordMessageProcessed(ctx, string(eventType), outcome.String())
}
