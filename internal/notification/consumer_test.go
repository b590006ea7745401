package notification

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/user-service/internal/testutil"
)

type mockRenderer struct {
	RenderFunc func(eventType messaging.EventType, user messaging.UserData) (Message, error)
}

func (m *mockRenderer) Render(eventType messaging.EventType, user messaging.UserData) (Message, error) {
	return m.RenderFunc(eventType, user)
}

type mockSource struct {
	ConsumeFunc func(ctx context.Context, handler messaging.DeliveryHandler) error
}

func (m *mockSource) Consume(ctx context.Context, handler messaging.DeliveryHandler) error {
	return m.ConsumeFunc(ctx, handler)
}

type recordedMetric struct {
	EventType string
	Outcome   string
}

type mockMetrics struct {
	processed []recordedMetric
	emails    map[bool]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{emails: make(map[bool]int)}
}

func (m *mockMetrics) RecordMessageProcessed(_ context.Context, eventType string, outcome string) {
	m.processed = append(m.processed, recordedMetric{EventType: eventType, Outcome: outcome})
}

func (m *mockMetrics) RecordEmailSent(_ context.Context, _ string, delivered bool) {
	m.emails[delivered]++
}

func delivery(t *testing.T, eventType messaging.EventType, user messaging.UserData) amqp.Delivery {
	t.Helper()
	body, err := messaging.NewEvent(eventType, user, fixedNow).Encode()
	if err != nil {
		t.Fatalf("Failed to encode event: %v", err)
	}
	return amqp.Delivery{
		MessageId:  "msg-1",
		RoutingKey: messaging.RoutingKey(string(eventType)),
		Body:       body,
	}
}

var ada = messaging.UserData{ID: 1, Name: "Ada", Email: "ada@example.com", Role: "admin"}

func TestHandle_UserCreatedSendsWelcome(t *testing.T) {
	sender := testutil.NewMockSender()
	metrics := newMockMetrics()
	c := NewConsumer(nil, sender, Options{Metrics: metrics})

	outcome := c.Handle(context.Background(), delivery(t, messaging.EventUserCreated, ada))

	if outcome != messaging.Ack {
		t.Errorf("Expected ack, got %v", outcome)
	}
	if len(sender.Sent()) != 1 {
		t.Fatalf("Expected exactly one email, got %d", len(sender.Sent()))
	}
	got := sender.Sent()[0]
	if got.Recipient != "ada@example.com" {
		t.Errorf("Expected recipient 'ada@example.com', got '%s'", got.Recipient)
	}
	if got.Subject != "Welcome to Our Platform" {
		t.Errorf("Expected welcome subject, got '%s'", got.Subject)
	}
	if len(metrics.processed) != 1 || metrics.processed[0].Outcome != "ack" {
		t.Errorf("Expected one ack metric, got %+v", metrics.processed)
	}
	if metrics.emails[true] != 1 {
		t.Errorf("Expected one delivered email metric, got %v", metrics.emails)
	}
}

func TestHandle_SubjectsPerEventType(t *testing.T) {
	tests := []struct {
		eventType messaging.EventType
		subject   string
	}{
		{messaging.EventUserCreated, "Welcome to Our Platform"},
		{messaging.EventUserUpdated, "Account Updated"},
		{messaging.EventUserDeleted, "Account Deleted"},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			sender := testutil.NewMockSender()
			c := NewConsumer(nil, sender, Options{})

			if outcome := c.Handle(context.Background(), delivery(t, tt.eventType, ada)); outcome != messaging.Ack {
				t.Errorf("Expected ack, got %v", outcome)
			}
			if len(sender.Sent()) != 1 || sender.Sent()[0].Subject != tt.subject {
				t.Errorf("Expected one email with subject '%s', got %+v", tt.subject, sender.Sent())
			}
		})
	}
}

func TestHandle_EmailFailureStillAcks(t *testing.T) {
	sender := testutil.NewMockSender()
	sender.Fail = true
	metrics := newMockMetrics()
	c := NewConsumer(nil, sender, Options{Metrics: metrics, MaxRedeliveries: 3})

	outcome := c.Handle(context.Background(), delivery(t, messaging.EventUserDeleted, ada))

	if outcome != messaging.Ack {
		t.Errorf("Expected ack when email is not sent, got %v", outcome)
	}
	if metrics.emails[false] != 1 {
		t.Errorf("Expected one failed email metric, got %v", metrics.emails)
	}
}

func TestHandle_UnknownEventTypeAcksWithoutEmail(t *testing.T) {
	sender := testutil.NewMockSender()
	c := NewConsumer(nil, sender, Options{})

	outcome := c.Handle(context.Background(), delivery(t, messaging.EventType("user_promoted"), ada))

	if outcome != messaging.Ack {
		t.Errorf("Expected ack for unknown event type, got %v", outcome)
	}
	if len(sender.Sent()) != 0 {
		t.Errorf("Expected no emails, got %d", len(sender.Sent()))
	}
}

func TestHandle_MalformedBodyIsRejected(t *testing.T) {
	sender := testutil.NewMockSender()
	c := NewConsumer(nil, sender, Options{})

	outcome := c.Handle(context.Background(), amqp.Delivery{Body: []byte("{not json")})

	if outcome != messaging.Reject {
		t.Errorf("Expected reject without requeue, got %v", outcome)
	}
	if len(sender.Sent()) != 0 {
		t.Errorf("Expected no emails, got %d", len(sender.Sent()))
	}
}

func TestHandle_MissingRecipientRequeuesUntilCap(t *testing.T) {
	sender := testutil.NewMockSender()
	c := NewConsumer(nil, sender, Options{MaxRedeliveries: 1})

	user := ada
	user.Email = ""
	d := delivery(t, messaging.EventUserUpdated, user)

	if outcome := c.Handle(context.Background(), d); outcome != messaging.Requeue {
		t.Errorf("Expected requeue for missing recipient, got %v", outcome)
	}
	d.Redelivered = true
	if outcome := c.Handle(context.Background(), d); outcome != messaging.Reject {
		t.Errorf("Expected reject once the cap is passed, got %v", outcome)
	}
	if len(sender.Sent()) != 0 {
		t.Errorf("Expected no emails, got %d", len(sender.Sent()))
	}
}

func TestHandle_HandlerErrorRequeuesUntilCap(t *testing.T) {
	renderer := &mockRenderer{
		RenderFunc: func(messaging.EventType, messaging.UserData) (Message, error) {
			return Message{}, errors.New("template exploded")
		},
	}
	tracker := NewMemoryTracker()
	c := NewConsumer(nil, testutil.NewMockSender(), Options{
		MaxRedeliveries: 2,
		Renderer:        renderer,
		Tracker:         tracker,
	})

	d := delivery(t, messaging.EventUserCreated, ada)
	want := []messaging.Outcome{messaging.Requeue, messaging.Requeue, messaging.Reject}
	for i, expected := range want {
		d.Redelivered = i > 0
		if got := c.Handle(context.Background(), d); got != expected {
			t.Fatalf("Attempt %d: expected %v, got %v", i+1, expected, got)
		}
	}

	if n, _ := tracker.Fail(context.Background(), "msg-1"); n != 1 {
		t.Errorf("Expected attempt count to be cleared after dead-lettering, got %d", n)
	}
}

func TestHandle_HandlerErrorWithoutCapAlwaysRequeues(t *testing.T) {
	renderer := &mockRenderer{
		RenderFunc: func(messaging.EventType, messaging.UserData) (Message, error) {
			return Message{}, errors.New("template exploded")
		},
	}
	c := NewConsumer(nil, testutil.NewMockSender(), Options{Renderer: renderer})

	d := delivery(t, messaging.EventUserUpdated, ada)
	for i := 0; i < 10; i++ {
		if got := c.Handle(context.Background(), d); got != messaging.Requeue {
			t.Fatalf("Attempt %d: expected requeue, got %v", i+1, got)
		}
	}
}

type failingTracker struct{}

func (failingTracker) Fail(context.Context, string) (int, error) {
	return 0, errors.New("redis down")
}

func (failingTracker) Clear(context.Context, string) error {
	return errors.New("redis down")
}

func TestHandle_TrackerFailureRequeues(t *testing.T) {
	renderer := &mockRenderer{
		RenderFunc: func(messaging.EventType, messaging.UserData) (Message, error) {
			return Message{}, errors.New("template exploded")
		},
	}
	c := NewConsumer(nil, testutil.NewMockSender(), Options{
		MaxRedeliveries: 1,
		Renderer:        renderer,
		Tracker:         failingTracker{},
	})

	if got := c.Handle(context.Background(), delivery(t, messaging.EventUserCreated, ada)); got != messaging.Requeue {
		t.Errorf("Expected requeue when tracker is unavailable, got %v", got)
	}
}

func TestHandle_SuccessAfterRedeliveryClearsCount(t *testing.T) {
	tracker := NewMemoryTracker()
	fail := true
	renderer := &mockRenderer{
		RenderFunc: func(eventType messaging.EventType, user messaging.UserData) (Message, error) {
			if fail {
				return Message{}, errors.New("transient")
			}
			return TemplateRenderer{}.Render(eventType, user)
		},
	}
	sender := testutil.NewMockSender()
	c := NewConsumer(nil, sender, Options{MaxRedeliveries: 5, Renderer: renderer, Tracker: tracker})

	d := delivery(t, messaging.EventUserCreated, ada)
	if got := c.Handle(context.Background(), d); got != messaging.Requeue {
		t.Fatalf("Expected requeue, got %v", got)
	}

	fail = false
	d.Redelivered = true
	if got := c.Handle(context.Background(), d); got != messaging.Ack {
		t.Fatalf("Expected ack, got %v", got)
	}
	if len(sender.Sent()) != 1 {
		t.Errorf("Expected one email after recovery, got %d", len(sender.Sent()))
	}
	if n, _ := tracker.Fail(context.Background(), "msg-1"); n != 1 {
		t.Errorf("Expected attempt count reset after success, got %d", n)
	}
}

func TestHandle_ConfiguredTemplateUsesProviderTemplate(t *testing.T) {
	sender := testutil.NewMockSender()
	c := NewConsumer(nil, sender, Options{
		Templates: map[string]string{"user_created": "tmpl-welcome"},
	})

	if got := c.Handle(context.Background(), delivery(t, messaging.EventUserCreated, ada)); got != messaging.Ack {
		t.Fatalf("Expected ack, got %v", got)
	}
	if len(sender.Sent()) != 1 {
		t.Fatalf("Expected one email, got %d", len(sender.Sent()))
	}
	got := sender.Sent()[0]
	if got.TemplateID != "tmpl-welcome" {
		t.Errorf("Expected template 'tmpl-welcome', got '%s'", got.TemplateID)
	}
	if got.Variables["name"] != "Ada" || got.Variables["email"] != "ada@example.com" || got.Variables["role"] != "admin" {
		t.Errorf("Unexpected template variables: %v", got.Variables)
	}

	// Event types without a template id keep the built-in bodies.
	if got := c.Handle(context.Background(), delivery(t, messaging.EventUserUpdated, ada)); got != messaging.Ack {
		t.Fatalf("Expected ack, got %v", got)
	}
	if sender.Sent()[1].Subject != "Account Updated" {
		t.Errorf("Expected built-in subject for user_updated, got '%s'", sender.Sent()[1].Subject)
	}
}

func TestRun_ConsumesWithHandle(t *testing.T) {
	sender := testutil.NewMockSender()
	var outcomes []messaging.Outcome
	source := &mockSource{
		ConsumeFunc: func(ctx context.Context, handler messaging.DeliveryHandler) error {
			outcomes = append(outcomes, handler(ctx, delivery(t, messaging.EventUserCreated, ada)))
			outcomes = append(outcomes, handler(ctx, amqp.Delivery{Body: []byte("garbage")}))
			return nil
		},
	}
	c := NewConsumer(source, sender, Options{})

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(outcomes) != 2 || outcomes[0] != messaging.Ack || outcomes[1] != messaging.Reject {
		t.Errorf("Unexpected outcomes: %v", outcomes)
	}
	if len(sender.Sent()) != 1 {
		t.Errorf("Expected one email, got %d", len(sender.Sent()))
	}
}

func TestRun_ReturnsSourceError(t *testing.T) {
	source := &mockSource{
		ConsumeFunc: func(context.Context, messaging.DeliveryHandler) error {
			return messaging.ErrNotConnected
		},
	}
	c := NewConsumer(source, testutil.NewMockSender(), Options{})

	if err := c.Run(context.Background()); !errors.Is(err, messaging.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if c.Running() {
		t.Error("Expected consumer to report stopped after Run returned")
	}
}

func TestRunning_TracksRun(t *testing.T) {
	var during bool
	var c *Consumer
	source := &mockSource{
		ConsumeFunc: func(context.Context, messaging.DeliveryHandler) error {
			during = c.Running()
			return nil
		},
	}
	c = NewConsumer(source, testutil.NewMockSender(), Options{})

	if c.Running() {
		t.Error("Expected consumer to report stopped before Run")
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !during {
		t.Error("Expected consumer to report running inside Run")
	}
	if c.Running() {
		t.Error("Expected consumer to report stopped after Run")
	}

	var nilConsumer *Consumer
	if nilConsumer.Running() {
		t.Error("Expected nil consumer to report stopped")
	}
}
