package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/WailSalutem-Health-Care/user-service/internal/config"
)

const (
	consumerTag    = "user-service-notifications"
	publishTimeout = 5 * time.Second
)

// ConnState is the lifecycle state of the broker's publish connection.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Outcome tells Consume how to settle a delivery.
type Outcome int

const (
	// Ack removes the message from the queue.
	Ack Outcome = iota
	// Requeue rejects the message and asks the broker to deliver it again.
	Requeue
	// Reject drops the message; the queue dead-letters it.
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Reject:
		return "reject"
	}
	return "unknown"
}

// DeliveryHandler processes one delivery and decides how it is settled.
type DeliveryHandler func(ctx context.Context, d amqp.Delivery) Outcome

// Channel is the subset of *amqp.Channel the broker uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection is the subset of *amqp.Connection the broker uses.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string, cfg amqp.Config) (Connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// DialAMQP is the production Dialer.
func DialAMQP(url string, cfg amqp.Config) (Connection, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// Option customizes a Broker.
type Option func(*Broker)

// WithDialer replaces the dialer used to reach RabbitMQ.
func WithDialer(d Dialer) Option {
	return func(b *Broker) {
		b.dial = d
	}
}

// WithPublishOnly skips the consume connection. Consume then returns
// ErrNotConnected.
func WithPublishOnly() Option {
	return func(b *Broker) {
		b.publishOnly = true
	}
}

// Broker owns the RabbitMQ connections for the process. Publishing and
// consuming use separate connections so a busy consumer never blocks
// request-triggered publishes.
type Broker struct {
	url      string
	endpoint string
	amqpCfg  amqp.Config
	dial     Dialer

	publishOnly bool

	mu    sync.Mutex
	state atomic.Int32

	pubMu   sync.Mutex
	pubConn Connection
	pubCh   Channel

	conConn Connection
	conCh   Channel
}

// NewBroker creates a disconnected broker for the given configuration.
func NewBroker(cfg config.RabbitMQConfig, opts ...Option) *Broker {
	endpoint := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   endpoint,
		Path:   "/",
	}

	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}

	b := &Broker{
		url:      u.String(),
		endpoint: endpoint,
		amqpCfg: amqp.Config{
			Vhost:     vhost,
			Heartbeat: cfg.Heartbeat,
			Locale:    "en_US",
		},
		dial: DialAMQP,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state of the publish connection.
func (b *Broker) State() ConnState {
	if b == nil {
		return StateDisconnected
	}
	return ConnState(b.state.Load())
}

// IsConnected reports whether publishes can currently be attempted.
func (b *Broker) IsConnected() bool {
	return b.State() == StateConnected
}

func (b *Broker) setState(s ConnState) {
	b.state.Store(int32(s))
}

// Connect opens the publish and consume connections and declares the
// exchange, queues and binding. Calling it on a connected broker is a no-op.
func (b *Broker) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &ConnectionError{Op: "connect", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.State() {
	case StateConnected:
		return nil
	case StateClosed:
		return ErrBrokerClosed
	}
	b.setState(StateConnecting)
	b.releaseLocked()

	pubConn, pubCh, err := b.open("publish")
	if err != nil {
		b.setState(StateDisconnected)
		return err
	}
	if err := declareTopology(pubCh); err != nil {
		pubCh.Close()
		pubConn.Close()
		b.setState(StateDisconnected)
		return err
	}

	var conConn Connection
	var conCh Channel
	if !b.publishOnly {
		conConn, conCh, err = b.open("consume")
		if err != nil {
			pubCh.Close()
			pubConn.Close()
			b.setState(StateDisconnected)
			return err
		}
	}

	b.pubConn, b.pubCh = pubConn, pubCh
	b.conConn, b.conCh = conConn, conCh

	// Register before going live so a connection that dies right away is
	// still observed.
	pubClosed := pubConn.NotifyClose(make(chan *amqp.Error, 1))
	b.setState(StateConnected)
	go b.watch(pubConn, pubClosed)
	if conConn != nil {
		go logConsumeLoss(conConn.NotifyClose(make(chan *amqp.Error, 1)))
	}

	log.Printf("✓ RabbitMQ connected: %s", b.endpoint)
	return nil
}

func (b *Broker) open(purpose string) (Connection, Channel, error) {
	conn, err := b.dial(b.url, b.amqpCfg)
	if err != nil {
		return nil, nil, &ConnectionError{Op: "dial " + purpose, Err: err}
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, &ConnectionError{Op: "open " + purpose + " channel", Err: err}
	}
	return conn, ch, nil
}

func declareTopology(ch Channel) error {
	if err := ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return &ConnectionError{Op: "declare exchange", Err: err}
	}

	if _, err := ch.QueueDeclare(
		DeadLetterQueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return &ConnectionError{Op: "declare dead-letter queue", Err: err}
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueueName,
	}
	if _, err := ch.QueueDeclare(
		QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		return &ConnectionError{Op: "declare queue", Err: err}
	}

	if err := ch.QueueBind(QueueName, BindingKey, ExchangeName, false, nil); err != nil {
		return &ConnectionError{Op: "bind queue", Err: err}
	}
	return nil
}

// watch marks the broker disconnected when conn, the current publish
// connection, goes away. A receiver closed without an error counts as a loss
// unless the broker itself released conn.
func (b *Broker) watch(conn Connection, closed <-chan *amqp.Error) {
	amqpErr := <-closed

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubConn != conn || b.State() == StateClosed {
		return
	}
	if amqpErr != nil {
		log.WithField("connection", "publish").Warnf("RabbitMQ connection lost: %v", amqpErr)
	} else {
		log.WithField("connection", "publish").Warn("RabbitMQ connection closed unexpectedly")
	}
	b.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected))
}

// logConsumeLoss reports a dropped consume connection. Consume itself sees
// the closed delivery channel and returns ErrDeliveriesClosed.
func logConsumeLoss(closed <-chan *amqp.Error) {
	if amqpErr := <-closed; amqpErr != nil {
		log.WithField("connection", "consume").Warnf("RabbitMQ connection lost: %v", amqpErr)
	}
}

// ConnectWithRetry calls Connect up to maxRetries times, waiting retryDelay
// between failed attempts. On exhaustion the broker stays disconnected and
// the returned error wraps ErrBrokerUnavailable.
func (b *Broker) ConnectWithRetry(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Printf("Attempting to connect to RabbitMQ (attempt %d/%d)...", attempt, maxRetries)

		lastErr = b.Connect(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrBrokerClosed) {
			return lastErr
		}
		log.Warnf("Failed to connect to RabbitMQ: %v", lastErr)

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrBrokerUnavailable, ctx.Err())
		case <-time.After(retryDelay):
		}
	}

	log.Errorf("Failed to connect to RabbitMQ after %d attempts", maxRetries)
	return fmt.Errorf("%w after %d attempts: %w", ErrBrokerUnavailable, maxRetries, lastErr)
}

// Publish sends event to the exchange with routing key user.<eventType>.
// It returns false instead of failing when the broker is not connected or the
// publish is refused.
func (b *Broker) Publish(ctx context.Context, eventType string, event Event) bool {
	routingKey := RoutingKey(eventType)
	logger := log.WithFields(log.Fields{
		"event_type":  eventType,
		"routing_key": routingKey,
		"user_id":     event.UserID,
	})

	if b == nil || !b.IsConnected() {
		logger.Warn("RabbitMQ not connected. Event not published.")
		return false
	}

	body, err := event.Encode()
	if err != nil {
		logger.Errorf("Failed to encode event: %v", err)
		return false
	}

	b.mu.Lock()
	ch := b.pubCh
	b.mu.Unlock()
	if ch == nil {
		logger.Warn("RabbitMQ publish channel closed. Event not published.")
		return false
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(headers))

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	b.pubMu.Lock()
	err = ch.PublishWithContext(
		ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			Headers:      headers,
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    uuid.New().String(),
		},
	)
	b.pubMu.Unlock()

	if err != nil {
		logger.Errorf("Failed to publish event: %v", err)
		return false
	}

	logger.Infof("Published %s event for user %d", eventType, event.UserID)
	return true
}

// Consume registers handler with manual acknowledgment on the consumer
// connection and blocks until ctx is cancelled or the delivery channel closes.
// It returns nil on cancellation and ErrDeliveriesClosed when the broker
// stops delivering.
func (b *Broker) Consume(ctx context.Context, handler DeliveryHandler) error {
	b.mu.Lock()
	ch := b.conCh
	b.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(
		QueueName,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	log.Printf("✓ Started consuming from queue: %s", QueueName)

	for {
		select {
		case <-ctx.Done():
			if err := ch.Cancel(consumerTag, false); err != nil {
				log.Warnf("Failed to cancel consumer: %v", err)
			}
			log.Println("Consumer stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			settle(d, handler(ctx, d))
		}
	}
}

func settle(d amqp.Delivery, outcome Outcome) {
	var err error
	switch outcome {
	case Ack:
		err = d.Ack(false)
	case Requeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		log.WithField("delivery_tag", d.DeliveryTag).Errorf("Failed to %s message: %v", outcome, err)
	}
}

// Close shuts down both connections. It is safe to call more than once.
func (b *Broker) Close() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.State() == StateClosed {
		return nil
	}
	wasConnected := b.State() == StateConnected
	b.setState(StateClosed)

	err := b.releaseLocked()
	if wasConnected {
		log.Println("RabbitMQ connection closed")
	}
	return err
}

// releaseLocked closes any channels and connections still held. b.mu must be held.
func (b *Broker) releaseLocked() error {
	var errs []error
	for _, c := range []interface{ Close() error }{b.conCh, b.conConn, b.pubCh, b.pubConn} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	b.conCh, b.conConn, b.pubCh, b.pubConn = nil, nil, nil, nil
	return errors.Join(errs...)
}
