package messaging

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type publishedMessage struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

// fakeChannel records every call the broker makes on an AMQP channel.
type fakeChannel struct {
	mu sync.Mutex

	exchanges  []string
	queues     map[string]amqp.Table
	durable    map[string]bool
	bindings   []string
	published  []publishedMessage
	prefetch   int
	cancelled  bool
	closed     bool
	deliveries chan amqp.Delivery

	declareErr error
	publishErr error
	consumeErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		queues:     make(map[string]amqp.Table),
		durable:    make(map[string]bool),
		deliveries: make(chan amqp.Delivery, 16),
	}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return c.declareErr
	}
	c.exchanges = append(c.exchanges, name+":"+kind)
	c.durable[name] = durable
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[name] = args
	c.durable[name] = durable
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, exchange+"->"+name+"@"+key)
	return nil
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	if autoAck {
		return nil, errors.New("auto-ack must be disabled")
	}
	return c.deliveries, nil
}

func (c *fakeChannel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishedMessage{exchange: exchange, routingKey: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) publishedMessages() []publishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]publishedMessage, len(c.published))
	copy(out, c.published)
	return out
}

type fakeConnection struct {
	mu       sync.Mutex
	ch       *fakeChannel
	closed   bool
	notifies []chan *amqp.Error

	// shutdown mimics amqp091 after the connection is gone: NotifyClose
	// closes the receiver immediately without an error.
	shutdown bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	return c.ch, nil
}

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		close(receiver)
		return receiver
	}
	c.notifies = append(c.notifies, receiver)
	return receiver
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		for _, n := range c.notifies {
			close(n)
		}
	}
	return nil
}

func (c *fakeConnection) drop(err *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.notifies {
		n <- err
	}
}

func (c *fakeConnection) hasWatcher() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notifies) > 0
}

// fakeDialer fails the first failures dials, then hands out fresh connections.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	shutdown bool
	calls    int
	conns    []*fakeConnection
	vhosts   []string
}

func (d *fakeDialer) Dial(url string, cfg amqp.Config) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.vhosts = append(d.vhosts, cfg.Vhost)
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial tcp: connection refused")
	}
	conn := &fakeConnection{ch: newFakeChannel(), shutdown: d.shutdown}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeAcknowledger records how deliveries were settled.
type fakeAcknowledger struct {
	mu       sync.Mutex
	acked    []uint64
	requeued []uint64
	rejected []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeued = append(a.requeued, tag)
	} else {
		a.rejected = append(a.rejected, tag)
	}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}
