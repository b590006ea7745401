package notification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// AttemptTracker counts failed processing attempts per message so a message
// that keeps failing can be dead-lettered instead of requeued forever.
type AttemptTracker interface {
	// Fail records one failed attempt for key and returns the total so far.
	Fail(ctx context.Context, key string) (int, error)
	Clear(ctx context.Context, key string) error
}

// DeliveryKey identifies a message across redeliveries. Publishers set a
// MessageId; messages without one fall back to a hash of the body.
func DeliveryKey(d amqp.Delivery) string {
	if d.MessageId != "" {
		return d.MessageId
	}
	sum := sha256.Sum256(d.Body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// MemoryTracker keeps attempt counts in process. Counts are lost on restart,
// which at worst grants a poison message a few extra redeliveries.
type MemoryTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{counts: make(map[string]int)}
}

func (t *MemoryTracker) Fail(_ context.Context, key string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	return t.counts[key], nil
}

func (t *MemoryTracker) Clear(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, key)
	return nil
}

// RedisTracker shares attempt counts between consumer replicas.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTracker{
		client: client,
		ttl:    ttl,
		prefix: "notifications:attempts:",
	}
}

func (t *RedisTracker) Fail(ctx context.Context, key string) (int, error) {
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, t.prefix+key)
	pipe.Expire(ctx, t.prefix+key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	return int(incr.Val()), nil
}

func (t *RedisTracker) Clear(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}
	return nil
}
