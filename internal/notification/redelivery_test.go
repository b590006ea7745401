package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisTracker_CountsAndClears(t *testing.T) {
	mr, client := newTestRedis(t)
	tracker := NewRedisTracker(client, time.Hour)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := tracker.Fail(ctx, "msg-1")
		if err != nil {
			t.Fatalf("Fail returned error: %v", err)
		}
		if got != want {
			t.Errorf("Expected count %d, got %d", want, got)
		}
	}

	if ttl := mr.TTL("notifications:attempts:msg-1"); ttl != time.Hour {
		t.Errorf("Expected ttl of 1h, got %v", ttl)
	}

	if err := tracker.Clear(ctx, "msg-1"); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if mr.Exists("notifications:attempts:msg-1") {
		t.Error("Expected key to be removed after Clear")
	}
}

func TestRedisTracker_ExpiredCountsRestart(t *testing.T) {
	mr, client := newTestRedis(t)
	tracker := NewRedisTracker(client, time.Minute)
	ctx := context.Background()

	if _, err := tracker.Fail(ctx, "msg-1"); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	got, err := tracker.Fail(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	if got != 1 {
		t.Errorf("Expected count to restart after expiry, got %d", got)
	}
}

func TestRedisTracker_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	tracker := NewRedisTracker(client, time.Minute)
	mr.Close()

	if _, err := tracker.Fail(context.Background(), "msg-1"); err == nil {
		t.Error("Expected error when redis is down")
	}
}

func TestMemoryTracker(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	tracker.Fail(ctx, "a")
	tracker.Fail(ctx, "a")
	if n, _ := tracker.Fail(ctx, "b"); n != 1 {
		t.Errorf("Expected keys to be counted separately, got %d", n)
	}
	tracker.Clear(ctx, "a")
	if n, _ := tracker.Fail(ctx, "a"); n != 1 {
		t.Errorf("Expected count reset after Clear, got %d", n)
	}
}

func TestDeliveryKey(t *testing.T) {
	if got := DeliveryKey(amqp.Delivery{MessageId: "abc"}); got != "abc" {
		t.Errorf("Expected message id as key, got %s", got)
	}

	a := DeliveryKey(amqp.Delivery{Body: []byte(`{"a":1}`)})
	b := DeliveryKey(amqp.Delivery{Body: []byte(`{"a":1}`)})
	c := DeliveryKey(amqp.Delivery{Body: []byte(`{"a":2}`)})
	if a != b {
		t.Error("Expected identical bodies to share a key")
	}
	if a == c {
		t.Error("Expected different bodies to have different keys")
	}
	if !strings.HasPrefix(a, "sha256:") {
		t.Errorf("Expected body hash key, got %s", a)
	}
}
