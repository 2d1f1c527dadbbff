package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestPublisherDeliversToSubscriber(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "acct-events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	pub := NewPublisher(rdb, "acct-events")
	pub.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := pub.Notify(ctx, "acct-1", goGate.NotifyAccountLocked); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	select {
	case raw := <-sub.Channel():
		msg, err := Decode(raw.Payload)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if msg.AccountID != "acct-1" || msg.Event != goGate.NotifyAccountLocked {
			t.Fatalf("unexpected message: %+v", msg)
		}
		if !msg.SentAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected timestamp: %v", msg.SentAt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestPublisherWithoutSubscribers(t *testing.T) {
	_, rdb := newTestRedis(t)

	pub := NewPublisher(rdb, "")
	if pub.Channel() != DefaultChannel {
		t.Fatalf("expected default channel, got %q", pub.Channel())
	}
	if err := pub.Notify(context.Background(), "acct-1", goGate.NotifyPasswordChanged); err != nil {
		t.Fatalf("expected nil with no subscribers, got %v", err)
	}
}

func TestPublisherRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	err := NewPublisher(rdb, "").Notify(context.Background(), "acct-1", goGate.NotifyAccountActivated)
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestNilPublisher(t *testing.T) {
	var pub *Publisher
	if err := pub.Notify(context.Background(), "acct-1", goGate.NotifyAccountLocked); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
