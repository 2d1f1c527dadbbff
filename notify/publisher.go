package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "gogate:notifications"

var ErrRedisUnavailable = errors.New("redis unavailable")

// Message is the JSON payload published for each notification.
type Message struct {
	AccountID string                   `json:"account_id"`
	Event     goGate.NotificationEvent `json:"event"`
	SentAt    time.Time                `json:"sent_at"`
}

// Publisher implements goGate.Notifier on a Redis channel.
type Publisher struct {
	redis   redis.UniversalClient
	channel string
	now     func() time.Time
}

var _ goGate.Notifier = (*Publisher)(nil)

// NewPublisher publishes to channel, or DefaultChannel when empty.
func NewPublisher(rdb redis.UniversalClient, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{redis: rdb, channel: channel, now: time.Now}
}

// Channel returns the Pub/Sub channel name.
func (p *Publisher) Channel() string {
	return p.channel
}

// Notify publishes one message. Zero subscribers is not an error.
func (p *Publisher) Notify(ctx context.Context, accountID string, event goGate.NotificationEvent) error {
	if p == nil || p.redis == nil {
		return ErrRedisUnavailable
	}
	payload, err := json.Marshal(Message{
		AccountID: accountID,
		Event:     event,
		SentAt:    p.now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := p.redis.Publish(ctx, p.channel, payload).Err(); err != nil {
		return errors.Join(ErrRedisUnavailable, err)
	}
	return nil
}

// Decode parses a payload received from the channel.
func Decode(payload string) (Message, error) {
	var msg Message
	err := json.Unmarshal([]byte(payload), &msg)
	return msg, err
}
