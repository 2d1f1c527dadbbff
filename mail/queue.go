package mail

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the list used when no key is configured.
const DefaultQueueKey = "gogate:mail"

var (
	ErrQueueUnavailable = errors.New("mail queue unavailable")
	ErrQueueEmpty       = errors.New("mail queue empty")
)

// Job is one queued message.
type Job struct {
	Message    goGate.EmailMessage `json:"message"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// RedisQueue pushes jobs onto a Redis list for an external mailer. Producers LPUSH,
// consumers pop from the right, so delivery is FIFO.
type RedisQueue struct {
	redis  redis.UniversalClient
	key    string
	maxLen int64
	now    func() time.Time
}

var _ goGate.EmailSender = (*RedisQueue)(nil)

// NewRedisQueue creates a queue on key. maxLen > 0 trims the list after each push,
// dropping the oldest jobs.
func NewRedisQueue(rdb redis.UniversalClient, key string, maxLen int64) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{redis: rdb, key: key, maxLen: maxLen, now: time.Now}
}

func (q *RedisQueue) Send(ctx context.Context, msg goGate.EmailMessage) error {
	if q == nil || q.redis == nil {
		return ErrQueueUnavailable
	}
	payload, err := json.Marshal(Job{Message: msg, EnqueuedAt: q.now().UTC()})
	if err != nil {
		return err
	}

	_, err = q.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.key, payload)
		if q.maxLen > 0 {
			pipe.LTrim(ctx, q.key, 0, q.maxLen-1)
		}
		return nil
	})
	if err != nil {
		return errors.Join(ErrQueueUnavailable, err)
	}
	return nil
}

// Pop removes the oldest job, or returns ErrQueueEmpty.
func (q *RedisQueue) Pop(ctx context.Context) (Job, error) {
	raw, err := q.redis.RPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrQueueEmpty
	}
	if err != nil {
		return Job{}, errors.Join(ErrQueueUnavailable, err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Len returns the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.redis.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, errors.Join(ErrQueueUnavailable, err)
	}
	return n, nil
}
