package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"boldestate-backend/internal/models"
)

// ExchangeQueue is the Redis list the assistant pushes exchanges onto.
const ExchangeQueue = "queue:exchange-log"

// errQueueEmpty is returned by Pop when nothing arrived before the timeout.
var errQueueEmpty = errors.New("queue empty")

type queue interface {
	Push(ctx context.Context, payload []byte) error
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type job struct {
	Attempt  int             `json:"attempt"`
	Exchange models.Exchange `json:"exchange"`
}

// RedisQueue is a FIFO backed by a Redis list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, key: ExchangeQueue}
}

func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	return q.client.RPush(ctx, q.key, payload).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errQueueEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, errQueueEmpty
	}
	return []byte(result[1]), nil
}

// Recorder hands exchanges to the worker pool instead of writing them
// inline, so a slow database never delays a reply.
type Recorder struct {
	queue queue
}

func NewRecorder(q queue) *Recorder {
	return &Recorder{queue: q}
}

func (r *Recorder) Record(ctx context.Context, e *models.Exchange) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(job{Attempt: 1, Exchange: *e})
	if err != nil {
		return fmt.Errorf("failed to encode exchange: %w", err)
	}
	if err := r.queue.Push(ctx, payload); err != nil {
		return fmt.Errorf("failed to enqueue exchange: %w", err)
	}
	return nil
}
