package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueClientName  = "boldestate-queue"
	pubsubClientName = "boldestate-pubsub"
)

// RedisClients keeps the blocking exchange-log reads off the connection
// that carries conversation updates.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

// clientOptions derives the named queue and pub/sub options from one URL.
func clientOptions(redisURL string) (queue, pubsub *redis.Options, err error) {
	base, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	q := *base
	q.ClientName = queueClientName

	p := *base
	p.ClientName = pubsubClientName

	return &q, &p, nil
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	queueOpt, pubsubOpt, err := clientOptions(redisURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clients := &RedisClients{
		Queue:  redis.NewClient(queueOpt),
		PubSub: redis.NewClient(pubsubOpt),
	}
	for _, c := range []*redis.Client{clients.Queue, clients.PubSub} {
		if err := c.Ping(ctx).Err(); err != nil {
			clients.Close()
			return nil, fmt.Errorf("failed to ping Redis (%s): %w", c.Options().ClientName, err)
		}
	}

	return clients, nil
}

// Ping checks the pub/sub connection, which every widget update depends on.
func (r *RedisClients) Ping(ctx context.Context) error {
	return r.PubSub.Ping(ctx).Err()
}

func (r *RedisClients) Close() error {
	return errors.Join(r.Queue.Close(), r.PubSub.Close())
}
