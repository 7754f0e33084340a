package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"boldestate-backend/internal/models"
)

// Channel is the Redis pub/sub channel carrying one conversation's events.
func Channel(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation_updates:%s", conversationID.String())
}

// RedisPublisher sends conversation events through Redis pub/sub to
// whichever instance holds the widget's sockets.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, conversationID uuid.UUID, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Type, err)
	}
	if err := p.client.Publish(ctx, Channel(conversationID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Type, err)
	}
	return nil
}
