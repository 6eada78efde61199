package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lawfi-backend/internal/models"
)

// Notifier fans conversation updates out to a user's open tabs via
// Redis pub/sub; the websocket hub delivers them.
type Notifier struct {
	redis *redis.Client
}

func NewNotifier(redisClient *redis.Client) *Notifier {
	return &Notifier{redis: redisClient}
}

func (n *Notifier) Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	n.redis.Publish(ctx, fmt.Sprintf("user_updates:%s", userID.String()), string(data))
}
