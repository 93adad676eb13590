package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"laddermatch/internal/playerstate"
)

// Channel is the pub/sub channel state-change events are published on.
const Channel = "player-state"

type event struct {
	PlayerID string            `json:"playerId"`
	State    playerstate.State `json:"state"`
}

// RedisPublisher publishes player state transitions over Redis pub/sub.
// Delivery is fire-and-forget: publish errors are logged and dropped, and
// subscribers are expected to poll current state as ground truth.
type RedisPublisher struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisPublisher(client *redis.Client, log *logrus.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

// Publish sends a (playerID, state) event. Never returns an error and never
// blocks beyond the underlying client call.
func (p *RedisPublisher) Publish(ctx context.Context, playerID string, state playerstate.State) {
	payload, err := json.Marshal(event{PlayerID: playerID, State: state})
	if err != nil {
		p.log.WithError(err).Warn("failed to encode state event")
		return
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		p.log.WithError(err).WithField("player", playerID).Debug("state event publish failed")
	}
}
