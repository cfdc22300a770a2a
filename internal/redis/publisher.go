package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"livepoll/internal/events"

	"github.com/redis/go-redis/v9"
)

// Publisher pushes poll lifecycle envelopes onto a single pub/sub channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Channel() string {
	return p.channel
}

func (p *Publisher) Publish(ctx context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}
