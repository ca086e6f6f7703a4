package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventTTL = 5 * time.Second

// RedisPubSub implements Bridge on one Redis pub/sub channel per scene.
type RedisPubSub struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPubSub creates a bridge on channel (e.g. "auditorium:main:events").
func NewRedisPubSub(client *redis.Client, channel string, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, channel: channel, logger: logger}
}

// Publish sends env to every subscribed instance.
func (r *RedisPubSub) Publish(env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTTL)
	defer cancel()
	return r.client.Publish(ctx, r.channel, body).Err()
}

// Subscribe calls fn for every envelope on the channel until cancel is called.
func (r *RedisPubSub) Subscribe(fn func(Envelope)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Warn("invalid bridge event", zap.Error(err))
					continue
				}
				fn(env)
			}
		}
	}()
	return cancelCtx, nil
}
