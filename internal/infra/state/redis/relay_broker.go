package redisstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"team-meetings/internal/repository"
)

// RedisRelayBroker 通过 Redis Pub/Sub 在中继实例之间转发房间消息
type RedisRelayBroker struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRelayBroker 创建 RedisRelayBroker 实例
func NewRedisRelayBroker(client *redis.Client, keyPrefix string) *RedisRelayBroker {
	if client == nil {
		panic("redis client cannot be nil for RedisRelayBroker")
	}
	if keyPrefix == "" {
		keyPrefix = "tm:"
	}
	return &RedisRelayBroker{client: client, keyPrefix: keyPrefix}
}

func (b *RedisRelayBroker) roomChannel(room string) string {
	return fmt.Sprintf("%srelay:room:%s", b.keyPrefix, room)
}

func (b *RedisRelayBroker) Publish(ctx context.Context, env repository.RelayEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal relay envelope for room %s: %w", env.Room, err)
	}
	channel := b.roomChannel(env.Room)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe 以模式订阅所有房间频道
func (b *RedisRelayBroker) Subscribe(ctx context.Context) (<-chan repository.RelayEnvelope, error) {
	pattern := b.roomChannel("*")
	pubsub := b.client.PSubscribe(ctx, pattern)
	// 等待订阅确认，避免静默失败
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: psubscribe %s: %w", pattern, err)
	}

	out := make(chan repository.RelayEnvelope, 256)
	log := logrus.WithFields(logrus.Fields{"component": "relay_broker", "pattern": pattern})
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				log.Info("Relay subscription stopped")
				return
			case msg, ok := <-ch:
				if !ok {
					log.Warn("Relay subscription channel closed")
					return
				}
				var env repository.RelayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.WithError(err).WithField("channel", msg.Channel).Warn("Dropping malformed relay envelope")
					continue
				}
				select {
				case out <- env:
				default:
					log.WithField("room", env.Room).Warn("Relay subscriber backlog full, dropping envelope")
				}
			}
		}
	}()
	return out, nil
}
