package bridge

import (
	"context"

	"github.com/redis/go-redis/v9"

	"chatcore/pkg/interfaces"
)

// RedisPubSub implements interfaces.PubSub over a Redis server using
// pattern subscriptions.
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub connects a Redis-backed pub/sub. The connection is lazy;
// reachability surfaces through Publish and Subscribe errors, which the
// bridge treats as degraded mode.
func NewRedisPubSub(addr string) *RedisPubSub {
	return &RedisPubSub{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Publish sends the payload to one channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a pattern subscription and forwards messages until the
// context is cancelled or the server drops the connection, at which point
// the returned channel closes.
func (r *RedisPubSub) Subscribe(ctx context.Context, pattern string) (<-chan interfaces.PubSubMessage, error) {
	sub := r.client.PSubscribe(ctx, pattern)

	// Force the subscription handshake so an unreachable server fails here
	// instead of silently never delivering.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan interfaces.PubSubMessage)
	go func() {
		defer close(out)
		defer sub.Close()

		for {
			select {
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- interfaces.PubSubMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close releases the underlying client.
func (r *RedisPubSub) Close() error {
	return r.client.Close()
}
