package interfaces

import "context"

// PubSubMessage is one payload received from a distribution backend
// subscription, tagged with the channel it arrived on.
type PubSubMessage struct {
	Channel string
	Payload []byte
}

// PubSub is the distribution backend behind the bridge: any pub/sub system
// that can publish to a named channel and subscribe to a channel pattern.
// Channel names follow the convention "<prefix>:rooms:<room_id>" for room
// broadcasts and "<prefix>:all" for global ones.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, pattern string) (<-chan PubSubMessage, error)
	Close() error
}
