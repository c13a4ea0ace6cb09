// Package bridge mirrors room and global broadcasts across processes
// through a pub/sub backend. Every process that receives a published
// envelope, the originating one included, delivers it through its local
// broadcast engine, so single-instance and multi-instance deployments share
// one delivery path. When the backend is unreachable the bridge falls back
// to direct local delivery; callers never see the difference.
package bridge

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chatcore/internal/broadcast"
	"chatcore/pkg/interfaces"
)

// resubscribe delay after the backend drops the subscription.
const retryInterval = 5 * time.Second

// envelope is the cross-process wire format.
type envelope struct {
	NodeID    string          `json:"node_id"`
	RoomID    string          `json:"room_id,omitempty"`
	All       bool            `json:"all,omitempty"`
	Excluding string          `json:"excluding,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Bridge wraps a local broadcast engine with pub/sub distribution. It
// implements broadcast.Broadcaster.
type Bridge struct {
	nodeID string
	local  broadcast.Broadcaster
	pubsub interfaces.PubSub
	prefix string

	// subscribed tracks whether the background subscriber currently holds
	// a live subscription. Fan-outs consult it: a published envelope only
	// comes back to this process while the subscriber is attached, so
	// without it the publish path must deliver locally itself.
	subscribed atomic.Bool

	degraded atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a bridge over the given backend. prefix namespaces the
// channels: "<prefix>:rooms:<room_id>" for rooms, "<prefix>:all" for global
// broadcasts.
func New(local broadcast.Broadcaster, pubsub interfaces.PubSub, prefix string) *Bridge {
	return &Bridge{
		nodeID: uuid.New().String(),
		local:  local,
		pubsub: pubsub,
		prefix: prefix,
	}
}

// Start launches the background subscriber. The loop resubscribes after
// backend outages until Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.wg.Add(1)
	go b.subscribeLoop(ctx)

	return nil
}

// Stop halts the subscriber and closes the backend.
func (b *Bridge) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	return b.pubsub.Close()
}

// SendTo is point-to-point and always local; only fan-outs are mirrored
// across processes.
func (b *Bridge) SendTo(connectionID string, payload any) error {
	return b.local.SendTo(connectionID, payload)
}

// BroadcastRoom publishes the payload to the room's channel. When the
// publish succeeds and this process's subscriber is attached, delivery
// happens asynchronously on every subscribed process (this one included)
// and the returned report is empty. On publish failure, or while the
// subscriber is down and no envelope would come back, the broadcast
// degrades to direct local delivery.
func (b *Bridge) BroadcastRoom(roomID string, payload any, excluding string) *broadcast.DeliveryReport {
	published := b.publish(b.roomChannel(roomID), &envelope{NodeID: b.nodeID, RoomID: roomID, Excluding: excluding}, payload)
	if published && b.subscribed.Load() {
		return &broadcast.DeliveryReport{}
	}
	return b.local.BroadcastRoom(roomID, payload, excluding)
}

// BroadcastAll publishes the payload to the global channel, falling back to
// local delivery the same way as BroadcastRoom.
func (b *Bridge) BroadcastAll(payload any, excluding string) *broadcast.DeliveryReport {
	published := b.publish(b.allChannel(), &envelope{NodeID: b.nodeID, All: true, Excluding: excluding}, payload)
	if published && b.subscribed.Load() {
		return &broadcast.DeliveryReport{}
	}
	return b.local.BroadcastAll(payload, excluding)
}

// Degraded reports whether the bridge is currently in local-only mode.
func (b *Bridge) Degraded() bool {
	return b.degraded.Load()
}

// Subscribed reports whether the background subscriber currently holds a
// live subscription.
func (b *Bridge) Subscribed() bool {
	return b.subscribed.Load()
}

func (b *Bridge) roomChannel(roomID string) string {
	return b.prefix + ":rooms:" + roomID
}

func (b *Bridge) allChannel() string {
	return b.prefix + ":all"
}

// publish marshals and publishes the envelope, returning whether the
// backend accepted it. Failures flip the bridge into degraded mode, logged
// once per outage rather than per message.
func (b *Bridge) publish(channel string, env *envelope, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal broadcast payload: %v", err)
		return false
	}
	env.Payload = data

	raw, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to marshal distribution envelope: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := b.pubsub.Publish(ctx, channel, raw); err != nil {
		b.markDegraded(err)
		return false
	}

	b.markHealthy()
	return true
}

func (b *Bridge) markDegraded(err error) {
	if b.degraded.CompareAndSwap(false, true) {
		log.Printf("Distribution backend unavailable, falling back to local broadcast: %v", err)
	}
}

// markHealthy clears the degraded flag. Recovery requires both directions
// working: a publish succeeding while the subscriber is still down is not
// recovery, since published envelopes would never reach this process.
func (b *Bridge) markHealthy() {
	if !b.subscribed.Load() {
		return
	}
	if b.degraded.CompareAndSwap(true, false) {
		log.Printf("Distribution backend recovered, resuming distributed broadcast")
	}
}

// subscribeLoop keeps a subscription on "<prefix>:*" alive, re-delivering
// every received envelope through the local engine.
func (b *Bridge) subscribeLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		ch, err := b.pubsub.Subscribe(ctx, b.prefix+":*")
		if err != nil {
			b.subscribed.Store(false)
			b.markDegraded(err)
			select {
			case <-time.After(retryInterval):
				continue
			case <-ctx.Done():
				return
			}
		}

		b.subscribed.Store(true)
		b.markHealthy()

		alive := true
		for alive {
			select {
			case msg, ok := <-ch:
				if !ok {
					b.subscribed.Store(false)
					b.markDegraded(ErrSubscriptionLost)
					alive = false
					break
				}
				b.deliver(msg)
			case <-ctx.Done():
				b.subscribed.Store(false)
				return
			}
		}

		select {
		case <-time.After(retryInterval):
		case <-ctx.Done():
			return
		}
	}
}

// deliver re-invokes local delivery for one received envelope.
func (b *Bridge) deliver(msg interfaces.PubSubMessage) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		log.Printf("Dropping malformed distribution envelope on %s: %v", msg.Channel, err)
		return
	}

	// The excluding connection only exists on the originating node; on
	// every other node the ID matches nothing and is ignored.
	excluding := ""
	if env.NodeID == b.nodeID {
		excluding = env.Excluding
	}

	var payload json.RawMessage = env.Payload

	switch {
	case env.All:
		b.local.BroadcastAll(payload, excluding)
	case env.RoomID != "" && strings.HasPrefix(msg.Channel, b.prefix+":rooms:"):
		b.local.BroadcastRoom(env.RoomID, payload, excluding)
	default:
		log.Printf("Dropping distribution envelope with no target on %s", msg.Channel)
	}
}
