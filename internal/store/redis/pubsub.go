package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// subscriberBuffer bounds how far a websocket writer may lag behind Redis.
const subscriberBuffer = 64

// PubSub fans out tenant events between server replicas.
type PubSub struct {
	client *redis.Client
}

// New dials Redis and fails fast when the server is unreachable.
func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	ps := &PubSub{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
	if err := ps.Ping(ctx); err != nil {
		_ = ps.client.Close()
		return nil, fmt.Errorf("redis.New: %w", err)
	}
	return ps, nil
}

// Ping reports whether Redis is reachable.
func (ps *PubSub) Ping(ctx context.Context) error {
	if err := ps.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Ping: %w", err)
	}
	return nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

// Publish sends payload to every replica subscribed to channel.
func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish(%s): %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads and a cleanup func. The channel
// closes when ctx is done or the subscription ends. The subscription is
// confirmed before Subscribe returns, so nothing published afterwards is missed.
func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Subscribe(%s): %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go forward(ctx, sub.Channel(), out)

	return out, func() { _ = sub.Close() }, nil
}

func forward(ctx context.Context, in <-chan *redis.Message, out chan<- []byte) {
	defer close(out)
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}
		select {
		case out <- []byte(msg.Payload):
		case <-ctx.Done():
			return
		}
	}
}

// EvidenceChannel returns the Redis channel carrying a tenant's audit events.
func EvidenceChannel(tenantID uuid.UUID) string {
	return "tenant:" + tenantID.String() + ":evidence"
}
