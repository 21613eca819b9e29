package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Feed is the change-notification channel between the write path and any
// in-memory mirror of the surgery collection. Payloads are opaque bytes;
// the surgery package owns the delta encoding.
type Feed struct {
	client  *redis.Client
	channel string
}

func NewFeed(client *redis.Client, channel string) *Feed {
	return &Feed{
		client:  client,
		channel: channel,
	}
}

func (f *Feed) Publish(ctx context.Context, payload []byte) error {
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish delta: %w", err)
	}
	return nil
}

// Subscribe returns a channel of raw delta payloads in arrival order.
// Cancelling ctx releases the subscription and closes the channel.
func (f *Feed) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)

	// Force the subscription to be established before returning so callers
	// do not miss deltas published right after Subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	out := make(chan []byte, 100)

	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				log.Warn().Err(err).Str("channel", f.channel).Msg("close feed subscription")
			}
		}()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				// Block rather than drop so the mirror sees every delta
				// in the order it arrived.
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
