package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher sends envelopes to a board channel. The Mutation API publishes
// through this after every successful remote call.
type Publisher interface {
	Publish(ctx context.Context, boardID uint, env Envelope) error
}

// Bus is the Redis-backed pub/sub transport for board events. Delivery is
// at-least-once and unordered; subscribers see the publisher's own
// messages echoed back.
type Bus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewBus creates a bus on top of an existing Redis client.
func NewBus(rdb *redis.Client, logger *slog.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger}
}

// Publish marshals the envelope onto the board's channel.
func (b *Bus) Publish(ctx context.Context, boardID uint, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, BoardChannel(boardID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", BoardChannel(boardID), err)
	}
	return nil
}

// Subscribe delivers every envelope published on the board's channel to
// handler, one at a time, until ctx is cancelled or the returned stop
// function is called. A message that fails to decode is logged and
// skipped; the loop itself never stops over a bad message.
func (b *Bus) Subscribe(ctx context.Context, boardID uint, handler func(Envelope)) (stop func(), err error) {
	pubsub := b.rdb.Subscribe(ctx, BoardChannel(boardID))
	// Force the subscription to be established before returning so callers
	// cannot race their first publish.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", BoardChannel(boardID), err)
	}

	ch := pubsub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
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
					b.logger.Error("dropping undecodable bus message",
						slog.String("channel", msg.Channel),
						slog.String("payload", msg.Payload),
						slog.String("error", err.Error()),
					)
					continue
				}
				handler(env)
			}
		}
	}()

	return func() {
		_ = pubsub.Close()
		<-done
	}, nil
}

// SubscribePattern delivers raw (channel, payload) pairs for every board
// channel. The websocket hub uses this to fan events out to connected
// browsers without re-validating them.
func (b *Bus) SubscribePattern(ctx context.Context, handler func(channel, payload string)) (stop func(), err error) {
	pubsub := b.rdb.PSubscribe(ctx, BoardChannelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to pattern-subscribe to %s: %w", BoardChannelPattern, err)
	}

	ch := pubsub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Channel, msg.Payload)
			}
		}
	}()

	return func() {
		_ = pubsub.Close()
		<-done
	}, nil
}
