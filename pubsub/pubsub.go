// Package pubsub fans guild events out to subscribers, either inside the
// process or through Redis when several instances share one event stream.
package pubsub

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed PubSub.
var ErrClosed = errors.New("pubsub: closed")

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations.
//
// Subscribe returns a message stream and a cancel function. The stream is
// closed once cancel is called, ctx is done or the PubSub is closed. Cancel
// may be called more than once.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
	Close() error
}

// Config selects and configures the backend.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// LocalBuf is the per-subscriber buffer. Slow subscribers lose messages
	// once it fills.
	LocalBuf int
}

// New returns a PubSub backed by Redis if RedisAddr is set,
// otherwise an in-process fan-out.
func New(cfg Config) (PubSub, error) {
	if cfg.RedisAddr != "" {
		return newRedisBus(cfg)
	}
	return newLocalBus(cfg.LocalBuf), nil
}
