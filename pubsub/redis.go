package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisDialTimeout = 5 * time.Second

// redisBus relays messages through Redis PUBLISH/SUBSCRIBE so that every
// instance attached to the same server sees every event.
type redisBus struct {
	client *goredis.Client
}

// newRedisBus fails fast when the server is unreachable.
func newRedisBus(cfg Config) (*redisBus, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: redisDialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub: redis %s: %w", cfg.RedisAddr, err)
	}
	return &redisBus{client: client}, nil
}

func (b *redisBus) Publish(ctx context.Context, channel, message string) error {
	return b.client.Publish(ctx, channel, message).Err()
}

// Subscribe waits for Redis to confirm the subscription so that a message
// published right after it returns is not lost.
func (b *redisBus) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	sub := b.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan *Message, defaultLocalBuf)
	done := make(chan struct{})
	go func() {
		defer close(out)
		in := sub.Channel()
		for {
			select {
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- &Message{Channel: msg.Channel, Payload: msg.Payload}:
				case <-done:
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				_ = sub.Close()
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}

func (b *redisBus) Close() error {
	return b.client.Close()
}
