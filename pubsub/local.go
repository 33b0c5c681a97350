package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultLocalBuf = 256

type localSub struct {
	ch       chan *Message
	channels []string
	once     sync.Once
}

// localBus delivers messages to subscribers in this process. Publish never
// blocks: a full subscriber buffer drops the message and bumps dropped.
type localBus struct {
	mu      sync.RWMutex
	subs    map[string]map[*localSub]struct{}
	bufSize int
	closed  bool
	dropped atomic.Int64
}

func newLocalBus(bufSize int) *localBus {
	if bufSize <= 0 {
		bufSize = defaultLocalBuf
	}
	return &localBus{subs: make(map[string]map[*localSub]struct{}), bufSize: bufSize}
}

func (b *localBus) Publish(_ context.Context, channel, message string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	msg := &Message{Channel: channel, Payload: message}
	for s := range b.subs[channel] {
		select {
		case s.ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

func (b *localBus) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	s := &localSub{ch: make(chan *Message, b.bufSize), channels: channels}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrClosed
	}
	for _, c := range channels {
		set := b.subs[c]
		if set == nil {
			set = make(map[*localSub]struct{})
			b.subs[c] = set
		}
		set[s] = struct{}{}
	}
	b.mu.Unlock()

	cancel := func() { b.unsubscribe(s) }
	stop := context.AfterFunc(ctx, cancel)
	return s.ch, func() { stop(); cancel() }, nil
}

func (b *localBus) unsubscribe(s *localSub) {
	s.once.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, c := range s.channels {
			if set := b.subs[c]; set != nil {
				delete(set, s)
				if len(set) == 0 {
					delete(b.subs, c)
				}
			}
		}
		close(s.ch)
	})
}

// Close ends every live subscription.
func (b *localBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*localSub
	seen := make(map[*localSub]struct{})
	for _, set := range b.subs {
		for s := range set {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				all = append(all, s)
			}
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		b.unsubscribe(s)
	}
	return nil
}

func (b *localBus) subscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}
