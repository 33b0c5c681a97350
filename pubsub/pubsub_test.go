package pubsub

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *Message) *Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestNew_Local(t *testing.T) {
	ps, err := New(Config{})
	require.NoError(t, err)
	defer ps.Close()

	ctx := context.Background()
	ch, cancel, err := ps.Subscribe(ctx, "guild_events")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "guild_events", `{"type":"guild.created"}`))
	msg := receive(t, ch)
	assert.Equal(t, "guild_events", msg.Channel)
	assert.Equal(t, `{"type":"guild.created"}`, msg.Payload)
}

func TestNew_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ps, err := New(Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer ps.Close()

	ctx := context.Background()
	ch, cancel, err := ps.Subscribe(ctx, "guild_events")
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, "guild_events", "joined"))
	msg := receive(t, ch)
	assert.Equal(t, "guild_events", msg.Channel)
	assert.Equal(t, "joined", msg.Payload)

	cancel()
	cancel()
	assert.True(t, closedWithin(ch, 2*time.Second), "channel not closed after cancel")
}

func TestNew_RedisContextEndsSubscription(t *testing.T) {
	mr := miniredis.RunT(t)
	ps, err := New(Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, unsub, err := ps.Subscribe(ctx, "guild_events")
	require.NoError(t, err)
	defer unsub()

	cancel()
	assert.True(t, closedWithin(ch, 2*time.Second))
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = New(Config{RedisAddr: addr})
	assert.Error(t, err)
}
