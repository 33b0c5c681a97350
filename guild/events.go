package guild

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kasuganosora/ashenguild/model"
	"github.com/kasuganosora/ashenguild/pubsub"
	"go.uber.org/zap"
)

// EventsChannel is the pub/sub channel guild events are published on.
const EventsChannel = "guild_events"

const (
	EventGuildCreated = "guild.created"
	EventMemberJoined = "guild.member_joined"
)

// Event is the JSON payload published after a committed mutation.
type Event struct {
	Type       string             `json:"type"`
	OccurredAt time.Time          `json:"occurred_at"`
	Guild      *model.Guild       `json:"guild,omitempty"`
	Member     *model.GuildMember `json:"member,omitempty"`
}

// Publisher announces committed guild mutations. Delivery is best effort: a
// failed publish is logged and never fails the operation. A nil *Publisher
// discards events.
type Publisher struct {
	ps      pubsub.PubSub
	logger  *zap.Logger
	timeout time.Duration
}

// NewPublisher creates a Publisher on ps.
func NewPublisher(ps pubsub.PubSub, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{ps: ps, logger: logger, timeout: 2 * time.Second}
}

// GuildCreated publishes EventGuildCreated.
func (p *Publisher) GuildCreated(ctx context.Context, g *model.Guild) {
	p.publish(ctx, Event{Type: EventGuildCreated, Guild: g})
}

// MemberJoined publishes EventMemberJoined.
func (p *Publisher) MemberJoined(ctx context.Context, m *model.GuildMember) {
	p.publish(ctx, Event{Type: EventMemberJoined, Member: m})
}

func (p *Publisher) publish(ctx context.Context, ev Event) {
	if p == nil || p.ps == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("guild event encode failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	// The request context may already be cancelled once the response is out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.ps.Publish(ctx, EventsChannel, string(payload)); err != nil {
		p.logger.Warn("guild event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
