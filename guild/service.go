package guild

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/ashenguild/metrics"
	"github.com/kasuganosora/ashenguild/model"
	"go.uber.org/zap"
)

// Field limits, matching the column sizes in model.
const (
	MaxNameLen        = 64
	MaxDescriptionLen = 2000
)

// Operation names used in logs, metrics and events.
const (
	OpListGuilds  = "list_guilds"
	OpGetGuild    = "get_guild"
	OpCreateGuild = "create_guild"
	OpJoinGuild   = "join_guild"
	OpListMembers = "list_members"
)

// JoinResult is the outcome of a successful JoinGuild.
type JoinResult struct {
	Membership model.GuildMember `json:"membership"`
	Message    string            `json:"message"`
}

// Service is the single entry point transports call. It validates request
// shape, delegates to the Repository and reports outcomes in the guild error
// taxonomy. It holds no mutable state of its own.
type Service struct {
	repo      *Repository
	publisher *Publisher
	logger    *zap.Logger
}

// NewService creates a Service. publisher may be nil.
func NewService(repo *Repository, publisher *Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// ListGuilds returns every guild.
func (s *Service) ListGuilds(ctx context.Context) (guilds []model.Guild, err error) {
	defer s.observe(OpListGuilds, time.Now(), &err)
	return s.repo.ListGuilds(ctx)
}

// GetGuild returns one guild or ErrNotFound.
func (s *Service) GetGuild(ctx context.Context, id int64) (g *model.Guild, err error) {
	defer s.observe(OpGetGuild, time.Now(), &err)
	if err = validateID(id); err != nil {
		return nil, err
	}
	return s.repo.GetGuild(ctx, id)
}

// CreateGuild founds a guild led by leader, who becomes its first member.
func (s *Service) CreateGuild(ctx context.Context, name, description, leader string) (g *model.Guild, err error) {
	defer s.observe(OpCreateGuild, time.Now(), &err)
	if err = validateName("name", name); err != nil {
		return nil, err
	}
	if err = validateName("leader", leader); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLen {
		return nil, invalidInput("description exceeds %d characters", MaxDescriptionLen)
	}

	g, err = s.repo.CreateGuild(ctx, name, description, leader)
	if err != nil {
		return nil, err
	}
	s.logger.Info("guild created",
		zap.Int64("guild_id", g.ID), zap.String("name", g.Name), zap.String("leader", g.Leader))
	s.publisher.GuildCreated(ctx, g)
	return g, nil
}

// JoinGuild adds characterName to the guild as a Member.
func (s *Service) JoinGuild(ctx context.Context, guildID int64, characterName string) (res *JoinResult, err error) {
	defer s.observe(OpJoinGuild, time.Now(), &err)
	if err = validateID(guildID); err != nil {
		return nil, err
	}
	if err = validateName("character_name", characterName); err != nil {
		return nil, err
	}

	m, err := s.repo.JoinGuild(ctx, guildID, characterName)
	if err != nil {
		return nil, err
	}
	s.logger.Info("guild member joined",
		zap.Int64("guild_id", guildID), zap.String("character_name", characterName))
	s.publisher.MemberJoined(ctx, m)
	return &JoinResult{
		Membership: *m,
		Message:    fmt.Sprintf("Character %s joined guild successfully", characterName),
	}, nil
}

// ListMembers returns the roster of a guild; unknown guilds have none.
func (s *Service) ListMembers(ctx context.Context, guildID int64) (members []model.GuildMember, err error) {
	defer s.observe(OpListMembers, time.Now(), &err)
	if err = validateID(guildID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, guildID)
}

// RetryAfter is how long a caller should wait before retrying a request that
// failed with StoreUnavailable.
func (s *Service) RetryAfter() time.Duration { return s.repo.gw.Timeout() }

// CheckConsistency reports guilds whose member_count drifted from their rosters.
func (s *Service) CheckConsistency(ctx context.Context) ([]CountDrift, error) {
	drifts, err := s.repo.CheckMemberCounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		s.logger.Warn("guild member_count drift",
			zap.Int64("guild_id", d.GuildID),
			zap.String("name", d.Name),
			zap.Int("member_count", d.MemberCount),
			zap.Int("actual_count", d.ActualCount))
	}
	return drifts, nil
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	err := *errp
	code := string(CodeOf(err))
	if code == "" {
		code = "OK"
	}
	metrics.RecordGuildOperation(op, code, time.Since(start))
	switch CodeOf(err) {
	case "", CodeInvalidInput, CodeNotFound, CodeGuildNotFound, CodeDuplicateName, CodeAlreadyMember:
	case CodeStoreUnavailable:
		s.logger.Warn("guild operation: store unavailable", zap.String("op", op), zap.Error(err))
	default:
		s.logger.Error("guild operation failed", zap.String("op", op), zap.Error(err))
	}
}

func validateID(id int64) error {
	if id <= 0 {
		return invalidInput("guild_id must be a positive integer")
	}
	return nil
}

func validateName(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalidInput("%s is required", field)
	}
	if !utf8.ValidString(v) {
		return invalidInput("%s must be valid UTF-8", field)
	}
	if utf8.RuneCountInString(v) > MaxNameLen {
		return invalidInput("%s exceeds %d characters", field, MaxNameLen)
	}
	return nil
}
