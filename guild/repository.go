package guild

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/ashenguild/model"
	"github.com/kasuganosora/ashenguild/store"
	"gorm.io/gorm"
)

// Constraint identifiers as reported by SQLite ("table.column") and MySQL
// (index name).
var (
	guildNameConstraint  = []string{model.IndexGuildName, "guilds.name"}
	membershipConstraint = []string{model.IndexGuildMemberChar, "guild_members.character_name"}
)

// CountDrift describes a guild whose cached member_count disagrees with its
// membership rows.
type CountDrift struct {
	GuildID     int64  `json:"guild_id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
	ActualCount int    `json:"actual_count"`
}

// Repository is the typed data-access layer for guilds and memberships.
// Every method runs in exactly one transaction on the Gateway.
type Repository struct {
	gw  *store.Gateway
	now func() time.Time
}

// NewRepository creates a Repository over gw.
func NewRepository(gw *store.Gateway) *Repository {
	return &Repository{gw: gw, now: time.Now}
}

// ListGuilds returns all guilds in insertion order.
func (r *Repository) ListGuilds(ctx context.Context) ([]model.Guild, error) {
	guilds := []model.Guild{}
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.Wrap(tx.DB().Order("id").Find(&guilds).Error)
	})
	if err != nil {
		return nil, translate(err)
	}
	return guilds, nil
}

// GetGuild returns the guild with id or ErrNotFound.
func (r *Repository) GetGuild(ctx context.Context, id int64) (*model.Guild, error) {
	var g model.Guild
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		if err := tx.DB().First(&g, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return tx.Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

// CreateGuild inserts the guild with member_count 1 together with its leader's
// membership. A taken name yields ErrDuplicateName and nothing is written.
func (r *Repository) CreateGuild(ctx context.Context, name, description, leader string) (*model.Guild, error) {
	var g model.Guild
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		g = model.Guild{
			Name:        name,
			Description: description,
			Leader:      leader,
			MemberCount: 1,
		}
		if err := tx.Wrap(tx.DB().Create(&g).Error); err != nil {
			return mapConstraint(err)
		}
		m := model.GuildMember{
			CharacterName: leader,
			GuildID:       g.ID,
			Rank:          model.RankLeader,
			JoinDate:      r.now(),
		}
		if err := tx.Wrap(tx.DB().Create(&m).Error); err != nil {
			return mapConstraint(err)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

// JoinGuild appends characterName to the guild roster as a Member and bumps
// member_count in the same transaction.
func (r *Repository) JoinGuild(ctx context.Context, guildID int64, characterName string) (*model.GuildMember, error) {
	var m model.GuildMember
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		var exists int64
		if err := tx.Query(&exists, "SELECT COUNT(*) FROM guilds WHERE id = ?", guildID); err != nil {
			return err
		}
		if exists == 0 {
			return ErrGuildNotFound
		}

		var dup int64
		if err := tx.Query(&dup,
			"SELECT COUNT(*) FROM guild_members WHERE guild_id = ? AND character_name = ?",
			guildID, characterName); err != nil {
			return err
		}
		if dup > 0 {
			return ErrAlreadyMember
		}

		m = model.GuildMember{
			CharacterName: characterName,
			GuildID:       guildID,
			Rank:          model.RankMember,
			JoinDate:      r.now(),
		}
		if err := tx.Wrap(tx.DB().Create(&m).Error); err != nil {
			return mapConstraint(err)
		}

		n, err := tx.Exec("UPDATE guilds SET member_count = member_count + 1 WHERE id = ?", guildID)
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrGuildNotFound
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// ListMembers returns the roster of guildID in insertion order. An unknown
// guild has an empty roster.
func (r *Repository) ListMembers(ctx context.Context, guildID int64) ([]model.GuildMember, error) {
	members := []model.GuildMember{}
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.Wrap(tx.DB().Where("guild_id = ?", guildID).Order("id").Find(&members).Error)
	})
	if err != nil {
		return nil, translate(err)
	}
	return members, nil
}

// CheckMemberCounts reports every guild whose member_count differs from its
// membership row count. It only reads.
func (r *Repository) CheckMemberCounts(ctx context.Context) ([]CountDrift, error) {
	drifts := []CountDrift{}
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.Query(&drifts, `
			SELECT g.id AS guild_id, g.name AS name, g.member_count AS member_count, COUNT(m.id) AS actual_count
			FROM guilds g
			LEFT JOIN guild_members m ON m.guild_id = g.id
			GROUP BY g.id, g.name, g.member_count
			HAVING g.member_count <> COUNT(m.id)
			ORDER BY g.id`)
	})
	if err != nil {
		return nil, translate(err)
	}
	return drifts, nil
}

func mapConstraint(err error) error {
	var cv *store.ConstraintViolation
	if !errors.As(err, &cv) {
		return err
	}
	switch {
	case cv.Kind == store.ConstraintUnique && cv.Matches(guildNameConstraint...):
		return &Error{Code: CodeDuplicateName, Message: ErrDuplicateName.Message, Err: err}
	case cv.Kind == store.ConstraintUnique && cv.Matches(membershipConstraint...):
		return &Error{Code: CodeAlreadyMember, Message: ErrAlreadyMember.Message, Err: err}
	case cv.Kind == store.ConstraintForeignKey:
		return &Error{Code: CodeGuildNotFound, Message: ErrGuildNotFound.Message, Err: err}
	}
	return err
}
