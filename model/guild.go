package model

import "time"

// Membership ranks. Seeded rosters may carry other titles.
const (
	RankLeader = "Leader"
	RankMember = "Member"
)

// Index names double as the constraint identifiers reported by MySQL.
const (
	IndexGuildName       = "idx_guilds_name"
	IndexGuildMemberChar = "idx_guild_members_guild_char"
)

// Guild represents a player guild.
// MemberCount always equals the number of GuildMember rows for the guild.
type Guild struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"uniqueIndex:idx_guilds_name;size:64;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Leader      string `gorm:"size:64;not null" json:"leader"`
	MemberCount int    `gorm:"not null;default:1" json:"member_count"`
}

// GuildMember links a character name to a guild with a rank.
type GuildMember struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharacterName string    `gorm:"uniqueIndex:idx_guild_members_guild_char,priority:2;size:64;not null" json:"character_name"`
	GuildID       int64     `gorm:"uniqueIndex:idx_guild_members_guild_char,priority:1;not null" json:"guild_id"`
	Guild         *Guild    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Rank          string    `gorm:"size:32;not null;default:Member" json:"rank"`
	JoinDate      time.Time `gorm:"not null" json:"join_date"`
}
