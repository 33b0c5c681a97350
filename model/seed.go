package model

import (
	"time"

	"gorm.io/gorm"
)

type sampleGuild struct {
	guild   Guild
	members []GuildMember
}

func day(d int) time.Time { return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC) }

var sampleGuilds = []sampleGuild{
	{
		guild: Guild{Name: "Covenant of Artorias", Description: "Protectors of the realm against the Abyss", Leader: "Artorias"},
		members: []GuildMember{
			{CharacterName: "Artorias", Rank: RankLeader, JoinDate: day(1)},
			{CharacterName: "Sif", Rank: "Guardian", JoinDate: day(2)},
			{CharacterName: "Ciaran", Rank: "Assassin", JoinDate: day(3)},
			{CharacterName: "Gough", Rank: "Archer", JoinDate: day(4)},
			{CharacterName: "Solaire", Rank: "Knight", JoinDate: day(5)},
		},
	},
	{
		guild: Guild{Name: "Lords of Cinder", Description: "United to link the First Flame", Leader: "Gwyn"},
		members: []GuildMember{
			{CharacterName: "Gwyn", Rank: RankLeader, JoinDate: day(1)},
			{CharacterName: "Ornstein", Rank: "Captain", JoinDate: day(2)},
			{CharacterName: "Smough", Rank: "Executioner", JoinDate: day(3)},
			{CharacterName: "Gwyndolin", Rank: "Sorcerer", JoinDate: day(4)},
		},
	},
	{
		guild: Guild{Name: "Dragon Slayers", Description: "Hunters of ancient dragons", Leader: "Ornstein"},
		members: []GuildMember{
			{CharacterName: "Ornstein", Rank: RankLeader, JoinDate: day(1)},
			{CharacterName: "Dragonslayer Armour", Rank: "Elite", JoinDate: day(2)},
			{CharacterName: "Kalameet Hunter", Rank: "Veteran", JoinDate: day(3)},
		},
	},
}

// SeedSample inserts the sample guilds and rosters when the guilds table is
// empty. It reports whether anything was inserted.
func SeedSample(db *gorm.DB) (bool, error) {
	seeded := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Guild{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for _, s := range sampleGuilds {
			g := s.guild
			g.MemberCount = len(s.members)
			if err := tx.Create(&g).Error; err != nil {
				return err
			}
			members := make([]GuildMember, len(s.members))
			for i, m := range s.members {
				m.GuildID = g.ID
				members[i] = m
			}
			if err := tx.Create(&members).Error; err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	return seeded, err
}
