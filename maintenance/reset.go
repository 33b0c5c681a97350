// Package maintenance holds destructive operator actions. Nothing in the
// service calls it; cmd/resetdb is the only entry point.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/kasuganosora/ashenguild/model"
	"gorm.io/gorm"
)

// Cleared reports how many rows ClearGuildData removed.
type Cleared struct {
	Members int64
	Guilds  int64
}

// ClearGuildData deletes every membership and guild in one transaction. On
// SQLite the AUTOINCREMENT counters are reset as well so ids restart at 1.
// The schema is left in place.
func ClearGuildData(ctx context.Context, db *gorm.DB) (Cleared, error) {
	var out Cleared
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.GuildMember{})
		if res.Error != nil {
			return fmt.Errorf("delete guild_members: %w", res.Error)
		}
		out.Members = res.RowsAffected

		res = tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Guild{})
		if res.Error != nil {
			return fmt.Errorf("delete guilds: %w", res.Error)
		}
		out.Guilds = res.RowsAffected

		return resetSequences(tx, "guilds", "guild_members")
	})
	return out, err
}

// ClearedCharacters reports how many rows ClearCharacterData removed.
type ClearedCharacters struct {
	Holdings   int64
	Characters int64
	Items      int64
}

// ClearCharacterData deletes every inventory entry, character and item in one
// transaction, resetting SQLite AUTOINCREMENT counters like ClearGuildData.
func ClearCharacterData(ctx context.Context, db *gorm.DB) (ClearedCharacters, error) {
	var out ClearedCharacters
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		res := all.Delete(&model.CharacterItem{})
		if res.Error != nil {
			return fmt.Errorf("delete character_items: %w", res.Error)
		}
		out.Holdings = res.RowsAffected

		if res = all.Delete(&model.Character{}); res.Error != nil {
			return fmt.Errorf("delete characters: %w", res.Error)
		}
		out.Characters = res.RowsAffected

		if res = all.Delete(&model.Item{}); res.Error != nil {
			return fmt.Errorf("delete items: %w", res.Error)
		}
		out.Items = res.RowsAffected

		return resetSequences(tx, "characters", "items")
	})
	return out, err
}

// resetSequences restarts SQLite AUTOINCREMENT ids for tables. Other dialects
// are left alone.
func resetSequences(tx *gorm.DB, tables ...string) error {
	if tx.Dialector.Name() != "sqlite" {
		return nil
	}
	var hasSeq int64
	if err := tx.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'").
		Scan(&hasSeq).Error; err != nil {
		return err
	}
	if hasSeq == 0 {
		return nil
	}
	return tx.Exec("DELETE FROM sqlite_sequence WHERE name IN ?", tables).Error
}

// RemoveDatabaseFile deletes a SQLite database file together with its WAL
// sidecars. A missing file is reported through removed=false, not as an error.
func RemoveDatabaseFile(path string) (removed bool, err error) {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	for _, side := range []string{path + "-wal", path + "-shm"} {
		if err := os.Remove(side); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return true, err
		}
	}
	return true, nil
}
