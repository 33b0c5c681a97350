package model

import (
	"fmt"

	"gorm.io/gorm"
)

// BinaryCollation compares MySQL text byte for byte, so "Dup" and "dup" are
// distinct names.
const BinaryCollation = "utf8mb4_bin"

// allModels lists every model to be auto-migrated. Order matters: referenced
// tables come before the tables holding their foreign keys.
var allModels = []interface{}{
	&Guild{},
	&GuildMember{},
	&Character{},
	&Item{},
	&CharacterItem{},
	&AuditLog{},
}

type nameColumn struct {
	table, column, definition string
}

// caseSensitiveColumns back unique indexes that must treat case variants as
// different values.
var caseSensitiveColumns = []nameColumn{
	{"guilds", "name", "VARCHAR(64) NOT NULL"},
	{"guild_members", "character_name", "VARCHAR(64) NOT NULL"},
}

// AutoMigrate creates or updates all tables in the given database.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels...); err != nil {
		return err
	}
	if db.Dialector.Name() == "mysql" {
		return EnsureBinaryCollation(db)
	}
	return nil
}

// EnsureBinaryCollation switches the unique name columns to BinaryCollation.
// MySQL tables inherit the schema default, which is case-insensitive on a
// stock server. Columns already binary are left alone.
func EnsureBinaryCollation(db *gorm.DB) error {
	for _, c := range caseSensitiveColumns {
		var current string
		err := db.Raw(
			"SELECT COLLATION_NAME FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?",
			c.table, c.column).Scan(&current).Error
		if err != nil {
			return fmt.Errorf("collation of %s.%s: %w", c.table, c.column, err)
		}
		if current == BinaryCollation {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE `%s` MODIFY `%s` %s CHARACTER SET utf8mb4 COLLATE %s",
			c.table, c.column, c.definition, BinaryCollation)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("set collation of %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}
