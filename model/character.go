package model

// Character is a player character. Names are not unique; guild rosters refer
// to characters by name only.
type Character struct {
	ID    int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name  string `gorm:"size:64;not null" json:"name"`
	Level int    `gorm:"not null" json:"level"`
}

// Item is an entry in the shared item catalogue.
type Item struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:64;not null" json:"name"`
	Type string `gorm:"size:32;not null" json:"type"`
}

// CharacterItem records that a character carries an item. A character holds
// each item at most once.
type CharacterItem struct {
	CharacterID int64      `gorm:"primaryKey;autoIncrement:false" json:"character_id"`
	ItemID      int64      `gorm:"primaryKey;autoIncrement:false;index:idx_character_items_item" json:"item_id"`
	Character   *Character `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Item        *Item      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
