package character

import (
	"context"
	"errors"

	"github.com/kasuganosora/ashenguild/guild"
	"github.com/kasuganosora/ashenguild/model"
	"github.com/kasuganosora/ashenguild/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Failures share the guild error taxonomy so transports map them the same way.
var (
	ErrCharacterNotFound = &guild.Error{Code: guild.CodeNotFound, Message: "character not found"}
	ErrItemNotFound      = &guild.Error{Code: guild.CodeNotFound, Message: "item not found"}
)

// Repository is the data-access layer for characters, items and inventories.
type Repository struct {
	gw *store.Gateway
}

// NewRepository creates a Repository over gw.
func NewRepository(gw *store.Gateway) *Repository {
	return &Repository{gw: gw}
}

// ListCharacters returns every character in insertion order.
func (r *Repository) ListCharacters(ctx context.Context) ([]model.Character, error) {
	chars := []model.Character{}
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.Wrap(tx.DB().Order("id").Find(&chars).Error)
	})
	if err != nil {
		return nil, translate(err)
	}
	return chars, nil
}

// CreateCharacter inserts a character.
func (r *Repository) CreateCharacter(ctx context.Context, name string, level int) (*model.Character, error) {
	c := model.Character{Name: name, Level: level}
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.Wrap(tx.DB().Create(&c).Error)
	})
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// CharacterItems returns a character and the items it carries, ordered by
// item id.
func (r *Repository) CharacterItems(ctx context.Context, characterID int64) (*model.Character, []model.Item, error) {
	var c model.Character
	items := []model.Item{}
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		if err := first(tx, &c, characterID, ErrCharacterNotFound); err != nil {
			return err
		}
		return tx.Wrap(tx.DB().
			Joins("JOIN character_items ON character_items.item_id = items.id").
			Where("character_items.character_id = ?", characterID).
			Order("items.id").
			Find(&items).Error)
	})
	if err != nil {
		return nil, nil, translate(err)
	}
	return &c, items, nil
}

// AddItem gives the item to the character. Giving an item the character
// already holds changes nothing and reports added=false.
func (r *Repository) AddItem(ctx context.Context, characterID, itemID int64) (c *model.Character, it *model.Item, added bool, err error) {
	c, it = &model.Character{}, &model.Item{}
	err = r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		if err := first(tx, c, characterID, ErrCharacterNotFound); err != nil {
			return err
		}
		if err := first(tx, it, itemID, ErrItemNotFound); err != nil {
			return err
		}
		res := tx.DB().Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.CharacterItem{CharacterID: characterID, ItemID: itemID})
		if res.Error != nil {
			return tx.Wrap(res.Error)
		}
		added = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, nil, false, translate(err)
	}
	return c, it, added, nil
}

// ListItems returns the item catalogue in insertion order.
func (r *Repository) ListItems(ctx context.Context) ([]model.Item, error) {
	items := []model.Item{}
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.Wrap(tx.DB().Order("id").Find(&items).Error)
	})
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// CreateItem adds an item to the catalogue.
func (r *Repository) CreateItem(ctx context.Context, name, itemType string) (*model.Item, error) {
	it := model.Item{Name: name, Type: itemType}
	err := r.gw.WithTransaction(ctx, func(tx *store.Tx) error {
		return tx.Wrap(tx.DB().Create(&it).Error)
	})
	if err != nil {
		return nil, translate(err)
	}
	return &it, nil
}

func first(tx *store.Tx, dest interface{}, id int64, missing error) error {
	if err := tx.DB().First(dest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return missing
		}
		return tx.Wrap(err)
	}
	return nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var e *guild.Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, store.ErrStoreUnavailable) {
		return &guild.Error{Code: guild.CodeStoreUnavailable, Message: "character store unavailable", Err: err}
	}
	return &guild.Error{Code: guild.CodeInternal, Message: "character store failure", Err: err}
}
