// Package character serves the character roster and item catalogue that sit
// beside guilds: characters, the items they carry, and the catalogue itself.
package character

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/ashenguild/guild"
	"github.com/kasuganosora/ashenguild/metrics"
	"github.com/kasuganosora/ashenguild/model"
	"go.uber.org/zap"
)

// Field limits, matching the column sizes in model.
const (
	MaxNameLen     = 64
	MaxItemTypeLen = 32
	MaxLevel       = 999
)

// Operation names used in logs and metrics.
const (
	OpListCharacters  = "list_characters"
	OpCreateCharacter = "create_character"
	OpCharacterItems  = "character_items"
	OpAddItem         = "add_item"
	OpListItems       = "list_items"
	OpCreateItem      = "create_item"
)

// Inventory is a character together with the items it carries.
type Inventory struct {
	Character model.Character `json:"character"`
	Items     []model.Item    `json:"items"`
}

// AddItemResult is the outcome of a successful AddItem.
type AddItemResult struct {
	Character model.Character `json:"character"`
	Item      model.Item      `json:"item"`
	Added     bool            `json:"added"`
	Message   string          `json:"message"`
}

// Service validates requests and delegates to the Repository.
type Service struct {
	repo   *Repository
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(repo *Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// RetryAfter is how long a caller should wait after StoreUnavailable.
func (s *Service) RetryAfter() time.Duration { return s.repo.gw.Timeout() }

// ListCharacters returns every character.
func (s *Service) ListCharacters(ctx context.Context) (chars []model.Character, err error) {
	defer s.observe(OpListCharacters, &err)
	return s.repo.ListCharacters(ctx)
}

// CreateCharacter adds a character at the given level.
func (s *Service) CreateCharacter(ctx context.Context, name string, level int) (c *model.Character, err error) {
	defer s.observe(OpCreateCharacter, &err)
	if err = validateText("name", name, MaxNameLen); err != nil {
		return nil, err
	}
	if level < 1 || level > MaxLevel {
		return nil, invalidInput("level must be between 1 and %d", MaxLevel)
	}
	c, err = s.repo.CreateCharacter(ctx, name, level)
	if err != nil {
		return nil, err
	}
	s.logger.Info("character created", zap.Int64("character_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

// Inventory returns a character and its items.
func (s *Service) Inventory(ctx context.Context, characterID int64) (inv *Inventory, err error) {
	defer s.observe(OpCharacterItems, &err)
	if err = validateID("character_id", characterID); err != nil {
		return nil, err
	}
	c, items, err := s.repo.CharacterItems(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return &Inventory{Character: *c, Items: items}, nil
}

// AddItem gives an item to a character. It is idempotent.
func (s *Service) AddItem(ctx context.Context, characterID, itemID int64) (res *AddItemResult, err error) {
	defer s.observe(OpAddItem, &err)
	if err = validateID("character_id", characterID); err != nil {
		return nil, err
	}
	if err = validateID("item_id", itemID); err != nil {
		return nil, err
	}
	c, it, added, err := s.repo.AddItem(ctx, characterID, itemID)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("Item '%s' added to character '%s'", it.Name, c.Name)
	if added {
		s.logger.Info("item added", zap.Int64("character_id", c.ID), zap.Int64("item_id", it.ID))
	} else {
		msg = fmt.Sprintf("Character '%s' already carries item '%s'", c.Name, it.Name)
	}
	return &AddItemResult{Character: *c, Item: *it, Added: added, Message: msg}, nil
}

// ListItems returns the item catalogue.
func (s *Service) ListItems(ctx context.Context) (items []model.Item, err error) {
	defer s.observe(OpListItems, &err)
	return s.repo.ListItems(ctx)
}

// CreateItem adds an item to the catalogue.
func (s *Service) CreateItem(ctx context.Context, name, itemType string) (it *model.Item, err error) {
	defer s.observe(OpCreateItem, &err)
	if err = validateText("name", name, MaxNameLen); err != nil {
		return nil, err
	}
	if err = validateText("type", itemType, MaxItemTypeLen); err != nil {
		return nil, err
	}
	it, err = s.repo.CreateItem(ctx, name, itemType)
	if err != nil {
		return nil, err
	}
	s.logger.Info("item created", zap.Int64("item_id", it.ID), zap.String("name", it.Name))
	return it, nil
}

func (s *Service) observe(op string, errp *error) {
	err := *errp
	code := string(guild.CodeOf(err))
	if code == "" {
		code = "OK"
	}
	metrics.RecordCharacterOperation(op, code)
	switch guild.CodeOf(err) {
	case "", guild.CodeInvalidInput, guild.CodeNotFound:
	case guild.CodeStoreUnavailable:
		s.logger.Warn("character operation: store unavailable", zap.String("op", op), zap.Error(err))
	default:
		s.logger.Error("character operation failed", zap.String("op", op), zap.Error(err))
	}
}

func invalidInput(format string, args ...interface{}) *guild.Error {
	return &guild.Error{Code: guild.CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func validateID(field string, id int64) error {
	if id <= 0 {
		return invalidInput("%s must be a positive integer", field)
	}
	return nil
}

func validateText(field, v string, max int) error {
	if strings.TrimSpace(v) == "" {
		return invalidInput("%s is required", field)
	}
	if !utf8.ValidString(v) {
		return invalidInput("%s must be valid UTF-8", field)
	}
	if utf8.RuneCountInString(v) > max {
		return invalidInput("%s exceeds %d characters", field, max)
	}
	return nil
}
