package character_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/ashenguild/character"
	"github.com/kasuganosora/ashenguild/guild"
	"github.com/kasuganosora/ashenguild/model"
	"github.com/kasuganosora/ashenguild/store"
	"github.com/kasuganosora/ashenguild/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*character.Service, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	gw := store.New(db, store.Options{Timeout: 5 * time.Second}, zap.NewNop())
	return character.NewService(character.NewRepository(gw), zap.NewNop()), db
}

func TestCreateAndListCharacters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.CreateCharacter(ctx, "Solaire", 30)
	require.NoError(t, err)
	assert.Positive(t, a.ID)
	assert.Equal(t, 30, a.Level)
	_, err = svc.CreateCharacter(ctx, "Siegmeyer", 25)
	require.NoError(t, err)
	// Names are not unique.
	_, err = svc.CreateCharacter(ctx, "Solaire", 1)
	require.NoError(t, err)

	chars, err := svc.ListCharacters(ctx)
	require.NoError(t, err)
	require.Len(t, chars, 3)
	assert.Equal(t, "Solaire", chars[0].Name)
	assert.Equal(t, "Siegmeyer", chars[1].Name)
}

func TestListCharacters_EmptyIsNotNil(t *testing.T) {
	svc, _ := newService(t)
	chars, err := svc.ListCharacters(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, chars)
	assert.Empty(t, chars)

	items, err := svc.ListItems(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
}

func TestInventory(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	c, err := svc.CreateCharacter(ctx, "Artorias", 80)
	require.NoError(t, err)
	sword, err := svc.CreateItem(ctx, "Greatsword", "weapon")
	require.NoError(t, err)
	ring, err := svc.CreateItem(ctx, "Covenant Ring", "ring")
	require.NoError(t, err)

	inv, err := svc.Inventory(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Artorias", inv.Character.Name)
	assert.Empty(t, inv.Items)

	res, err := svc.AddItem(ctx, c.ID, ring.ID)
	require.NoError(t, err)
	assert.True(t, res.Added)
	assert.Equal(t, "Item 'Covenant Ring' added to character 'Artorias'", res.Message)
	_, err = svc.AddItem(ctx, c.ID, sword.ID)
	require.NoError(t, err)

	inv, err = svc.Inventory(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, inv.Items, 2)
	assert.Equal(t, sword.ID, inv.Items[0].ID)
	assert.Equal(t, "weapon", inv.Items[0].Type)
	assert.Equal(t, ring.ID, inv.Items[1].ID)
}

func TestAddItem_Idempotent(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	c, err := svc.CreateCharacter(ctx, "Gough", 60)
	require.NoError(t, err)
	bow, err := svc.CreateItem(ctx, "Dragonslayer Greatbow", "weapon")
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, c.ID, bow.ID)
	require.NoError(t, err)
	res, err := svc.AddItem(ctx, c.ID, bow.ID)
	require.NoError(t, err)
	assert.False(t, res.Added)
	assert.Contains(t, res.Message, "already carries")

	var n int64
	require.NoError(t, db.Model(&model.CharacterItem{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestAddItem_ConcurrentSamePair(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	c, err := svc.CreateCharacter(ctx, "Kaathe", 99)
	require.NoError(t, err)
	it, err := svc.CreateItem(ctx, "Darksign", "key")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	added := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.AddItem(ctx, c.ID, it.ID)
			if assert.NoError(t, err) {
				added <- res.Added
			}
		}()
	}
	wg.Wait()
	close(added)

	wins := 0
	for a := range added {
		if a {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	var rows int64
	require.NoError(t, db.Model(&model.CharacterItem{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestNotFound(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Inventory(ctx, 404)
	assert.Equal(t, guild.CodeNotFound, guild.CodeOf(err))
	assert.EqualError(t, err, "character not found")

	c, err := svc.CreateCharacter(ctx, "Patches", 20)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, c.ID, 404)
	assert.Equal(t, guild.CodeNotFound, guild.CodeOf(err))
	assert.EqualError(t, err, "item not found")

	_, err = svc.AddItem(ctx, 404, 1)
	assert.EqualError(t, err, "character not found")
}

func TestValidation(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"empty character name", func() error { _, err := svc.CreateCharacter(ctx, "  ", 1); return err }},
		{"zero level", func() error { _, err := svc.CreateCharacter(ctx, "Oscar", 0); return err }},
		{"level too high", func() error { _, err := svc.CreateCharacter(ctx, "Oscar", character.MaxLevel+1); return err }},
		{"long name", func() error {
			_, err := svc.CreateCharacter(ctx, longName(character.MaxNameLen+1), 1)
			return err
		}},
		{"empty item type", func() error { _, err := svc.CreateItem(ctx, "Estus", ""); return err }},
		{"long item type", func() error {
			_, err := svc.CreateItem(ctx, "Estus", longName(character.MaxItemTypeLen+1))
			return err
		}},
		{"bad character id", func() error { _, err := svc.Inventory(ctx, 0); return err }},
		{"bad item id", func() error { _, err := svc.AddItem(ctx, 1, -1); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, guild.CodeInvalidInput, guild.CodeOf(tc.call()))
		})
	}

	var n int64
	require.NoError(t, db.Model(&model.Character{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestStoreUnavailable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	conn, err := sqlDB.Conn(t.Context())
	require.NoError(t, err)
	defer conn.Close()

	gw := store.New(db, store.Options{Timeout: 50 * time.Millisecond}, nil)
	svc := character.NewService(character.NewRepository(gw), nil)
	assert.Equal(t, 50*time.Millisecond, svc.RetryAfter())

	_, err = svc.ListCharacters(context.Background())
	assert.Equal(t, guild.CodeStoreUnavailable, guild.CodeOf(err))
}

func longName(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
