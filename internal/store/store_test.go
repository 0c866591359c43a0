package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cryptex/internal/database"
	"cryptex/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) (*Store, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return New(db), db
}

func TestStore_Users(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	u := &models.User{Email: "a@x.com", PasswordHash: "hash", IsActive: true}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotZero(t, u.ID)

	err := s.CreateUser(ctx, &models.User{Email: "a@x.com", PasswordHash: "other"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	got, err := s.FindUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
	assert.True(t, got.IsActive)

	_, err = s.GetUser(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindUserByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Balances(t *testing.T) {
	s, db := setupStore(t)
	ctx := context.Background()

	btc := models.Coin{Index: "BTCUSDT", Abbreviation: "BTC"}
	doge := models.Coin{Index: "DOGEUSDT", Abbreviation: "DOGE"}
	require.NoError(t, db.Create(&btc).Error)
	require.NoError(t, db.Create(&doge).Error)

	coins, err := s.ListCoins(ctx)
	require.NoError(t, err)
	require.Len(t, coins, 2)

	b := &models.Balance{Amount: decimal.RequireFromString("0.5"), UserID: 1, CoinID: btc.ID}
	require.NoError(t, s.CreateBalance(ctx, b))
	require.NoError(t, s.CreateBalance(ctx, &models.Balance{Amount: decimal.NewFromInt(3), UserID: 2, CoinID: doge.ID}))

	list, err := s.ListBalances(ctx, 1, DateRange{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "BTC", list[0].Coin.Abbreviation)
	assert.True(t, decimal.RequireFromString("0.5").Equal(list[0].Amount))

	updated, err := s.UpdateBalance(ctx, b.ID, decimal.RequireFromString("1.25"), doge.ID)
	require.NoError(t, err)
	assert.Equal(t, "DOGE", updated.Coin.Abbreviation)
	assert.Equal(t, "1.25", models.FormatAmount(updated.Amount))

	_, err = s.UpdateBalance(ctx, 999, decimal.NewFromInt(1), doge.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetBalance(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteBalance(ctx, b.ID))
	require.NoError(t, s.DeleteBalance(ctx, b.ID), "deleting twice is a no-op")

	list, err = s.ListBalances(ctx, 1, DateRange{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_ListBalancesDateRange(t *testing.T) {
	s, db := setupStore(t)
	ctx := context.Background()

	coin := models.Coin{Index: "BTCUSDT", Abbreviation: "BTC"}
	require.NoError(t, db.Create(&coin).Error)

	day := func(d int) time.Time { return time.Date(2023, 3, d, 12, 0, 0, 0, time.Local) }
	for _, d := range []int{1, 5, 10} {
		b := models.Balance{Amount: decimal.NewFromInt(int64(d)), UserID: 1, CoinID: coin.ID, CreatedAt: day(d)}
		require.NoError(t, db.Create(&b).Error)
	}

	list, err := s.ListBalances(ctx, 1, DateRange{From: day(5)})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListBalances(ctx, 1, DateRange{To: day(5)})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListBalances(ctx, 1, DateRange{From: day(2), To: day(9)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "5", models.FormatAmount(list[0].Amount))
}
