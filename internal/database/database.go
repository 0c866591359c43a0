package database

import (
	"fmt"
	"strings"

	"cryptex/internal/config"
	"cryptex/internal/models"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the database named by the DSN and migrates the schema.
// postgres:// and postgresql:// URLs go through lib/pq; anything else is treated
// as a sqlite file name or URI.
func NewDatabase(cfg config.Database) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func dialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn})
	}
	return sqlite.Open(dsn)
}

// AutoMigrate creates or updates the tables for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Coin{}, &models.Balance{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// SeedCoins makes the coins table match the given list. Coins are matched by
// price index; coins no longer listed are removed together with their balances.
func SeedCoins(db *gorm.DB, coins []config.CoinConfig) error {
	return db.Transaction(func(tx *gorm.DB) error {
		keep := make([]string, 0, len(coins))
		for _, c := range coins {
			coin := models.Coin{Index: c.Index}
			if err := tx.Where(models.Coin{Index: c.Index}).
				Assign(models.Coin{Abbreviation: c.Abbreviation}).
				FirstOrCreate(&coin).Error; err != nil {
				return fmt.Errorf("failed to populate coin '%s': %w", c.Index, err)
			}
			keep = append(keep, c.Index)
		}

		stale := tx.Model(&models.Coin{}).Select("id")
		if len(keep) > 0 {
			stale = stale.Where("price_index NOT IN ?", keep)
		}
		if err := tx.Where("coin_id IN (?)", stale).Delete(&models.Balance{}).Error; err != nil {
			return fmt.Errorf("failed to remove balances of stale coins: %w", err)
		}

		remove := tx.Where("1 = 1")
		if len(keep) > 0 {
			remove = tx.Where("price_index NOT IN ?", keep)
		}
		if err := remove.Delete(&models.Coin{}).Error; err != nil {
			return fmt.Errorf("failed to remove stale coins: %w", err)
		}
		return nil
	})
}
