package main

import (
	"fmt"
	"os"

	"cryptex/internal/config"
	"cryptex/internal/database"
	"cryptex/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := database.SeedCoins(db, cfg.Coins); err != nil {
		log.Fatal("Failed to seed coins", zap.Error(err))
	}

	for _, c := range cfg.Coins {
		log.Info("Coin available", zap.String("abbreviation", c.Abbreviation), zap.String("index", c.Index))
	}
	log.Info("Coins seeded", zap.Int("count", len(cfg.Coins)))
}
