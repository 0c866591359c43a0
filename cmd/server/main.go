package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptex/internal/accounts"
	"cryptex/internal/api"
	"cryptex/internal/apiclient"
	"cryptex/internal/binance"
	"cryptex/internal/config"
	"cryptex/internal/database"
	"cryptex/internal/logger"
	"cryptex/internal/metrics"
	"cryptex/internal/server"
	"cryptex/internal/session"
	"cryptex/internal/store"
	"cryptex/internal/web"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	if cfg.Session.Secret == "test_secret" || cfg.Session.Secret == "change-me" {
		log.Warn("Using the default session secret, set SESSION_SECRET in production")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize Binance REST client. Prices are looked up per request, so an
	// unreachable exchange only degrades valuations.
	restClient := binance.NewRestClient(&cfg.Binance, log)
	checkCtx, cancelCheck := context.WithTimeout(context.Background(), cfg.Binance.Timeout)
	if _, err := restClient.GetServerTime(checkCtx); err != nil {
		log.Warn("Failed to connect to Binance API", zap.Error(err))
	} else {
		log.Info("Successfully connected to Binance API.")
	}
	cancelCheck()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// The price lookup must give up before the pages stop waiting for the
	// listing, or they would show nothing instead of unvalued balances.
	lookupTimeout := cfg.Binance.LookupTimeout
	if lookupTimeout <= 0 || lookupTimeout >= cfg.Server.APITimeout {
		lookupTimeout = cfg.Server.APITimeout * 3 / 5
		log.Warn("binance.lookup_timeout must be below server.api_timeout, adjusted",
			zap.Duration("lookup_timeout", lookupTimeout), zap.Duration("api_timeout", cfg.Server.APITimeout))
	}

	st := store.New(db)
	apiHandler := api.NewHandler(st, accounts.NewService(st, log), restClient, m, log, cfg.Server.PublicURL,
		api.WithPriceTimeout(lookupTimeout))

	// Pages reach the REST layer on a fixed address, never one derived from
	// the visitor's Host header.
	apiBase := cfg.Server.PublicURL
	if apiBase == "" {
		apiBase = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}
	sessions := session.NewManager(cfg.Session, log)
	client := apiclient.New(apiBase, cfg.Server.APITimeout, log)
	pages, err := web.NewHandler(sessions, client, cfg.Session.IdentityTTL, log)
	if err != nil {
		log.Fatal("Failed to set up pages", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := server.New(cfg.Server.Port, server.Deps{
		API:      apiHandler,
		Web:      pages,
		Metrics:  m,
		Gatherer: reg,
	}, log)
	if err != nil {
		log.Fatal("Failed to build server", zap.Error(err))
	}
	srv.Start()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error("Failed to stop server", zap.Error(err))
	}

	log.Info("Server has been shut down.")
}
