package main

import (
	"context"
	"flag"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deriv-connect/internal/config"
	"deriv-connect/internal/connection"
	"deriv-connect/internal/fetch"
	"deriv-connect/internal/store"
	"deriv-connect/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/connector.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting connector",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"endpoint", cfg.API.Endpoint,
		"app_id", cfg.API.AppID,
		"symbols", cfg.Gather.Symbols,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optional Postgres store for fetched data
	var candleStore *store.CandleStore
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		candleStore = store.NewCandleStore(pool, logger)
		logger.Info("database connected")
	}

	// Session manager
	mgr := connection.NewManager(managerConfig(cfg), logger)
	defer mgr.Close()

	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to establish session", "error", err)
		os.Exit(1)
	}

	session := mgr.Session()
	logger.Info("session established",
		"session_id", session.ID,
		"account", session.Account.Kind,
		"balance", session.Account.Balance,
		"currency", session.Account.Currency,
	)

	fetcher := fetch.New(fetchConfig(cfg), mgr, logger)

	// Persist tick pushes while subscriptions are active
	if candleStore != nil {
		go consumePushes(ctx, mgr, candleStore, logger)
	}

	// Subscribe configured symbols to keep live ticks flowing
	for _, symbol := range cfg.Gather.Symbols {
		if _, err := fetcher.SubscribeTicks(ctx, symbol); err != nil {
			logger.Warn("tick subscription failed", "symbol", symbol, "error", err)
		}
	}

	runGatherLoop(ctx, cfg, fetcher, candleStore, logger)

	logger.Info("connector stopped")
}

// managerConfig maps the loaded config onto the session layer.
func managerConfig(cfg *config.ConnectorConfig) connection.ManagerConfig {
	mc := connection.DefaultManagerConfig()
	mc.URL = cfg.API.Endpoint + "?app_id=" + url.QueryEscape(cfg.API.AppID)
	mc.Token = cfg.API.Token
	mc.AuthAttempts = cfg.Session.AuthAttempts
	mc.AuthRetryDelay = cfg.Session.AuthRetryDelay
	mc.RequestTimeout = cfg.Session.RequestTimeout
	mc.SendAttempts = cfg.Session.SendAttempts
	mc.PingInterval = cfg.Session.PingInterval
	mc.PingTimeout = cfg.Session.PingTimeout
	mc.PingFreshness = cfg.Session.PingFreshness
	mc.SilenceThreshold = cfg.Session.SilenceThreshold
	mc.FailureThreshold = uint(cfg.Session.FailureThreshold)
	mc.TimeoutThreshold = uint(cfg.Session.TimeoutThreshold)
	mc.MinDemoBalance = cfg.Session.MinDemoBalance
	mc.Backoff = connection.BackoffPolicy{
		Base:         cfg.Session.ReconnectBase,
		Max:          cfg.Session.ReconnectMax,
		JitterSpread: cfg.Session.ReconnectJitter,
		MaxAttempts:  uint(cfg.Session.ReconnectAttempts),
	}
	return mc
}

// fetchConfig maps the loaded config onto the fetch facade.
func fetchConfig(cfg *config.ConnectorConfig) fetch.Config {
	return fetch.Config{
		Cooldown:       cfg.Fetch.Cooldown,
		CacheTTL:       cfg.Fetch.CacheTTL,
		MaxRetries:     cfg.Fetch.MaxRetries,
		RetryDelay:     cfg.Fetch.RetryDelay,
		OverFetch:      cfg.Fetch.OverFetch,
		MinFillRatio:   cfg.Fetch.MinFillRatio,
		EscalateFactor: cfg.Fetch.EscalateFactor,
	}
}

// runGatherLoop periodically fetches the configured series and persists them.
func runGatherLoop(
	ctx context.Context,
	cfg *config.ConnectorConfig,
	fetcher *fetch.Fetcher,
	candleStore *store.CandleStore,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(cfg.Gather.Period)
	defer ticker.Stop()

	gather := func() {
		for _, symbol := range cfg.Gather.Symbols {
			series, err := fetcher.FetchSeries(ctx, symbol, cfg.Gather.Interval, cfg.Gather.Count, fetch.DefaultOptions())
			if err != nil {
				logger.Warn("fetch failed", "symbol", symbol, "error", err)
				continue
			}
			if series.Stale {
				logger.Warn("fetch returned stale data", "symbol", symbol, "fetched_at", series.FetchedAt)
				continue
			}
			if candleStore != nil {
				if err := candleStore.SaveSeries(ctx, series); err != nil {
					logger.Warn("persist failed", "symbol", symbol, "error", err)
				}
			}
		}
		// Drop cache entries nobody refreshed this cycle
		fetcher.Prune(cfg.Fetch.CacheTTL)
	}

	// Gather immediately on start
	gather()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gather()
		}
	}
}

// consumePushes drains the session push channel and persists tick frames.
func consumePushes(ctx context.Context, mgr *connection.Manager, candleStore *store.CandleStore, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-mgr.Pushes():
			if env.Tick == nil {
				continue
			}
			tick := env.Tick.ToTick(time.Now())
			if err := candleStore.SaveTick(ctx, tick); err != nil {
				logger.Warn("tick persist failed", "symbol", tick.Symbol, "error", err)
			}
		}
	}
}
