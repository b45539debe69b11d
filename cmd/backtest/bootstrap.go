package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"signal-backtest/internal/datasource"
	"signal-backtest/internal/engine"
	"signal-backtest/internal/engine/engineobs"
	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/provider"
	"signal-backtest/internal/recorder"
	"signal-backtest/internal/store"
	"signal-backtest/internal/tradelog"
)

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// initializeJournal opens the run journal and compresses old days.
func initializeJournal(ctx context.Context, cfg *store.Config) *tradelog.Journal {
	j := tradelog.New(cfg.Output.JournalDir)
	if err := j.CompressOlder(cfg.Output.JournalRetentionDays); err != nil {
		logger.Warn(ctx, "Failed to compress old journals", "error", err)
	}
	return j
}

// initializeRouter builds the provider chain and the router in front of it.
func initializeRouter(ctx context.Context, cfg *store.Config) (*datasource.Router, error) {
	sources, err := provider.Build(ctx, cfg, provider.CredentialsFromEnv())
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Provider.Name())
	}
	logger.Info(ctx, "Data providers ready", "mode", cfg.Mode, "chain", names)

	return datasource.NewRouter(sources,
		datasource.WithFetchTimeout(cfg.FetchTimeout()),
		datasource.WithCache(cfg.Cache.MaxEntries, cfg.CacheTTL()),
	)
}

// initializeEngine creates the runner with observability.
func initializeEngine(cfg *store.Config, fetcher interfaces.SeriesFetcher, journal interfaces.Journal) interfaces.Runner {
	eng := engine.New(cfg, fetcher, journal)
	return engineobs.Wrap(eng)
}

func initializeRecorder(ctx context.Context, cfg *store.Config) interfaces.RunRecorder {
	rec, err := recorder.Open(ctx, cfg.Output.SQLitePath)
	if err != nil {
		logger.Warn(ctx, "SQLite recorder unavailable, runs will not be persisted", "error", err)
		return recorder.NewNoopRecorder()
	}
	return rec
}

func exitOnError(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	logger.ErrorWithErr(ctx, msg, err)
	_ = logger.Shutdown(context.Background())
	os.Exit(1)
}
