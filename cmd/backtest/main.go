package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"signal-backtest/internal/logger"
	"signal-backtest/internal/report"
	"signal-backtest/internal/signals"
	"signal-backtest/internal/store"
	"signal-backtest/internal/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	signalsPath := flag.String("signals", "", "trade list CSV (overrides signals.path)")
	offline := flag.Bool("offline", false, "use only the synthetic provider")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	exitOnError(ctx, "Configuration error", err)
	if *offline {
		cfg.Mode = store.ModeOffline
	}
	if *signalsPath != "" {
		cfg.Signals.Path = *signalsPath
	}
	if cfg.Signals.Path == "" {
		exitOnError(ctx, "Configuration error", fmt.Errorf("%w: no signals file given", types.ErrConfiguration))
	}

	loaded, err := signals.LoadFile(cfg.Signals.Path, cfg.Signals.TimeLayout)
	exitOnError(ctx, "Failed to load signals", err)
	if loaded.Dropped > 0 {
		logger.Warn(ctx, "Dropped malformed signal rows", "dropped", loaded.Dropped)
	}
	logger.Info(ctx, "Signals loaded", "path", cfg.Signals.Path, "count", len(loaded.Signals))

	router, err := initializeRouter(ctx, cfg)
	exitOnError(ctx, "Failed to build data providers", err)

	journal := initializeJournal(ctx, cfg)
	rec := initializeRecorder(ctx, cfg)
	defer rec.Close()

	runner := initializeEngine(cfg, router, journal)
	res, err := runner.Run(ctx, loaded.Signals, cfg.Policy)
	exitOnError(ctx, "Backtest aborted", err)

	paths, err := report.NewWriter(cfg.Output.Dir).Write(res)
	exitOnError(ctx, "Failed to write report", err)

	if err := rec.RecordRun(ctx, res); err != nil {
		logger.Warn(ctx, "Failed to record run", "run_id", res.RunID, "error", err)
	}

	printSummary(res, paths)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = logger.Shutdown(shutdownCtx)
}

func printSummary(res *types.RunResult, paths report.Paths) {
	s := report.RoundSummary(res.Summary)
	line := strings.Repeat("=", 60)
	fmt.Println(line)
	fmt.Printf("Run %s\n", res.RunID)
	fmt.Println(line)
	fmt.Printf("Trades: %d  Failed: %d  Win rate: %.2f%%\n", s.TotalTrades, res.FailedCount, s.WinRate)
	fmt.Printf("Total return: %.2f%%  Avg return: %.2f%%\n", s.TotalReturnPct, s.AvgReturnPct)
	fmt.Printf("Best: %s %.2f%%  Worst: %s %.2f%%\n", s.BestSymbol, s.BestTradePct, s.WorstSymbol, s.WorstTradePct)
	fmt.Printf("Risk/reward: %.2f  Max drawdown: %.2f (%.2f%%)\n", s.RiskReward, s.MaxDrawdown, s.MaxDrawdownPct)
	for _, reason := range report.ExitReasons(s) {
		fmt.Printf("  %-14s %d\n", reason, s.ExitReasons[reason])
	}
	for _, u := range res.ProviderUsage {
		budget := "unlimited"
		if u.Budget > 0 {
			budget = fmt.Sprintf("%d", u.Budget)
		}
		fmt.Printf("  provider %-13s used %d / %s\n", u.Name, u.Used, budget)
	}
	fmt.Println("Outcomes:", paths.Outcomes)
	fmt.Println("Failures:", paths.Failures)
	fmt.Println("Summary: ", paths.Summary)
}
