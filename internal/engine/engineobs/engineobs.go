package engineobs

import (
	"context"
	"time"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/trace"
	"signal-backtest/internal/types"
)

type observableRunner struct {
	runner interfaces.Runner
}

var _ interfaces.Runner = (*observableRunner)(nil)

func Wrap(r interfaces.Runner) interfaces.Runner {
	return &observableRunner{
		runner: r,
	}
}

func (or *observableRunner) Run(ctx context.Context, signals []types.TradeSignal, policy types.ExitPolicy) (*types.RunResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Run")
	defer span.End()
	span.SetAttributes(trace.Attrs(
		"signals", len(signals),
		"max_holding_days", policy.MaxHoldingDays,
		"simple_mode", policy.SimpleMode(),
	)...)

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting backtest run",
		"signals", len(signals),
		"max_holding_days", policy.MaxHoldingDays,
		"simple_mode", policy.SimpleMode(),
	)

	result, err := or.runner.Run(ctx, signals, policy)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Backtest run failed", err,
			"signals", len(signals),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Backtest run completed",
		"run_id", result.RunID,
		"trades", result.Summary.TotalTrades,
		"failed", result.FailedCount,
		"win_rate", result.Summary.WinRate,
		"total_return_pct", result.Summary.TotalReturnPct,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
