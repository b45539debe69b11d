package interfaces

import (
	"context"

	"signal-backtest/internal/types"
)

// Journal receives per-trade records as a run progresses. Implementations
// must be safe for concurrent use by the worker pool.
type Journal interface {
	RecordOutcome(ctx context.Context, runID string, o types.TradeOutcome) error
	RecordFailure(ctx context.Context, runID string, f types.FailedTrade) error
}

// RunRecorder persists a finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, res *types.RunResult) error
	Close() error
}

// UsageReporter is implemented by fetchers that track per-source budgets.
type UsageReporter interface {
	Usage() []types.SourceUsage
}
