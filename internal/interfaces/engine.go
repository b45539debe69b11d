package interfaces

import (
	"context"

	"signal-backtest/internal/types"
)

// Runner replays a batch of signals under one exit policy.
type Runner interface {
	Run(ctx context.Context, signals []types.TradeSignal, policy types.ExitPolicy) (*types.RunResult, error)
}
