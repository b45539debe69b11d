package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/metrics"
	"signal-backtest/internal/types"
)

const defaultWorkers = 4

type Params struct {
	Workers      int
	Interval     types.Interval
	LookbackDays int
	SlackDays    int
}

// Engine runs a batch of signals through the simulator on a bounded worker
// pool. Everything a run produces lives in its RunResult; the engine keeps
// no state between runs beyond what its fetcher caches.
type Engine struct {
	sim     *Simulator
	fetcher interfaces.SeriesFetcher
	workers int
	journal interfaces.Journal
	now     func() time.Time
}

var _ interfaces.Runner = (*Engine)(nil)

func newEngine(fetcher interfaces.SeriesFetcher, p Params, journal interfaces.Journal) *Engine {
	workers := p.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Engine{
		sim:     NewSimulator(fetcher, p.Interval, p.LookbackDays, p.SlackDays),
		fetcher: fetcher,
		workers: workers,
		journal: journal,
		now:     time.Now,
	}
}

// slot holds exactly one of outcome or failed once its worker finishes.
type slot struct {
	outcome *types.TradeOutcome
	failed  *types.FailedTrade
}

// Run simulates every signal and aggregates the outcomes. Results keep the
// input order regardless of completion order. A trade that cannot be
// simulated is recorded as failed and the rest continue; cancelling ctx
// aborts the whole run with ctx's error.
func (e *Engine) Run(ctx context.Context, signals []types.TradeSignal, policy types.ExitPolicy) (*types.RunResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	if e.fetcher == nil {
		return nil, fmt.Errorf("%w: no series fetcher", types.ErrConfiguration)
	}

	res := &types.RunResult{
		RunID:     uuid.NewString(),
		StartedAt: e.now(),
		Policy:    policy,
	}
	logger.Debug(ctx, "Run started", "run_id", res.RunID, "signals", len(signals), "workers", e.workers)

	slots := make([]slot, len(signals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, sig := range signals {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o, err := e.sim.Simulate(gctx, sig, policy)
			if err == nil {
				slots[i].outcome = &o
				e.journalOutcome(gctx, res.RunID, o)
				return nil
			}
			if isContextErr(err) && gctx.Err() != nil {
				return gctx.Err()
			}

			f := types.FailedTrade{
				Symbol:    sig.Symbol,
				EntryTime: sig.EntryTime,
				Reason:    failureReason(err),
				Error:     err.Error(),
			}
			slots[i].failed = &f
			logger.Warn(gctx, "Trade skipped",
				"symbol", sig.Symbol,
				"entry_time", sig.EntryTime,
				"reason", f.Reason,
				"error", err,
			)
			e.journalFailure(gctx, res.RunID, f)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Outcomes = make([]types.TradeOutcome, 0, len(signals))
	for _, s := range slots {
		switch {
		case s.outcome != nil:
			res.Outcomes = append(res.Outcomes, *s.outcome)
		case s.failed != nil:
			res.Failed = append(res.Failed, *s.failed)
		}
	}
	res.FailedCount = len(res.Failed)
	res.Summary = metrics.Summarize(res.Outcomes)
	if u, ok := e.fetcher.(interfaces.UsageReporter); ok {
		res.ProviderUsage = u.Usage()
	}
	res.FinishedAt = e.now()
	return res, nil
}

func failureReason(err error) types.FailureReason {
	switch {
	case errors.Is(err, ErrInvalidEntryPrice):
		return types.FailInvalidPrice
	case isContextErr(err):
		return types.FailCancelled
	default:
		return types.FailDataUnavailable
	}
}

func (e *Engine) journalOutcome(ctx context.Context, runID string, o types.TradeOutcome) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordOutcome(ctx, runID, o); err != nil {
		logger.Warn(ctx, "Failed to journal outcome", "symbol", o.Symbol, "error", err)
	}
}

func (e *Engine) journalFailure(ctx context.Context, runID string, f types.FailedTrade) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordFailure(ctx, runID, f); err != nil {
		logger.Warn(ctx, "Failed to journal failure", "symbol", f.Symbol, "error", err)
	}
}
