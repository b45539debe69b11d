package providerobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/trace"
	"signal-backtest/internal/types"
)

// observableProvider wraps a SeriesProvider with logging and tracing
type observableProvider struct {
	provider interfaces.SeriesProvider
}

var _ interfaces.SeriesProvider = (*observableProvider)(nil)

// Wrap wraps a provider with observability middleware
func Wrap(p interfaces.SeriesProvider) interfaces.SeriesProvider {
	return &observableProvider{provider: p}
}

func (op *observableProvider) Name() string {
	return op.provider.Name()
}

// Fetch fetches a series with observability. Failures are logged as warnings:
// the router treats them as soft and moves on to the next source.
func (op *observableProvider) Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	ctx, span := trace.StartSpan(ctx, "provider."+op.provider.Name()+".Fetch")
	defer span.End()
	span.SetAttributes(trace.Attrs(
		"symbol", req.Symbol,
		"interval", string(req.Interval),
		"start", req.Start.Format(time.DateOnly),
		"end", req.End.Format(time.DateOnly),
	)...)

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Fetching series",
		"provider", op.provider.Name(),
		"symbol", req.Symbol,
		"interval", req.Interval,
	)

	series, err := op.provider.Fetch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnSkip(ctx, 1, "Series fetch failed",
			"provider", op.provider.Name(),
			"symbol", req.Symbol,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	span.SetAttributes(trace.Attrs("candles", series.Len(), "synthetic", series.Synthetic)...)
	logger.DebugSkip(ctx, 1, "Series fetched",
		"provider", op.provider.Name(),
		"symbol", req.Symbol,
		"candles", series.Len(),
		"synthetic", series.Synthetic,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return series, nil
}
