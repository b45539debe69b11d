package interfaces

import (
	"context"

	"signal-backtest/internal/types"
)

// SeriesProvider is one vendor (or generator) of historical candles.
type SeriesProvider interface {
	Name() string
	Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error)
}

// SeriesFetcher is what the simulator needs; the router implements it.
type SeriesFetcher interface {
	Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error)
}
