package engine

import (
	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/store"
)

// New builds an engine from config. journal may be nil.
func New(cfg *store.Config, fetcher interfaces.SeriesFetcher, journal interfaces.Journal) *Engine {
	return newEngine(fetcher, Params{
		Workers:      cfg.Workers,
		Interval:     cfg.SeriesInterval(),
		LookbackDays: cfg.LookbackDays,
		SlackDays:    cfg.SlackDays,
	}, journal)
}

// NewWithParams builds an engine without a config file.
func NewWithParams(fetcher interfaces.SeriesFetcher, p Params, journal interfaces.Journal) *Engine {
	return newEngine(fetcher, p, journal)
}
