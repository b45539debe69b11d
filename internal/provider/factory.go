// Package provider assembles the data-source chain from configuration.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"

	"signal-backtest/internal/datasource"
	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/provider/alphavantage"
	"signal-backtest/internal/provider/kite"
	"signal-backtest/internal/provider/nse"
	"signal-backtest/internal/provider/providerobs"
	"signal-backtest/internal/provider/resample"
	"signal-backtest/internal/provider/smartapi"
	"signal-backtest/internal/provider/synthetic"
	"signal-backtest/internal/provider/yahoo"
	"signal-backtest/internal/store"
	"signal-backtest/internal/types"
)

// Credentials are vendor secrets; they come from the environment, never
// from the YAML config.
type Credentials struct {
	KiteAPIKey      string
	KiteAccessToken string
	AlphaVantageKey string
	AngelAPIKey     string
	AngelJWT        string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		KiteAPIKey:      os.Getenv("KITE_API_KEY"),
		KiteAccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
		AlphaVantageKey: os.Getenv("ALPHA_VANTAGE_API_KEY"),
		AngelAPIKey:     os.Getenv("ANGEL_API_KEY"),
		AngelJWT:        os.Getenv("ANGEL_JWT_TOKEN"),
	}
}

// Build turns the enabled provider configs into router sources, in order.
// Providers with missing credentials are skipped with a warning; an empty
// result is a configuration error.
func Build(ctx context.Context, cfg *store.Config, creds Credentials) ([]datasource.Source, error) {
	var sources []datasource.Source
	for _, pc := range cfg.EnabledProviders() {
		p, err := create(cfg, pc, creds)
		if err != nil {
			if errors.Is(err, types.ErrConfiguration) {
				logger.Warn(ctx, "Skipping data provider", "provider", pc.Name, "reason", err.Error())
				continue
			}
			return nil, err
		}

		if base := baseInterval(pc); base != "" && base != cfg.SeriesInterval() {
			p = resample.New(p, base)
		}

		sources = append(sources, datasource.Source{
			Provider:    providerobs.Wrap(p),
			DailyBudget: pc.DailyBudget,
			Limiter:     datasource.NewRateLimiterPerSecond(pc.RatePerSecond, pc.Burst),
		})
		logger.Info(ctx, "Data provider registered",
			"provider", pc.Name,
			"daily_budget", pc.DailyBudget,
			"rate_per_second", pc.RatePerSecond,
		)
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no data providers available (check credentials and mode)", types.ErrConfiguration)
	}
	return sources, nil
}

func create(cfg *store.Config, pc store.ProviderConfig, creds Credentials) (interfaces.SeriesProvider, error) {
	timeout := cfg.FetchTimeout()
	switch pc.Name {
	case store.ProviderKite:
		return kite.New(kite.Params{
			APIKey:      creds.KiteAPIKey,
			AccessToken: creds.KiteAccessToken,
			Exchange:    pc.Exchange,
			HTTPTimeout: timeout,
		})
	case store.ProviderNSE:
		return nse.New(nse.Params{BaseURL: pc.BaseURL, Timeout: timeout}), nil
	case store.ProviderAlphaVantage:
		return alphavantage.New(alphavantage.Params{
			APIKey:  creds.AlphaVantageKey,
			BaseURL: pc.BaseURL,
			Timeout: timeout,
		})
	case store.ProviderYahoo:
		return yahoo.New(yahoo.Params{BaseURL: pc.BaseURL, Timeout: timeout}), nil
	case store.ProviderSmartAPI:
		return smartapi.New(smartapi.Params{
			APIKey:       creds.AngelAPIKey,
			JWT:          creds.AngelJWT,
			Exchange:     pc.Exchange,
			BaseURL:      pc.BaseURL,
			Timeout:      timeout,
			SymbolTokens: pc.SymbolTokens,
		})
	case store.ProviderSynthetic:
		return synthetic.New(), nil
	}
	return nil, fmt.Errorf("unknown provider: %s", pc.Name)
}

// baseInterval is the bar size the vendor is asked for, or "" to pass the
// requested interval through. The NSE report only has daily bars.
func baseInterval(pc store.ProviderConfig) types.Interval {
	if pc.ResampleFrom != "" {
		iv, _ := types.ParseInterval(pc.ResampleFrom)
		return iv
	}
	if pc.Name == store.ProviderNSE {
		return types.Interval1d
	}
	return ""
}
