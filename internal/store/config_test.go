package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-backtest/internal/types"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  stop_loss_pct: 3\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ModeLive, cfg.Mode)
	assert.Equal(t, types.Interval1d, cfg.SeriesInterval())
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 10, cfg.Policy.MaxHoldingDays)
	require.NotNil(t, cfg.Policy.StopLossPct)
	assert.Equal(t, 3.0, *cfg.Policy.StopLossPct)
	assert.Nil(t, cfg.Policy.TargetProfitPct)
	assert.Len(t, cfg.Providers, len(DefaultProviders()))
	assert.Equal(t, "NSE", cfg.Providers[0].Exchange)
}

func TestParseConfigProviders(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
mode: offline
interval: 60m
providers:
  - name: Yahoo
    daily_budget: 10
  - name: synthetic
`))
	require.NoError(t, err)
	assert.Equal(t, ModeOffline, cfg.Mode)
	assert.Equal(t, types.Interval1h, cfg.SeriesInterval())
	assert.Equal(t, "yahoo", cfg.Providers[0].Name)

	enabled := cfg.EnabledProviders()
	require.Len(t, enabled, 1)
	assert.Equal(t, ProviderSynthetic, enabled[0].Name)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown provider": "providers:\n  - name: bloomberg\n",
		"duplicate":        "providers:\n  - name: yahoo\n  - name: yahoo\n",
		"bad interval":     "interval: 2d\n",
		"bad mode":         "mode: PAPER\n",
		"bad policy":       "policy:\n  target_profit_pct: -1\n",
		"bad resample":     "providers:\n  - name: nse\n    resample_from: fortnight\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(body))
			assert.Error(t, err)
		})
	}
}
