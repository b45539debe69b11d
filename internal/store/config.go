package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"signal-backtest/internal/types"
)

const (
	ModeLive    = "LIVE"
	ModeOffline = "OFFLINE"
)

// Provider names understood by the provider factory.
const (
	ProviderKite         = "kite"
	ProviderNSE          = "nse"
	ProviderAlphaVantage = "alphavantage"
	ProviderYahoo        = "yahoo"
	ProviderSmartAPI     = "smartapi"
	ProviderSynthetic    = "synthetic"
)

var knownProviders = map[string]bool{
	ProviderKite:         true,
	ProviderNSE:          true,
	ProviderAlphaVantage: true,
	ProviderYahoo:        true,
	ProviderSmartAPI:     true,
	ProviderSynthetic:    true,
}

type ProviderConfig struct {
	Name          string  `yaml:"name"`
	Disabled      bool    `yaml:"disabled"`
	DailyBudget   int     `yaml:"daily_budget"` // <= 0 means unlimited
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	// ResampleFrom fetches this interval from the vendor and converts it to
	// the requested one.
	ResampleFrom string            `yaml:"resample_from"`
	BaseURL      string            `yaml:"base_url"`
	Exchange     string            `yaml:"exchange"`
	SymbolTokens map[string]string `yaml:"symbol_tokens"`
}

type Config struct {
	Mode                string           `yaml:"mode"`
	Exchange            string           `yaml:"exchange"`
	Interval            string           `yaml:"interval"`
	Workers             int              `yaml:"workers"`
	FetchTimeoutSeconds int              `yaml:"fetch_timeout_seconds"`
	LookbackDays        int              `yaml:"lookback_days"`
	SlackDays           int              `yaml:"slack_days"`
	Policy              types.ExitPolicy `yaml:"policy"`
	Cache               struct {
		MaxEntries int `yaml:"max_entries"`
		TTLMinutes int `yaml:"ttl_minutes"`
	} `yaml:"cache"`
	Providers []ProviderConfig `yaml:"providers"`
	Signals   struct {
		Path       string `yaml:"path"`
		TimeLayout string `yaml:"time_layout"`
	} `yaml:"signals"`
	Output struct {
		Dir                  string `yaml:"dir"`
		JournalDir           string `yaml:"journal_dir"`
		JournalRetentionDays int    `yaml:"journal_retention_days"`
		SQLitePath           string `yaml:"sqlite_path"`
	} `yaml:"output"`
}

// DefaultProviders is the fallback chain used when the config lists none:
// broker first, then exchange, then the free vendors, synthetic last.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: ProviderKite, RatePerSecond: 3, Burst: 1},
		{Name: ProviderNSE, DailyBudget: 25, RatePerSecond: 0.5, Burst: 1},
		{Name: ProviderAlphaVantage, DailyBudget: 1000, RatePerSecond: 0.2, Burst: 1},
		{Name: ProviderYahoo, DailyBudget: 2000, RatePerSecond: 1, Burst: 2},
		{Name: ProviderSynthetic},
	}
}

func (c *Config) Validate() error {
	if c.Mode != ModeLive && c.Mode != ModeOffline {
		return fmt.Errorf("invalid mode '%s': must be '%s' or '%s'", c.Mode, ModeLive, ModeOffline)
	}
	if _, err := types.ParseInterval(c.Interval); err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	if c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch_timeout_seconds must be > 0, got %d", c.FetchTimeoutSeconds)
	}
	if c.LookbackDays < 0 || c.SlackDays < 0 {
		return errors.New("lookback_days and slack_days cannot be negative")
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if c.Cache.MaxEntries < 0 || c.Cache.TTLMinutes < 0 {
		return errors.New("cache limits cannot be negative")
	}
	if len(c.Providers) == 0 {
		return errors.New("providers cannot be empty")
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if !knownProviders[p.Name] {
			return fmt.Errorf("providers[%d]: unknown provider '%s'", i, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate provider '%s'", i, p.Name)
		}
		seen[p.Name] = true
		if p.RatePerSecond < 0 {
			return fmt.Errorf("providers[%d]: rate_per_second cannot be negative", i)
		}
		if p.ResampleFrom != "" {
			if _, err := types.ParseInterval(p.ResampleFrom); err != nil {
				return fmt.Errorf("providers[%d]: resample_from: %w", i, err)
			}
		}
	}
	return nil
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// SeriesInterval is the validated bar interval used for simulation.
func (c *Config) SeriesInterval() types.Interval {
	iv, _ := types.ParseInterval(c.Interval)
	return iv
}

// EnabledProviders returns the providers in fallback order. OFFLINE mode
// keeps only the synthetic generator.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Disabled {
			continue
		}
		if c.Mode == ModeOffline && p.Name != ProviderSynthetic {
			continue
		}
		out = append(out, p)
	}
	return out
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	c.Mode = strings.ToUpper(c.Mode)
	if c.Mode == "" {
		c.Mode = ModeLive
	}
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Interval == "" {
		c.Interval = string(types.Interval1d)
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.FetchTimeoutSeconds == 0 {
		c.FetchTimeoutSeconds = 30
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = 5
	}
	if c.SlackDays == 0 {
		c.SlackDays = 5
	}
	if c.Policy.MaxHoldingDays == 0 {
		c.Policy.MaxHoldingDays = 10
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 512
	}
	if len(c.Providers) == 0 {
		c.Providers = DefaultProviders()
	}
	for i := range c.Providers {
		c.Providers[i].Name = strings.ToLower(strings.TrimSpace(c.Providers[i].Name))
		if c.Providers[i].Exchange == "" {
			c.Providers[i].Exchange = c.Exchange
		}
	}
	if c.Signals.TimeLayout == "" {
		c.Signals.TimeLayout = "02-01-2006 03:04 PM"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "results"
	}
	if c.Output.JournalDir == "" {
		c.Output.JournalDir = "logs"
	}
	if c.Output.JournalRetentionDays == 0 {
		c.Output.JournalRetentionDays = 7
	}
}
