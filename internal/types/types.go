package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MarketTZ is the exchange clock. Calendar-day arithmetic (holding periods,
// daily buckets, cache key normalisation) happens in this zone.
var MarketTZ = time.FixedZone("IST", 5*3600+1800)

type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
	Interval1wk Interval = "1wk"
)

// Duration returns the nominal bar length, or 0 for an unknown interval.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval1d:
		return 24 * time.Hour
	case Interval1wk:
		return 7 * 24 * time.Hour
	}
	return 0
}

func (i Interval) Valid() bool { return i.Duration() > 0 }

// Daily reports whether bars of this interval are calendar-dated rather than
// timestamped.
func (i Interval) Daily() bool { return i.Duration() >= 24*time.Hour }

func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	if iv == "60m" {
		iv = Interval1h
	}
	if !iv.Valid() {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}

type Candle struct {
	Time                           time.Time
	Open, High, Low, Close, Volume float64
}

// CandleSeries is treated as immutable once returned by a provider; the
// router hands the same pointer to every caller of a cached key.
type CandleSeries struct {
	Symbol    string
	Interval  Interval
	Source    string
	Synthetic bool
	Derived   bool
	Candles   []Candle
}

func (s *CandleSeries) Empty() bool { return s == nil || len(s.Candles) == 0 }

func (s *CandleSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candles)
}

// Validate checks ordering and OHLC consistency.
func (s *CandleSeries) Validate() error {
	for i, c := range s.Candles {
		if i > 0 && !c.Time.After(s.Candles[i-1].Time) {
			return fmt.Errorf("%s: candle %d at %s not after %s", s.Symbol, i, c.Time, s.Candles[i-1].Time)
		}
		if c.High < max(c.Open, c.Close) || c.Low > min(c.Open, c.Close) {
			return fmt.Errorf("%s: candle %d at %s has inconsistent OHLC", s.Symbol, i, c.Time)
		}
	}
	return nil
}

// Normalize sorts by time, drops duplicate timestamps (last write wins),
// drops bars with non-positive prices and widens high/low to cover open and
// close. Providers call it on raw vendor rows before returning.
func (s *CandleSeries) Normalize() {
	if s == nil || len(s.Candles) == 0 {
		return
	}
	sort.SliceStable(s.Candles, func(i, j int) bool { return s.Candles[i].Time.Before(s.Candles[j].Time) })
	out := s.Candles[:0]
	for _, c := range s.Candles {
		if c.Open <= 0 || c.Close <= 0 {
			continue
		}
		c.High = max(c.High, c.Open, c.Close)
		if c.Low <= 0 {
			c.Low = min(c.Open, c.Close)
		}
		c.Low = min(c.Low, c.Open, c.Close)
		if n := len(out); n > 0 && out[n-1].Time.Equal(c.Time) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	s.Candles = out
}

type SeriesRequest struct {
	Symbol   string
	Start    time.Time
	End      time.Time
	Interval Interval
}

// Key identifies a request in the router cache and the single-flight group.
func (r SeriesRequest) Key() string {
	return strings.Join([]string{
		strings.ToUpper(r.Symbol),
		r.Start.In(MarketTZ).Format(time.RFC3339),
		r.End.In(MarketTZ).Format(time.RFC3339),
		string(r.Interval),
	}, "|")
}

func (r SeriesRequest) String() string {
	return fmt.Sprintf("%s %s..%s @%s", r.Symbol, r.Start.In(MarketTZ).Format("2006-01-02"), r.End.In(MarketTZ).Format("2006-01-02"), r.Interval)
}

type TradeSignal struct {
	Symbol    string    `json:"symbol"`
	EntryTime time.Time `json:"entry_time"`
}

// ExitPolicy: nil percentages mean "not configured".
type ExitPolicy struct {
	MaxHoldingDays  int      `json:"max_holding_days" yaml:"max_holding_days"`
	StopLossPct     *float64 `json:"stop_loss_pct,omitempty" yaml:"stop_loss_pct"`
	TargetProfitPct *float64 `json:"target_profit_pct,omitempty" yaml:"target_profit_pct"`
}

// SimpleMode is true when neither stop-loss nor target is set; the trade is
// then held for exactly MaxHoldingDays.
func (p ExitPolicy) SimpleMode() bool {
	return p.StopLossPct == nil && p.TargetProfitPct == nil
}

func (p ExitPolicy) Validate() error {
	if p.MaxHoldingDays < 0 {
		return fmt.Errorf("max_holding_days must be >= 0, got %d", p.MaxHoldingDays)
	}
	if p.StopLossPct != nil && *p.StopLossPct <= 0 {
		return fmt.Errorf("stop_loss_pct must be > 0, got %.4f", *p.StopLossPct)
	}
	if p.TargetProfitPct != nil && *p.TargetProfitPct <= 0 {
		return fmt.Errorf("target_profit_pct must be > 0, got %.4f", *p.TargetProfitPct)
	}
	return nil
}

type ExitReason string

const (
	ExitMaxHolding   ExitReason = "MAX_HOLDING"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTargetProfit ExitReason = "TARGET_PROFIT"
	ExitEndOfData    ExitReason = "END_OF_DATA"
)

type TradeOutcome struct {
	Symbol        string     `json:"symbol"`
	EntryTime     time.Time  `json:"entry_time"`
	EntryDate     time.Time  `json:"entry_date"`
	EntryPrice    float64    `json:"entry_price"`
	ExitDate      time.Time  `json:"exit_date"`
	ExitPrice     float64    `json:"exit_price"`
	ExitReason    ExitReason `json:"exit_reason"`
	DaysHeld      int        `json:"days_held"`
	PnL           float64    `json:"pnl"`
	PnLPct        float64    `json:"pnl_pct"`
	StopLossPrice float64    `json:"stop_loss_price,omitempty"`
	TargetPrice   float64    `json:"target_price,omitempty"`
	Source        string     `json:"source"`
	Synthetic     bool       `json:"synthetic"`
}

type FailureReason string

const (
	FailDataUnavailable FailureReason = "DATA_UNAVAILABLE"
	FailInvalidPrice    FailureReason = "INVALID_PRICE"
	FailCancelled       FailureReason = "CANCELLED"
)

type FailedTrade struct {
	Symbol    string        `json:"symbol"`
	EntryTime time.Time     `json:"entry_time"`
	Reason    FailureReason `json:"reason"`
	Error     string        `json:"error"`
}

type PerformanceSummary struct {
	TotalTrades    int                `json:"total_trades"`
	WinningTrades  int                `json:"winning_trades"`
	LosingTrades   int                `json:"losing_trades"`
	WinRate        float64            `json:"win_rate"`
	AvgPnL         float64            `json:"avg_pnl"`
	TotalPnL       float64            `json:"total_pnl"`
	AvgReturnPct   float64            `json:"avg_return_pct"`
	TotalReturnPct float64            `json:"total_return_pct"`
	BestTradePct   float64            `json:"best_trade_pct"`
	BestSymbol     string             `json:"best_symbol,omitempty"`
	WorstTradePct  float64            `json:"worst_trade_pct"`
	WorstSymbol    string             `json:"worst_symbol,omitempty"`
	AvgWinPnL      float64            `json:"avg_win_pnl"`
	AvgLossPnL     float64            `json:"avg_loss_pnl"`
	RiskReward     float64            `json:"risk_reward"`
	MaxDrawdown    float64            `json:"max_drawdown"`
	MaxDrawdownPct float64            `json:"max_drawdown_pct"`
	AvgDaysHeld    float64            `json:"avg_days_held"`
	ExitReasons    map[ExitReason]int `json:"exit_reasons"`
}

// SourceUsage is a point-in-time view of one router source's budget.
type SourceUsage struct {
	Name      string `json:"name"`
	Used      int    `json:"used"`
	Budget    int    `json:"budget"`
	Exhausted bool   `json:"exhausted"`
}

type RunResult struct {
	RunID         string             `json:"run_id"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
	Policy        ExitPolicy         `json:"policy"`
	Outcomes      []TradeOutcome     `json:"outcomes"`
	Failed        []FailedTrade      `json:"failed"`
	FailedCount   int                `json:"failed_count"`
	Summary       PerformanceSummary `json:"summary"`
	ProviderUsage []SourceUsage      `json:"provider_usage"`
}

// DayOf truncates t to midnight of its market calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.In(MarketTZ).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, MarketTZ)
}

// DaysBetween counts market calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DayOf(b).Sub(DayOf(a)).Hours() / 24)
}
