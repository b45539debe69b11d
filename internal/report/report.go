// Package report writes a finished run to disk: an outcomes CSV, a
// failures CSV and a summary JSON. Prices and percentages are rounded to
// two decimals here and nowhere else.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"signal-backtest/internal/types"
)

// Paths lists the files written for one run.
type Paths struct {
	Outcomes string
	Failures string
	Summary  string
}

// Writer exports runs under dir/<run id>/.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "results"
	}
	return &Writer{dir: dir}
}

type OutcomeRow struct {
	Symbol     string `csv:"symbol"`
	EntryDate  string `csv:"entry_date"`
	EntryPrice string `csv:"entry_price"`
	ExitDate   string `csv:"exit_date"`
	ExitPrice  string `csv:"exit_price"`
	DaysHeld   int    `csv:"days_held"`
	PnL        string `csv:"pnl"`
	PnLPct     string `csv:"pnl_pct"`
}

// LevelsRow is used when the policy sets a stop-loss or target.
type LevelsRow struct {
	Symbol        string `csv:"symbol"`
	EntryDate     string `csv:"entry_date"`
	EntryPrice    string `csv:"entry_price"`
	ExitDate      string `csv:"exit_date"`
	ExitPrice     string `csv:"exit_price"`
	DaysHeld      int    `csv:"days_held"`
	PnL           string `csv:"pnl"`
	PnLPct        string `csv:"pnl_pct"`
	ExitReason    string `csv:"exit_reason"`
	StopLossPrice string `csv:"stop_loss_price"`
	TargetPrice   string `csv:"target_price"`
}

type FailureRow struct {
	Symbol    string `csv:"symbol"`
	EntryTime string `csv:"entry_time"`
	Reason    string `csv:"reason"`
	Error     string `csv:"error"`
}

type summaryDoc struct {
	RunID         string                   `json:"run_id"`
	StartedAt     time.Time                `json:"started_at"`
	FinishedAt    time.Time                `json:"finished_at"`
	Policy        types.ExitPolicy         `json:"policy"`
	Summary       types.PerformanceSummary `json:"summary"`
	FailedCount   int                      `json:"failed_count"`
	ProviderUsage []types.SourceUsage      `json:"provider_usage"`
	SyntheticUsed bool                     `json:"synthetic_used"`
}

// Write exports res and returns the paths written.
func (w *Writer) Write(res *types.RunResult) (Paths, error) {
	if res == nil {
		return Paths{}, fmt.Errorf("nil run result")
	}
	dir := filepath.Join(w.dir, res.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, err
	}

	p := Paths{
		Outcomes: filepath.Join(dir, "outcomes.csv"),
		Failures: filepath.Join(dir, "failures.csv"),
		Summary:  filepath.Join(dir, "summary.json"),
	}

	var rows interface{}
	if res.Policy.SimpleMode() {
		rows = OutcomeRows(res.Outcomes)
	} else {
		rows = LevelRows(res.Outcomes)
	}
	if err := writeCSV(p.Outcomes, rows); err != nil {
		return Paths{}, fmt.Errorf("outcomes csv: %w", err)
	}
	if err := writeCSV(p.Failures, failureRows(res.Failed)); err != nil {
		return Paths{}, fmt.Errorf("failures csv: %w", err)
	}
	if err := writeSummary(p.Summary, res); err != nil {
		return Paths{}, fmt.Errorf("summary json: %w", err)
	}
	return p, nil
}

func writeCSV(path string, rows interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(rows, f)
}

func writeSummary(path string, res *types.RunResult) error {
	doc := summaryDoc{
		RunID:         res.RunID,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
		Policy:        res.Policy,
		Summary:       RoundSummary(res.Summary),
		FailedCount:   res.FailedCount,
		ProviderUsage: res.ProviderUsage,
	}
	for _, o := range res.Outcomes {
		if o.Synthetic {
			doc.SyntheticUsed = true
			break
		}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// OutcomeRows renders the plain column set.
func OutcomeRows(outcomes []types.TradeOutcome) []*OutcomeRow {
	rows := make([]*OutcomeRow, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, &OutcomeRow{
			Symbol:     o.Symbol,
			EntryDate:  formatTime(o.EntryDate),
			EntryPrice: money(o.EntryPrice),
			ExitDate:   formatTime(o.ExitDate),
			ExitPrice:  money(o.ExitPrice),
			DaysHeld:   o.DaysHeld,
			PnL:        money(o.PnL),
			PnLPct:     money(o.PnLPct),
		})
	}
	return rows
}

// LevelRows renders the column set with exit reason and levels.
func LevelRows(outcomes []types.TradeOutcome) []*LevelsRow {
	rows := make([]*LevelsRow, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, &LevelsRow{
			Symbol:        o.Symbol,
			EntryDate:     formatTime(o.EntryDate),
			EntryPrice:    money(o.EntryPrice),
			ExitDate:      formatTime(o.ExitDate),
			ExitPrice:     money(o.ExitPrice),
			DaysHeld:      o.DaysHeld,
			PnL:           money(o.PnL),
			PnLPct:        money(o.PnLPct),
			ExitReason:    string(o.ExitReason),
			StopLossPrice: optionalMoney(o.StopLossPrice),
			TargetPrice:   optionalMoney(o.TargetPrice),
		})
	}
	return rows
}

func failureRows(failed []types.FailedTrade) []*FailureRow {
	rows := make([]*FailureRow, 0, len(failed))
	for _, f := range failed {
		rows = append(rows, &FailureRow{
			Symbol:    f.Symbol,
			EntryTime: formatTime(f.EntryTime),
			Reason:    string(f.Reason),
			Error:     f.Error,
		})
	}
	return rows
}

// RoundSummary returns a copy with every ratio rounded to 2 decimals.
func RoundSummary(s types.PerformanceSummary) types.PerformanceSummary {
	r := s
	for _, f := range []*float64{
		&r.WinRate, &r.AvgPnL, &r.TotalPnL, &r.AvgReturnPct, &r.TotalReturnPct,
		&r.BestTradePct, &r.WorstTradePct, &r.AvgWinPnL, &r.AvgLossPnL,
		&r.RiskReward, &r.MaxDrawdown, &r.MaxDrawdownPct, &r.AvgDaysHeld,
	} {
		*f = round2(*f)
	}
	return r
}

// ExitReasons lists the reasons present in s in lexical order.
func ExitReasons(s types.PerformanceSummary) []types.ExitReason {
	out := make([]types.ExitReason, 0, len(s.ExitReasons))
	for r := range s.ExitReasons {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func optionalMoney(v float64) string {
	if v == 0 {
		return ""
	}
	return money(v)
}

// formatTime prints a bare date for midnight bars and a minute timestamp
// otherwise, both in market time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(types.MarketTZ)
	if t.Equal(types.DayOf(t)) {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04")
}
