// Package signals reads trade lists exported by screeners into
// TradeSignals.
package signals

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"signal-backtest/internal/types"
)

const DefaultTimeLayout = "02-01-2006 03:04 PM"

// Row is one line of the upload. Only date and symbol are required; the
// screener's market-cap and sector columns ride along when present.
type Row struct {
	Date          string `csv:"date"`
	Symbol        string `csv:"symbol"`
	MarketCapName string `csv:"marketcapname"`
	Sector        string `csv:"sector"`
}

// Result holds the parsed signals and how many rows were dropped.
type Result struct {
	Signals []types.TradeSignal
	Dropped int
}

func LoadFile(path, layout string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return Load(f, layout)
}

// Load parses CSV rows in market time. Rows with an empty symbol or an
// unparseable date are dropped and counted.
func Load(r io.Reader, layout string) (Result, error) {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	var rows []*Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return Result{}, fmt.Errorf("parse signals csv: %w", err)
	}

	res := Result{Signals: make([]types.TradeSignal, 0, len(rows))}
	for _, row := range rows {
		sym := strings.ToUpper(strings.TrimSpace(row.Symbol))
		t, err := time.ParseInLocation(layout, strings.TrimSpace(row.Date), types.MarketTZ)
		if sym == "" || err != nil {
			res.Dropped++
			continue
		}
		res.Signals = append(res.Signals, types.TradeSignal{Symbol: sym, EntryTime: t})
	}
	if len(res.Signals) == 0 {
		return res, fmt.Errorf("no valid signals in %d rows", len(rows))
	}
	return res, nil
}
