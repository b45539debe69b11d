package tradelog

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/types"
)

// Entry is one journal line. Kind is OUTCOME or FAILED.
type Entry struct {
	Time       string              `json:"time"`
	RunID      string              `json:"run_id"`
	Kind       string              `json:"kind"`
	Symbol     string              `json:"symbol"`
	EntryTime  time.Time           `json:"entry_time"`
	EntryPrice float64             `json:"entry_price,omitempty"`
	ExitPrice  float64             `json:"exit_price,omitempty"`
	ExitReason types.ExitReason    `json:"exit_reason,omitempty"`
	PnLPct     float64             `json:"pnl_pct,omitempty"`
	Source     string              `json:"source,omitempty"`
	Synthetic  bool                `json:"synthetic,omitempty"`
	Reason     types.FailureReason `json:"reason,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Journal appends run events to <dir>/runs/<IST date>.txt as JSON lines.
type Journal struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

var _ interfaces.Journal = (*Journal)(nil)

func New(dir string) *Journal {
	if dir == "" {
		dir = "logs"
	}
	return &Journal{dir: dir, now: time.Now}
}

func (j *Journal) dailyFilepath(t time.Time) string {
	d := t.In(types.MarketTZ).Format("2006-01-02")
	return filepath.Join(j.dir, "runs", d+".txt")
}

func (j *Journal) RecordOutcome(_ context.Context, runID string, o types.TradeOutcome) error {
	return j.Append(Entry{
		RunID:      runID,
		Kind:       "OUTCOME",
		Symbol:     o.Symbol,
		EntryTime:  o.EntryTime,
		EntryPrice: o.EntryPrice,
		ExitPrice:  o.ExitPrice,
		ExitReason: o.ExitReason,
		PnLPct:     o.PnLPct,
		Source:     o.Source,
		Synthetic:  o.Synthetic,
	})
}

func (j *Journal) RecordFailure(_ context.Context, runID string, f types.FailedTrade) error {
	return j.Append(Entry{
		RunID:     runID,
		Kind:      "FAILED",
		Symbol:    f.Symbol,
		EntryTime: f.EntryTime,
		Reason:    f.Reason,
		Error:     f.Error,
	})
}

func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now().In(types.MarketTZ)
	e.Time = now.Format("2006-01-02 15:04:05")
	p := j.dailyFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips journal files last modified more than retentionDays
// ago and removes the originals.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	cutoff := j.now().AddDate(0, 0, -retentionDays)
	var errs []error
	walkErr := filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := d.Info()
		if er != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			gz := p + ".gz"
			// already compressed on an earlier pass
			if validGzip(gz) {
				return os.Remove(p)
			}
			if err := compressFile(p, gz); err != nil {
				errs = append(errs, err)
			}
		}
		return nil
	})
	return errors.Join(append(errs, walkErr)...)
}

// compressFile writes src to dst as gzip and removes src only once dst has
// been flushed and closed. A failed attempt leaves src in place and no dst.
func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	_, err = io.Copy(gw, in)
	if cerr := gw.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("compress %s: %w", src, err)
	}
	return os.Remove(src)
}

// validGzip reports whether path holds a complete gzip stream.
func validGzip(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	_, err = io.Copy(io.Discard, gr)
	return err == nil && gr.Close() == nil
}
