package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/types"
)

// SQLiteRecorder persists finished runs to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

var _ interfaces.RunRecorder = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(ctx context.Context, dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info(ctx, "SQLite recorder opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			started_at        INTEGER NOT NULL,
			finished_at       INTEGER NOT NULL,
			max_holding_days  INTEGER,
			stop_loss_pct     REAL,
			target_profit_pct REAL,
			total_trades      INTEGER,
			failed_count      INTEGER,
			win_rate          REAL,
			total_pnl         REAL,
			total_return_pct  REAL,
			avg_return_pct    REAL,
			max_drawdown      REAL,
			risk_reward       REAL
		)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			symbol          TEXT NOT NULL,
			entry_time      INTEGER,
			entry_date      INTEGER,
			entry_price     REAL,
			exit_date       INTEGER,
			exit_price      REAL,
			exit_reason     TEXT,
			days_held       INTEGER,
			pnl             REAL,
			pnl_pct         REAL,
			stop_loss_price REAL,
			target_price    REAL,
			source          TEXT,
			synthetic       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id)`,

		`CREATE TABLE IF NOT EXISTS failures (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			entry_time INTEGER,
			reason     TEXT,
			error      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun writes the run header, its outcomes and failures in one
// transaction.
func (r *SQLiteRecorder) RecordRun(ctx context.Context, res *types.RunResult) error {
	if res == nil {
		return nil
	}
	op := logger.StartOperation(ctx, "recorder.RecordRun", "run_id", res.RunID)
	if err := r.recordRun(op.GetContext(), res); err != nil {
		op.EndWithError(err)
		return err
	}
	op.End("outcomes", len(res.Outcomes), "failed", len(res.Failed))
	return nil
}

func (r *SQLiteRecorder) recordRun(ctx context.Context, res *types.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	s := res.Summary
	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, started_at, finished_at, max_holding_days, stop_loss_pct, target_profit_pct,
		 total_trades, failed_count, win_rate, total_pnl, total_return_pct, avg_return_pct,
		 max_drawdown, risk_reward)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		res.RunID, res.StartedAt.Unix(), res.FinishedAt.Unix(), res.Policy.MaxHoldingDays,
		nullable(res.Policy.StopLossPct), nullable(res.Policy.TargetProfitPct),
		s.TotalTrades, res.FailedCount, s.WinRate, s.TotalPnL, s.TotalReturnPct, s.AvgReturnPct,
		s.MaxDrawdown, s.RiskReward,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, o := range res.Outcomes {
		_, err := tx.ExecContext(ctx, `INSERT INTO outcomes
			(run_id, seq, symbol, entry_time, entry_date, entry_price, exit_date, exit_price,
			 exit_reason, days_held, pnl, pnl_pct, stop_loss_price, target_price, source, synthetic)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			res.RunID, i, o.Symbol, o.EntryTime.Unix(), o.EntryDate.Unix(), o.EntryPrice,
			o.ExitDate.Unix(), o.ExitPrice, string(o.ExitReason), o.DaysHeld, o.PnL, o.PnLPct,
			o.StopLossPrice, o.TargetPrice, o.Source, o.Synthetic,
		)
		if err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Symbol, err)
		}
	}

	for _, f := range res.Failed {
		_, err := tx.ExecContext(ctx, `INSERT INTO failures
			(run_id, symbol, entry_time, reason, error)
			VALUES (?,?,?,?,?)`,
			res.RunID, f.Symbol, f.EntryTime.Unix(), string(f.Reason), f.Error,
		)
		if err != nil {
			return fmt.Errorf("insert failure %s: %w", f.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logger.Debug(ctx, "Run recorded", "run_id", res.RunID, "outcomes", len(res.Outcomes), "failed", len(res.Failed))
	return nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
