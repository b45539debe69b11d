package recorder

import (
	"context"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/types"
)

// NoopRecorder is used when SQLite is not configured.
type NoopRecorder struct{}

var _ interfaces.RunRecorder = (*NoopRecorder)(nil)

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ context.Context, _ *types.RunResult) error { return nil }
func (n *NoopRecorder) Close() error                                          { return nil }

// Open returns a SQLite recorder for a non-empty path and a no-op otherwise.
func Open(ctx context.Context, path string) (interfaces.RunRecorder, error) {
	if path == "" {
		return NewNoopRecorder(), nil
	}
	return NewSQLiteRecorder(ctx, path)
}
