package engineobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"signal-backtest/internal/types"
)

type mockRunner struct{ mock.Mock }

func (m *mockRunner) Run(ctx context.Context, signals []types.TradeSignal, policy types.ExitPolicy) (*types.RunResult, error) {
	args := m.Called(ctx, signals, policy)
	res, _ := args.Get(0).(*types.RunResult)
	return res, args.Error(1)
}

func TestWrapPassesThrough(t *testing.T) {
	inner := &mockRunner{}
	want := &types.RunResult{RunID: "r1"}
	signals := []types.TradeSignal{{Symbol: "INFY"}}
	policy := types.ExitPolicy{MaxHoldingDays: 3}
	inner.On("Run", mock.Anything, signals, policy).Return(want, nil).Once()

	got, err := Wrap(inner).Run(context.Background(), signals, policy)
	require.NoError(t, err)
	assert.Same(t, want, got)
	inner.AssertExpectations(t)
}

func TestWrapReturnsError(t *testing.T) {
	inner := &mockRunner{}
	boom := errors.New("boom")
	inner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	got, err := Wrap(inner).Run(context.Background(), nil, types.ExitPolicy{})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, boom)
}
