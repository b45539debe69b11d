package kite

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"

	"signal-backtest/internal/types"
)

type mockKite struct {
	mock.Mock
}

func (m *mockKite) GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error) {
	args := m.Called(exchange)
	inst, _ := args.Get(0).(kiteconnect.Instruments)
	return inst, args.Error(1)
}

func (m *mockKite) GetHistoricalData(token int, interval string, from, to time.Time, continuous, oi bool) ([]kiteconnect.HistoricalData, error) {
	args := m.Called(token, interval, from, to, continuous, oi)
	rows, _ := args.Get(0).([]kiteconnect.HistoricalData)
	return rows, args.Error(1)
}

func sampleRequest() types.SeriesRequest {
	return types.SeriesRequest{
		Symbol:   "sbin",
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, types.MarketTZ),
		End:      time.Date(2024, 1, 10, 0, 0, 0, 0, types.MarketTZ),
		Interval: types.Interval1d,
	}
}

func TestFetchResolvesSuffixedTradingsymbol(t *testing.T) {
	m := &mockKite{}
	m.On("GetInstrumentsByExchange", "NSE").Return(kiteconnect.Instruments{
		{InstrumentToken: 111, Tradingsymbol: "OTHER", Exchange: "NSE"},
		{InstrumentToken: 779521, Tradingsymbol: "SBIN-BE", Exchange: "NSE"},
	}, nil).Once()
	m.On("GetHistoricalData", 779521, "day", mock.Anything, mock.Anything, false, false).Return([]kiteconnect.HistoricalData{
		{Date: models.Time{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, types.MarketTZ)}, Open: 600, High: 610, Low: 595, Close: 605, Volume: 1000},
		{Date: models.Time{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, types.MarketTZ)}, Open: 590, High: 601, Low: 588, Close: 600, Volume: 900},
	}, nil)

	p := newWithAPI(Params{Exchange: "NSE"}, m)
	series, err := p.Fetch(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "sbin", series.Symbol)
	assert.Equal(t, Name, series.Source)
	require.Len(t, series.Candles, 2)
	assert.Equal(t, 590.0, series.Candles[0].Open, "candles sorted by time")

	// Instrument dump is cached.
	_, err = p.Fetch(context.Background(), sampleRequest())
	require.NoError(t, err)
	m.AssertExpectations(t)
	m.AssertNumberOfCalls(t, "GetInstrumentsByExchange", 1)
}

func TestFetchUnknownSymbolIsUnavailable(t *testing.T) {
	m := &mockKite{}
	m.On("GetInstrumentsByExchange", "NSE").Return(kiteconnect.Instruments{}, nil)

	p := newWithAPI(Params{Exchange: "NSE"}, m)
	_, err := p.Fetch(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
	m.AssertNotCalled(t, "GetHistoricalData", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFetchThrottled(t *testing.T) {
	m := &mockKite{}
	m.On("GetInstrumentsByExchange", "NSE").Return(kiteconnect.Instruments{
		{InstrumentToken: 5, Tradingsymbol: "SBIN", Exchange: "NSE"},
	}, nil)
	m.On("GetHistoricalData", 5, "day", mock.Anything, mock.Anything, false, false).
		Return(nil, kiteconnect.Error{Code: http.StatusTooManyRequests, ErrorType: "NetworkException", Message: "Too many requests"})

	p := newWithAPI(Params{Exchange: "NSE"}, m)
	_, err := p.Fetch(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, types.ErrProviderRateLimited)
	m.AssertNumberOfCalls(t, "GetHistoricalData", 1)
}

func TestWeeklyUnsupported(t *testing.T) {
	p := newWithAPI(Params{Exchange: "NSE"}, &mockKite{})
	req := sampleRequest()
	req.Interval = types.Interval1wk
	_, err := p.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Params{APIKey: "k"})
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestCallWithContextReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	defer close(block)

	_, err := callWithContext(ctx, func() (int, error) {
		<-block
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
