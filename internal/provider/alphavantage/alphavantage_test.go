package alphavantage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-backtest/internal/types"
)

const dailyJSON = `{
  "Meta Data": {"2. Symbol": "TCS.NSE"},
  "Time Series (Daily)": {
    "2024-01-03": {"1. open": "3700.0", "2. high": "3750.5", "3. low": "3690.0", "4. close": "3740.0", "5. volume": "12345"},
    "2024-01-02": {"1. open": "3650.0", "2. high": "3710.0", "3. low": "3640.0", "4. close": "3700.0", "5. volume": "23456"},
    "2023-12-01": {"1. open": "3500.0", "2. high": "3510.0", "3. low": "3490.0", "4. close": "3505.0", "5. volume": "1"}
  }
}`

func request(iv types.Interval) types.SeriesRequest {
	return types.SeriesRequest{
		Symbol:   "tcs",
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, types.MarketTZ),
		End:      time.Date(2024, 1, 10, 0, 0, 0, 0, types.MarketTZ),
		Interval: iv,
	}
}

func TestFetchDailyFallsBackToNSESpelling(t *testing.T) {
	var symbols []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		symbols = append(symbols, q.Get("symbol"))
		assert.Equal(t, "TIME_SERIES_DAILY", q.Get("function"))
		assert.Equal(t, "secret", q.Get("apikey"))
		if q.Get("symbol") == "TCS.BSE" {
			fmt.Fprint(w, `{"Error Message": "Invalid API call."}`)
			return
		}
		fmt.Fprint(w, dailyJSON)
	}))
	defer srv.Close()

	p, err := New(Params{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	s, err := p.Fetch(context.Background(), request(types.Interval1d))
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS.BSE", "TCS.NSE"}, symbols)
	require.Len(t, s.Candles, 2, "rows outside the window are dropped")
	assert.Equal(t, 3650.0, s.Candles[0].Open)
	assert.Equal(t, 12345.0, s.Candles[1].Volume)
	assert.Equal(t, "tcs", s.Symbol)
}

func TestFetchNoteIsRateLimited(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`)
	}))
	defer srv.Close()

	p, err := New(Params{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Fetch(context.Background(), request(types.Interval1d))
	assert.ErrorIs(t, err, types.ErrProviderRateLimited)
	assert.Equal(t, 1, calls)
}

func TestIntradayQuery(t *testing.T) {
	q, layout, ok := query(types.Interval1h)
	require.True(t, ok)
	assert.Equal(t, "TIME_SERIES_INTRADAY", q.Get("function"))
	assert.Equal(t, "60min", q.Get("interval"))
	assert.Equal(t, "2006-01-02 15:04:05", layout)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}
