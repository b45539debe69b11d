package smartapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-backtest/internal/types"
)

func request() types.SeriesRequest {
	return types.SeriesRequest{
		Symbol:   "sbin",
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, types.MarketTZ),
		End:      time.Date(2024, 1, 5, 0, 0, 0, 0, types.MarketTZ),
		Interval: types.Interval1d,
	}
}

func TestFetchPostsCandleRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, candlePath, r.URL.Path)
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("X-PrivateKey"))

		var body candleRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "3045", body.SymbolToken)
		assert.Equal(t, "ONE_DAY", body.Interval)
		assert.Equal(t, "2024-01-01 09:15", body.FromDate)
		assert.Equal(t, "2024-01-05 15:30", body.ToDate)

		fmt.Fprint(w, `{"status":true,"message":"SUCCESS","errorcode":"","data":[
			["2024-01-02T00:00:00+05:30",640.0,650.0,635.0,648.0,100000],
			["2024-01-03T00:00:00+05:30",648.0,655.0,645.0,652.5,90000]]}`)
	}))
	defer srv.Close()

	p, err := New(Params{APIKey: "key", JWT: "jwt", BaseURL: srv.URL, SymbolTokens: map[string]string{"sbin-eq": "3045"}})
	require.NoError(t, err)

	s, err := p.Fetch(context.Background(), request())
	require.NoError(t, err)
	require.Len(t, s.Candles, 2)
	assert.Equal(t, 652.5, s.Candles[1].Close)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, types.MarketTZ), s.Candles[1].Time)
}

func TestFetchWithoutTokenIsUnavailable(t *testing.T) {
	p, err := New(Params{APIKey: "key", JWT: "jwt", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = p.Fetch(context.Background(), request())
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}

func TestFetchAccessRateIsThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":false,"message":"Access denied because of exceeding access rate","errorcode":"AB1004","data":null}`)
	}))
	defer srv.Close()

	p, err := New(Params{APIKey: "key", JWT: "jwt", BaseURL: srv.URL, SymbolTokens: map[string]string{"SBIN": "3045"}})
	require.NoError(t, err)

	_, err = p.Fetch(context.Background(), request())
	assert.ErrorIs(t, err, types.ErrProviderRateLimited)
}
