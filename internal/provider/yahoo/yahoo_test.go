package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-backtest/internal/types"
)

func request() types.SeriesRequest {
	return types.SeriesRequest{
		Symbol:   "reliance",
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, types.MarketTZ),
		End:      time.Date(2024, 1, 10, 0, 0, 0, 0, types.MarketTZ),
		Interval: types.Interval1d,
	}
}

func chartBody() string {
	d1 := time.Date(2024, 1, 2, 9, 15, 0, 0, types.MarketTZ).Unix()
	d2 := time.Date(2024, 1, 3, 9, 15, 0, 0, types.MarketTZ).Unix()
	d3 := time.Date(2024, 1, 4, 9, 15, 0, 0, types.MarketTZ).Unix()
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%d,%d,%d],"indicators":{"quote":[{
		"open":[2500.5,null,2550],"high":[2520,null,2560],"low":[2490,null,2540],"close":[2510,null,2555],"volume":[100,null,300]}]}}],"error":null}}`, d1, d2, d3)
}

func TestFetchTriesSpellingsInOrder(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		if strings.HasSuffix(r.URL.Path, "RELIANCE.NS") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, chartBody())
	}))
	defer srv.Close()

	s, err := New(Params{BaseURL: srv.URL}).Fetch(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []string{"/v8/finance/chart/RELIANCE.NS", "/v8/finance/chart/RELIANCE.BO"}, paths)
	require.Len(t, s.Candles, 2, "null bars skipped")
	assert.Equal(t, types.DayOf(time.Date(2024, 1, 2, 0, 0, 0, 0, types.MarketTZ)), s.Candles[0].Time)
	assert.Equal(t, 2500.5, s.Candles[0].Open)
	assert.Equal(t, "reliance", s.Symbol)
	assert.Equal(t, Name, s.Source)
}

func TestFetchChartErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer srv.Close()

	_, err := New(Params{BaseURL: srv.URL}).Fetch(context.Background(), request())
	assert.ErrorIs(t, err, types.ErrDataUnavailable)
}

func TestFetchThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(Params{BaseURL: srv.URL}).Fetch(context.Background(), request())
	assert.ErrorIs(t, err, types.ErrProviderRateLimited)
}
