// Package yahoo serves candles from the Yahoo Finance v8 chart API.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"signal-backtest/internal/api"
	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/provider/resolve"
	"signal-backtest/internal/types"
)

const (
	Name           = "yahoo"
	DefaultBaseURL = "https://query1.finance.yahoo.com"
)

// Ticker spellings in preference order: NSE, BSE, bare, then the
// series-suffixed NSE forms.
var spellings = []string{"%s.NS", "%s.BO", "%s", "%s-EQ.NS", "%s-BE.NS"}

type Params struct {
	BaseURL string
	Timeout time.Duration
}

type Provider struct {
	client *api.Client
}

var _ interfaces.SeriesProvider = (*Provider)(nil)

func New(p Params) *Provider {
	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return &Provider{client: api.NewClient(
		api.WithBaseURL(p.BaseURL),
		api.WithTimeout(p.Timeout),
		api.WithHeaders(api.YahooFinanceHeaders()),
		api.WithLogging(true),
	)}
}

func (y *Provider) Name() string { return Name }

// chartResponse is the subset of the chart payload we read. Quote arrays
// carry nulls for holidays and halted sessions.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Provider) Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	interval, ok := yahooInterval(req.Interval)
	if !ok {
		return nil, fmt.Errorf("%w: yahoo has no %s bars", types.ErrDataUnavailable, req.Interval)
	}

	series, _, err := resolve.FirstNonEmpty(ctx, resolve.Candidates(req.Symbol, spellings...),
		func(ctx context.Context, ticker string) (*types.CandleSeries, error) {
			return y.chart(ctx, req, ticker, interval)
		})
	if err != nil {
		return nil, err
	}
	series.Symbol = req.Symbol
	return series, nil
}

func (y *Provider) chart(ctx context.Context, req types.SeriesRequest, ticker, interval string) (*types.CandleSeries, error) {
	end := req.End
	if req.Interval.Daily() {
		// period2 is exclusive
		end = types.DayOf(req.End).AddDate(0, 0, 1)
	}
	q := url.Values{
		"period1":  {strconv.FormatInt(req.Start.Unix(), 10)},
		"period2":  {strconv.FormatInt(end.Unix(), 10)},
		"interval": {interval},
		"events":   {"history"},
	}

	resp, err := y.client.GET(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), q)
	if err != nil {
		var se *api.StatusError
		switch {
		case api.IsThrottled(err):
			return nil, fmt.Errorf("%w: %v", types.ErrProviderRateLimited, err)
		case errors.As(err, &se) && se.StatusCode == 404:
			return nil, fmt.Errorf("%w: unknown ticker", types.ErrDataUnavailable)
		}
		return nil, err
	}

	var chart chartResponse
	if err := resp.ParseJSON(&chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrDataUnavailable, chart.Chart.Error.Description)
	}

	out := &types.CandleSeries{Symbol: req.Symbol, Interval: req.Interval, Source: Name}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return out, nil
	}
	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue
		}
		t := time.Unix(ts, 0).In(types.MarketTZ)
		if req.Interval.Daily() {
			t = types.DayOf(t)
		}
		out.Candles = append(out.Candles, types.Candle{
			Time:   t,
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: at(quote.Volume, i),
		})
	}
	out.Normalize()
	return out, nil
}

func at(vals []*float64, i int) float64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	return *vals[i]
}

func yahooInterval(iv types.Interval) (string, bool) {
	switch iv {
	case types.Interval1m, types.Interval5m, types.Interval15m, types.Interval30m, types.Interval1d, types.Interval1wk:
		return string(iv), true
	case types.Interval1h:
		return "60m", true
	}
	return "", false
}
