// Package alphavantage serves BSE/NSE candles from the Alpha Vantage API.
package alphavantage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"signal-backtest/internal/api"
	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/provider/resolve"
	"signal-backtest/internal/types"
)

const (
	Name           = "alphavantage"
	DefaultBaseURL = "https://www.alphavantage.co"
)

var spellings = []string{"%s.BSE", "%s.NSE"}

type Params struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Provider struct {
	p      Params
	client *api.Client
}

var _ interfaces.SeriesProvider = (*Provider)(nil)

func New(p Params) (*Provider, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("%w: alpha vantage api key is required", types.ErrConfiguration)
	}
	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return &Provider{
		p: p,
		client: api.NewClient(
			api.WithBaseURL(p.BaseURL),
			api.WithTimeout(p.Timeout),
			api.WithHeaders(api.BrowserHeaders()),
			api.WithLogging(true),
		),
	}, nil
}

func (a *Provider) Name() string { return Name }

func (a *Provider) Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	q, layout, ok := query(req.Interval)
	if !ok {
		return nil, fmt.Errorf("%w: alpha vantage has no %s series", types.ErrDataUnavailable, req.Interval)
	}
	q.Set("apikey", a.p.APIKey)

	series, _, err := resolve.FirstNonEmpty(ctx, resolve.Candidates(req.Symbol, spellings...),
		func(ctx context.Context, spelling string) (*types.CandleSeries, error) {
			sq := url.Values{}
			for k, v := range q {
				sq[k] = v
			}
			sq.Set("symbol", spelling)

			resp, err := a.client.GET(ctx, "/query", sq)
			if err != nil {
				if api.IsThrottled(err) {
					return nil, fmt.Errorf("%w: %v", types.ErrProviderRateLimited, err)
				}
				return nil, err
			}
			return parse(resp.Body, req, layout)
		})
	if err != nil {
		return nil, err
	}
	series.Symbol = req.Symbol
	return series, nil
}

func query(iv types.Interval) (url.Values, string, bool) {
	q := url.Values{"outputsize": {"full"}, "datatype": {"json"}}
	switch iv {
	case types.Interval1d:
		q.Set("function", "TIME_SERIES_DAILY")
		return q, "2006-01-02", true
	case types.Interval1wk:
		q.Set("function", "TIME_SERIES_WEEKLY")
		return q, "2006-01-02", true
	case types.Interval1m, types.Interval5m, types.Interval15m, types.Interval30m, types.Interval1h:
		q.Set("function", "TIME_SERIES_INTRADAY")
		q.Set("interval", fmt.Sprintf("%dmin", int(iv.Duration().Minutes())))
		return q, "2006-01-02 15:04:05", true
	}
	return nil, "", false
}

// parse reads a time-series payload. The series key varies by function
// ("Time Series (Daily)", "Time Series (60min)", "Weekly Time Series"), so
// it is discovered rather than hard-coded.
func parse(body []byte, req types.SeriesRequest, layout string) (*types.CandleSeries, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("alpha vantage: invalid json")
	}
	doc := gjson.ParseBytes(body)

	if note := firstString(doc, "Note", "Information"); note != "" {
		return nil, fmt.Errorf("%w: %s", types.ErrProviderRateLimited, note)
	}
	if msg := doc.Get("Error Message").String(); msg != "" {
		return nil, fmt.Errorf("%w: %s", types.ErrDataUnavailable, msg)
	}

	var ts gjson.Result
	doc.ForEach(func(key, value gjson.Result) bool {
		if strings.Contains(key.String(), "Time Series") {
			ts = value
			return false
		}
		return true
	})
	if !ts.Exists() {
		return nil, fmt.Errorf("%w: no time series in response", types.ErrDataUnavailable)
	}

	from, to := req.Start, req.End
	if req.Interval.Daily() {
		from, to = types.DayOf(req.Start), types.DayOf(req.End)
	}

	out := &types.CandleSeries{Symbol: req.Symbol, Interval: req.Interval, Source: Name}
	ts.ForEach(func(key, bar gjson.Result) bool {
		t, err := time.ParseInLocation(layout, key.String(), types.MarketTZ)
		if err != nil || t.Before(from) || t.After(to) {
			return true
		}
		out.Candles = append(out.Candles, types.Candle{
			Time:   t,
			Open:   bar.Get("1\\. open").Float(),
			High:   bar.Get("2\\. high").Float(),
			Low:    bar.Get("3\\. low").Float(),
			Close:  bar.Get("4\\. close").Float(),
			Volume: bar.Get("5\\. volume").Float(),
		})
		return true
	})
	out.Normalize()
	return out, nil
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := doc.Get(k).String(); v != "" {
			return v
		}
	}
	return ""
}
