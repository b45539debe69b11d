// Package smartapi serves candles from Angel One SmartAPI using an already
// issued session token.
package smartapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal-backtest/internal/api"
	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/provider/resolve"
	"signal-backtest/internal/types"
)

const (
	Name           = "smartapi"
	DefaultBaseURL = "https://apiconnect.angelbroking.com"
	candlePath     = "/rest/secure/angelbroking/historical/v1/getCandleData"
	requestLayout  = "2006-01-02 15:04"
)

var spellings = []string{"%s-EQ", "%s"}

type Params struct {
	APIKey   string
	JWT      string
	Exchange string
	BaseURL  string
	Timeout  time.Duration
	// SymbolTokens maps tradingsymbols (e.g. "SBIN-EQ") to SmartAPI tokens.
	SymbolTokens map[string]string
}

type Provider struct {
	p      Params
	tokens map[string]string
	client *api.Client
}

var _ interfaces.SeriesProvider = (*Provider)(nil)

func New(p Params) (*Provider, error) {
	if p.APIKey == "" || p.JWT == "" {
		return nil, fmt.Errorf("%w: smartapi api key and jwt are required", types.ErrConfiguration)
	}
	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	if p.Exchange == "" {
		p.Exchange = "NSE"
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	tokens := make(map[string]string, len(p.SymbolTokens))
	for k, v := range p.SymbolTokens {
		tokens[strings.ToUpper(k)] = v
	}
	return &Provider{
		p:      p,
		tokens: tokens,
		client: api.NewClient(
			api.WithBaseURL(p.BaseURL),
			api.WithTimeout(p.Timeout),
			api.WithHeaders(api.SmartAPIHeaders(p.APIKey, p.JWT)),
			api.WithLogging(true),
		),
	}, nil
}

func (s *Provider) Name() string { return Name }

type candleRequest struct {
	Exchange    string `json:"exchange"`
	SymbolToken string `json:"symboltoken"`
	Interval    string `json:"interval"`
	FromDate    string `json:"fromdate"`
	ToDate      string `json:"todate"`
}

// candleResponse rows are [timestamp, open, high, low, close, volume].
type candleResponse struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      [][]interface{} `json:"data"`
}

func (s *Provider) Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	interval, ok := smartInterval(req.Interval)
	if !ok {
		return nil, fmt.Errorf("%w: smartapi has no %s candles", types.ErrDataUnavailable, req.Interval)
	}

	series, _, err := resolve.FirstNonEmpty(ctx, resolve.Candidates(req.Symbol, spellings...),
		func(ctx context.Context, tradingsymbol string) (*types.CandleSeries, error) {
			token, ok := s.tokens[tradingsymbol]
			if !ok {
				return nil, fmt.Errorf("no symbol token configured")
			}
			return s.candles(ctx, req, token, interval)
		})
	if err != nil {
		return nil, err
	}
	series.Symbol = req.Symbol
	return series, nil
}

func (s *Provider) candles(ctx context.Context, req types.SeriesRequest, token, interval string) (*types.CandleSeries, error) {
	from, to := req.Start.In(types.MarketTZ), req.End.In(types.MarketTZ)
	if req.Interval.Daily() {
		from = types.DayOf(from).Add(9*time.Hour + 15*time.Minute)
		to = types.DayOf(to).Add(15*time.Hour + 30*time.Minute)
	}
	body := candleRequest{
		Exchange:    s.p.Exchange,
		SymbolToken: token,
		Interval:    interval,
		FromDate:    from.Format(requestLayout),
		ToDate:      to.Format(requestLayout),
	}

	resp, err := s.client.POST(ctx, candlePath, body)
	if err != nil {
		if api.IsThrottled(err) {
			return nil, fmt.Errorf("%w: %v", types.ErrProviderRateLimited, err)
		}
		return nil, err
	}

	var cr candleResponse
	if err := resp.ParseJSON(&cr); err != nil {
		return nil, err
	}
	if !cr.Status {
		if strings.Contains(strings.ToLower(cr.Message), "access rate") {
			return nil, fmt.Errorf("%w: %s", types.ErrProviderRateLimited, cr.Message)
		}
		return nil, fmt.Errorf("%w: smartapi %s %s", types.ErrDataUnavailable, cr.ErrorCode, cr.Message)
	}

	out := &types.CandleSeries{Symbol: req.Symbol, Interval: req.Interval, Source: Name}
	for _, row := range cr.Data {
		c, ok := parseRow(row, req.Interval)
		if !ok {
			continue
		}
		out.Candles = append(out.Candles, c)
	}
	out.Normalize()
	return out, nil
}

func parseRow(row []interface{}, iv types.Interval) (types.Candle, bool) {
	if len(row) < 6 {
		return types.Candle{}, false
	}
	raw, ok := row[0].(string)
	if !ok {
		return types.Candle{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return types.Candle{}, false
	}
	t = t.In(types.MarketTZ)
	if iv.Daily() {
		t = types.DayOf(t)
	}
	f := func(v interface{}) float64 {
		n, _ := v.(float64)
		return n
	}
	return types.Candle{Time: t, Open: f(row[1]), High: f(row[2]), Low: f(row[3]), Close: f(row[4]), Volume: f(row[5])}, true
}

func smartInterval(iv types.Interval) (string, bool) {
	switch iv {
	case types.Interval1m:
		return "ONE_MINUTE", true
	case types.Interval5m:
		return "FIVE_MINUTE", true
	case types.Interval15m:
		return "FIFTEEN_MINUTE", true
	case types.Interval30m:
		return "THIRTY_MINUTE", true
	case types.Interval1h:
		return "ONE_HOUR", true
	case types.Interval1d:
		return "ONE_DAY", true
	}
	return "", false
}
