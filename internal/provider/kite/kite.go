// Package kite serves historical candles from Zerodha Kite Connect.
package kite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/provider/resolve"
	"signal-backtest/internal/types"
)

const Name = "kite"

// Tradingsymbol spellings in preference order.
var spellings = []string{"%s", "%s-EQ", "%s-BE", "%s-SM"}

// historyAPI is the slice of the Kite client this provider needs.
type historyAPI interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

type Params struct {
	APIKey      string
	AccessToken string
	Exchange    string
	HTTPTimeout time.Duration
}

type Provider struct {
	p      Params
	kc     historyAPI
	mapper *instrumentMapper
	loadMu sync.Mutex
}

var _ interfaces.SeriesProvider = (*Provider)(nil)

func New(p Params) (*Provider, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, fmt.Errorf("%w: kite api key and access token are required", types.ErrConfiguration)
	}
	if p.Exchange == "" {
		p.Exchange = "NSE"
	}
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	if p.HTTPTimeout > 0 {
		kc.SetHTTPClient(&http.Client{Timeout: p.HTTPTimeout})
	}
	return newWithAPI(p, kc), nil
}

func newWithAPI(p Params, kc historyAPI) *Provider {
	return &Provider{p: p, kc: kc, mapper: newInstrumentMapper()}
}

func (k *Provider) Name() string { return Name }

func (k *Provider) Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	interval, ok := kiteInterval(req.Interval)
	if !ok {
		return nil, fmt.Errorf("%w: kite has no %s candles", types.ErrDataUnavailable, req.Interval)
	}
	if err := k.ensureInstruments(ctx); err != nil {
		return nil, err
	}

	series, used, err := resolve.FirstNonEmpty(ctx, resolve.Candidates(req.Symbol, spellings...),
		func(ctx context.Context, tradingsymbol string) (*types.CandleSeries, error) {
			token, ok := k.mapper.getToken(tradingsymbol)
			if !ok {
				return nil, fmt.Errorf("no instrument on %s", k.p.Exchange)
			}
			return k.history(ctx, req, token, interval)
		})
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "Kite series resolved", "symbol", req.Symbol, "tradingsymbol", used, "candles", series.Len())
	series.Symbol = req.Symbol
	return series, nil
}

func (k *Provider) ensureInstruments(ctx context.Context) error {
	if k.mapper.isLoaded() {
		return nil
	}
	k.loadMu.Lock()
	defer k.loadMu.Unlock()
	if k.mapper.isLoaded() {
		return nil
	}

	instruments, err := callWithContext(ctx, func() (kiteconnect.Instruments, error) {
		return k.kc.GetInstrumentsByExchange(k.p.Exchange)
	})
	if err != nil {
		return classify(fmt.Errorf("load %s instruments: %w", k.p.Exchange, err))
	}
	k.mapper.load(instruments, k.p.Exchange)
	logger.Info(ctx, "Kite instruments loaded", "exchange", k.p.Exchange, "count", k.mapper.size())
	return nil
}

func (k *Provider) history(ctx context.Context, req types.SeriesRequest, token int, interval string) (*types.CandleSeries, error) {
	rows, err := callWithContext(ctx, func() ([]kiteconnect.HistoricalData, error) {
		return k.kc.GetHistoricalData(token, interval, req.Start.In(types.MarketTZ), req.End.In(types.MarketTZ), false, false)
	})
	if err != nil {
		return nil, classify(err)
	}

	series := &types.CandleSeries{Symbol: req.Symbol, Interval: req.Interval, Source: Name}
	series.Candles = make([]types.Candle, 0, len(rows))
	for _, r := range rows {
		series.Candles = append(series.Candles, types.Candle{
			Time:   r.Date.Time.In(types.MarketTZ),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: float64(r.Volume),
		})
	}
	series.Normalize()
	return series, nil
}

func kiteInterval(iv types.Interval) (string, bool) {
	switch iv {
	case types.Interval1m:
		return "minute", true
	case types.Interval5m:
		return "5minute", true
	case types.Interval15m:
		return "15minute", true
	case types.Interval30m:
		return "30minute", true
	case types.Interval1h:
		return "60minute", true
	case types.Interval1d:
		return "day", true
	}
	return "", false
}

// classify maps Kite throttling onto the shared rate-limit sentinel.
func classify(err error) error {
	var kerr kiteconnect.Error
	if errors.As(err, &kerr) && kerr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", types.ErrProviderRateLimited, err)
	}
	return err
}

// callWithContext runs a blocking SDK call but returns as soon as ctx is
// done. The SDK call itself is bounded by the HTTP client timeout.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
