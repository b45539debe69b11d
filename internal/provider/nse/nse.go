// Package nse scrapes the NSE India historical equity report.
package nse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"signal-backtest/internal/api"
	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/provider/resolve"
	"signal-backtest/internal/types"
)

const (
	Name           = "nse"
	DefaultBaseURL = "https://www1.nseindia.com"
	reportPath     = "/products/dynaContent/common/productsSymbolMapping.jsp"
	dateLayout     = "02-Jan-2006"
	queryLayout    = "02-01-2006"
)

// Equity series in preference order; the symbol itself is passed separately.
var series = []string{"EQ", "BE"}

type Params struct {
	BaseURL string
	Timeout time.Duration
}

type Provider struct {
	p Params
}

var _ interfaces.SeriesProvider = (*Provider)(nil)

func New(p Params) *Provider {
	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return &Provider{p: p}
}

func (n *Provider) Name() string { return Name }

// Fetch only serves daily bars; wrap it with the resampler for anything else.
func (n *Provider) Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	if req.Interval != types.Interval1d {
		return nil, fmt.Errorf("%w: nse report is daily only, got %s", types.ErrDataUnavailable, req.Interval)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	out, used, err := resolve.FirstNonEmpty(ctx, series, func(ctx context.Context, s string) (*types.CandleSeries, error) {
		return n.scrape(ctx, req, symbol, s)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "NSE report parsed", "symbol", symbol, "series", used, "candles", out.Len())
	return out, nil
}

func (n *Provider) scrape(ctx context.Context, req types.SeriesRequest, symbol, eqSeries string) (*types.CandleSeries, error) {
	q := url.Values{
		"symbol":      {symbol},
		"segmentLink": {"3"},
		"symbolCount": {"1"},
		"series":      {eqSeries},
		"dateRange":   {" "},
		"fromDate":    {req.Start.In(types.MarketTZ).Format(queryLayout)},
		"toDate":      {req.End.In(types.MarketTZ).Format(queryLayout)},
		"dataType":    {"PRICEVOLUMEDELIVERABLE"},
	}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.MaxDepth(1),
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(n.p.Timeout)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range api.NSEHeaders() {
			r.Headers.Set(k, v)
		}
	})

	out := &types.CandleSeries{Symbol: req.Symbol, Interval: types.Interval1d, Source: Name}
	var parseErr error
	c.OnHTML("table", func(e *colly.HTMLElement) {
		candles, err := parseTable(e.DOM)
		if err != nil {
			parseErr = err
			return
		}
		out.Candles = append(out.Candles, candles...)
	})

	status := 0
	c.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
	})

	if err := c.Visit(n.p.BaseURL + reportPath + "?" + q.Encode()); err != nil {
		if status == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: nse returned 429", types.ErrProviderRateLimited)
		}
		return nil, fmt.Errorf("nse report: %w", err)
	}
	if parseErr != nil && len(out.Candles) == 0 {
		return nil, parseErr
	}

	out.Candles = filterRange(out.Candles, req)
	out.Normalize()
	return out, nil
}

// parseTable reads one report table, locating columns by header text.
// Tables without the expected headers yield no candles.
func parseTable(table *goquery.Selection) ([]types.Candle, error) {
	cols := map[string]int{}
	table.Find("tr").First().Find("th,td").Each(func(i int, cell *goquery.Selection) {
		cols[normalizeHeader(cell.Text())] = i
	})

	need := []string{"date", "open price", "high price", "low price", "close price"}
	for _, h := range need {
		if _, ok := cols[h]; !ok {
			return nil, nil
		}
	}

	var (
		candles []types.Candle
		rowErr  error
	)
	table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= cols["close price"] {
			return
		}
		cell := func(h string) string {
			idx, ok := cols[h]
			if !ok {
				return ""
			}
			return strings.TrimSpace(cells.Eq(idx).Text())
		}

		ts, err := time.ParseInLocation(dateLayout, cell("date"), types.MarketTZ)
		if err != nil {
			rowErr = fmt.Errorf("nse row date %q: %w", cell("date"), err)
			return
		}
		candles = append(candles, types.Candle{
			Time:   ts,
			Open:   number(cell("open price")),
			High:   number(cell("high price")),
			Low:    number(cell("low price")),
			Close:  number(cell("close price")),
			Volume: number(cell("total traded quantity")),
		})
	})
	if len(candles) == 0 && rowErr != nil {
		return nil, rowErr
	}
	return candles, nil
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func number(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func filterRange(candles []types.Candle, req types.SeriesRequest) []types.Candle {
	from, to := types.DayOf(req.Start), types.DayOf(req.End)
	out := candles[:0]
	for _, c := range candles {
		if c.Time.Before(from) || c.Time.After(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}
