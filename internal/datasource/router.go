package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"signal-backtest/internal/interfaces"
	"signal-backtest/internal/logger"
	"signal-backtest/internal/types"
)

const defaultFetchTimeout = 30 * time.Second

// Source is one entry of the router's fallback chain.
type Source struct {
	Provider interfaces.SeriesProvider
	// DailyBudget caps successful calls per market day; <= 0 is unlimited.
	DailyBudget int
	// Limiter paces calls to the vendor; nil means no pacing.
	Limiter *RateLimiter
}

type sourceState struct {
	Source
	name      string
	used      int
	exhausted bool
}

// UnavailableError lists what each source said before the router gave up.
type UnavailableError struct {
	Key      string
	Attempts []string
}

func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: %s", types.ErrDataUnavailable, e.Key)
	}
	return fmt.Sprintf("%s: %s (%s)", types.ErrDataUnavailable, e.Key, strings.Join(e.Attempts, "; "))
}

func (e *UnavailableError) Unwrap() error { return types.ErrDataUnavailable }

type Option func(*Router)

// WithFetchTimeout bounds every individual provider call.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithCache bounds the series cache. maxEntries <= 0 is unbounded and
// ttl <= 0 never expires.
func WithCache(maxEntries int, ttl time.Duration) Option {
	return func(r *Router) {
		r.cacheMax = maxEntries
		r.cacheTTL = ttl
	}
}

// WithClock overrides time.Now for budget rollover and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// Router resolves series requests across an ordered chain of providers with
// per-day call budgets, a bounded cache and single-flight de-duplication.
// One Router is one budget/cache domain; share it across runs only on
// purpose.
type Router struct {
	mu      sync.Mutex
	sources []*sourceState
	day     time.Time

	cache *seriesCache
	group singleflight.Group

	fetchTimeout time.Duration
	cacheMax     int
	cacheTTL     time.Duration
	now          func() time.Time
}

func NewRouter(sources []Source, opts ...Option) (*Router, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no data providers registered", types.ErrConfiguration)
	}

	r := &Router{
		fetchTimeout: defaultFetchTimeout,
		cacheMax:     512,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	seen := make(map[string]bool, len(sources))
	for i, s := range sources {
		if s.Provider == nil {
			return nil, fmt.Errorf("%w: source %d has no provider", types.ErrConfiguration, i)
		}
		name := s.Provider.Name()
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate provider %q", types.ErrConfiguration, name)
		}
		seen[name] = true
		r.sources = append(r.sources, &sourceState{Source: s, name: name})
	}

	r.cache = newSeriesCache(r.cacheMax, r.cacheTTL, r.now)
	r.day = types.DayOf(r.now())
	return r, nil
}

// Fetch returns the series for req from cache or the first provider that
// can serve it. Concurrent calls for the same request share one resolution.
func (r *Router) Fetch(ctx context.Context, req types.SeriesRequest) (*types.CandleSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := req.Key()
	if s, ok := r.cache.Get(key); ok {
		logger.Debug(ctx, "Series cache hit", "key", key)
		return s, nil
	}

	for {
		ch := r.group.DoChan(key, func() (interface{}, error) {
			return r.resolve(ctx, req, key)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// The shared call belonged to a caller that went away; we are
				// still live, so resolve again.
				if isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return res.Val.(*types.CandleSeries), nil
		}
	}
}

func (r *Router) resolve(ctx context.Context, req types.SeriesRequest, key string) (*types.CandleSeries, error) {
	if s, ok := r.cache.Get(key); ok {
		return s, nil
	}

	attempts := make([]string, 0, len(r.sources))
	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.reserve(src) {
			attempts = append(attempts, src.name+": budget exhausted")
			continue
		}

		series, err := r.call(ctx, src, req)
		if err == nil && series.Empty() {
			err = fmt.Errorf("%w: empty series", types.ErrDataUnavailable)
		}
		if err != nil {
			r.release(src, errors.Is(err, types.ErrProviderRateLimited))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Fallback(ctx, src.name, key, err)
			attempts = append(attempts, src.name+": "+err.Error())
			continue
		}

		if series.Source == "" {
			series.Source = src.name
		}
		r.cache.Set(key, series)
		logger.Debug(ctx, "Series fetched", "key", key, "source", src.name, "candles", series.Len())
		return series, nil
	}

	return nil, &UnavailableError{Key: key, Attempts: attempts}
}

func (r *Router) call(ctx context.Context, src *sourceState, req types.SeriesRequest) (*types.CandleSeries, error) {
	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	if err := src.Limiter.Wait(fctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return src.Provider.Fetch(fctx, req)
}

// reserve takes a budget slot before the call so concurrent resolutions of
// different keys cannot overshoot; release gives it back on failure.
func (r *Router) reserve(s *sourceState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rolloverLocked()
	if s.exhausted {
		return false
	}
	if s.DailyBudget > 0 && s.used >= s.DailyBudget {
		return false
	}
	s.used++
	return true
}

func (r *Router) release(s *sourceState, throttled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.used > 0 {
		s.used--
	}
	if throttled {
		s.exhausted = true
	}
}

func (r *Router) rolloverLocked() {
	today := types.DayOf(r.now())
	if today.Equal(r.day) {
		return
	}
	r.day = today
	for _, s := range r.sources {
		s.used = 0
		s.exhausted = false
	}
}

// Usage snapshots per-source budget consumption in chain order.
func (r *Router) Usage() []types.SourceUsage {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rolloverLocked()
	out := make([]types.SourceUsage, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, types.SourceUsage{
			Name:      s.name,
			Used:      s.used,
			Budget:    s.DailyBudget,
			Exhausted: s.exhausted || (s.DailyBudget > 0 && s.used >= s.DailyBudget),
		})
	}
	return out
}

// CacheLen reports how many series are cached.
func (r *Router) CacheLen() int {
	return r.cache.Len()
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
