// Package resolve tries vendor-specific spellings of a ticker in order.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"signal-backtest/internal/types"
)

// FetchFunc fetches one spelling of a symbol.
type FetchFunc func(ctx context.Context, spelling string) (*types.CandleSeries, error)

// Candidates builds spellings from a base symbol. Each pattern is applied to
// the upper-cased symbol with "%s"; duplicates are dropped and order kept.
func Candidates(symbol string, patterns ...string) []string {
	base := strings.ToUpper(strings.TrimSpace(symbol))
	out := make([]string, 0, len(patterns))
	seen := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		s := fmt.Sprintf(p, base)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// FirstNonEmpty returns the first spelling that yields candles, together with
// that spelling. A rate-limit error stops the walk immediately: further
// spellings would hit the same throttled vendor.
func FirstNonEmpty(ctx context.Context, spellings []string, fetch FetchFunc) (*types.CandleSeries, string, error) {
	var errs []error
	for _, s := range spellings {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		series, err := fetch(ctx, s)
		if err != nil {
			if errors.Is(err, types.ErrProviderRateLimited) || ctx.Err() != nil {
				return nil, "", err
			}
			errs = append(errs, fmt.Errorf("%s: %w", s, err))
			continue
		}
		if !series.Empty() {
			return series, s, nil
		}
		errs = append(errs, fmt.Errorf("%s: no candles", s))
	}
	if len(errs) == 0 {
		return nil, "", fmt.Errorf("%w: no symbol spellings to try", types.ErrDataUnavailable)
	}
	return nil, "", fmt.Errorf("%w: %w", types.ErrDataUnavailable, errors.Join(errs...))
}
