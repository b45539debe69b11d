package types

import "errors"

var (
	// ErrDataUnavailable: no provider could produce a non-empty series.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrProviderRateLimited is returned by a provider when the vendor throttles
	// it. The router treats it as a soft failure and stops using the source
	// for the rest of the day.
	ErrProviderRateLimited = errors.New("provider rate limited")
	// ErrConfiguration is fatal and raised before any trade is processed.
	ErrConfiguration = errors.New("configuration error")
)
