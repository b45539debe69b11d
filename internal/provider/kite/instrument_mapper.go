package kite

import (
	"strings"
	"sync"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// instrumentMapper maps tradingsymbols to instrument tokens for one exchange.
// The dump is loaded once and reused for the life of the provider.
type instrumentMapper struct {
	symbolToToken map[string]int
	loaded        bool
	mu            sync.RWMutex
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{symbolToToken: make(map[string]int)}
}

func (im *instrumentMapper) isLoaded() bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.loaded
}

// load replaces all mappings with the given dump.
func (im *instrumentMapper) load(instruments kiteconnect.Instruments, exchange string) {
	m := make(map[string]int, len(instruments))
	for _, ins := range instruments {
		if exchange != "" && !strings.EqualFold(ins.Exchange, exchange) {
			continue
		}
		m[strings.ToUpper(ins.Tradingsymbol)] = ins.InstrumentToken
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	im.symbolToToken = m
	im.loaded = true
}

func (im *instrumentMapper) getToken(tradingsymbol string) (int, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	token, exists := im.symbolToToken[strings.ToUpper(tradingsymbol)]
	return token, exists
}

func (im *instrumentMapper) size() int {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return len(im.symbolToToken)
}
