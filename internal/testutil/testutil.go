// Package testutil provides in-memory quote sources for tests.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"quotescraper/internal/scraper"
	"quotescraper/models"
)

// StubSource answers from fixed tables keyed by canonical symbol (suffix
// removed). Symbols absent from both tables yield a missing-field error.
type StubSource struct {
	MarketSuffix string
	Fields       map[string]scraper.Fields
	Errors       map[string]error
	Panics       map[string]bool
	Delay        time.Duration

	mu     sync.Mutex
	calls  map[string]int
	active int
	peak   int
}

func NewStubSource(suffix string) *StubSource {
	return &StubSource{
		MarketSuffix: suffix,
		Fields:       make(map[string]scraper.Fields),
		Errors:       make(map[string]error),
		Panics:       make(map[string]bool),
	}
}

// Quote registers a usable quote for symbol.
func (s *StubSource) Quote(symbol, price, variation, pct string) *StubSource {
	s.Fields[models.CanonicalSymbol(symbol)] = scraper.Fields{Price: price, Variation: variation, VariationPct: pct}
	return s
}

// Noise registers the degenerate 0.00/0.00 shape for symbol.
func (s *StubSource) Noise(symbol string) *StubSource {
	return s.Quote(symbol, "1,00", "0.00", "0.00")
}

// Fail makes symbol fail with err.
func (s *StubSource) Fail(symbol string, err error) *StubSource {
	s.Errors[models.CanonicalSymbol(symbol)] = err
	return s
}

func (s *StubSource) Name() string   { return "stub" }
func (s *StubSource) Suffix() string { return s.MarketSuffix }

func (s *StubSource) Retrieve(ctx context.Context, symbol string) (scraper.Fields, error) {
	key := strings.TrimSuffix(symbol, strings.ToUpper(s.MarketSuffix))

	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[key]++
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return scraper.Fields{}, scraper.NewTimeoutError(ctx.Err())
		case <-time.After(s.Delay):
		}
	}
	if s.Panics[key] {
		panic("stub source exploded on " + key)
	}
	if err, ok := s.Errors[key]; ok {
		return scraper.Fields{}, err
	}
	if f, ok := s.Fields[key]; ok {
		return f, nil
	}
	return scraper.Fields{}, scraper.NewMissingFieldError("price")
}

// Calls returns how many times symbol was retrieved.
func (s *StubSource) Calls(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[models.CanonicalSymbol(symbol)]
}

// TotalCalls returns the number of retrievals across all symbols.
func (s *StubSource) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// PeakConcurrency is the highest number of simultaneous Retrieve calls seen.
func (s *StubSource) PeakConcurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// Tickers builds a ticker list from symbols.
func Tickers(symbols ...string) []models.Ticker {
	tickers := make([]models.Ticker, len(symbols))
	for i, s := range symbols {
		tickers[i] = models.Ticker{Symbol: s}
	}
	return tickers
}
