// Package registry loads the ticker universe and removes blacklisted symbols.
package registry

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"quotescraper/internal/blacklist"
	"quotescraper/internal/utils"
	"quotescraper/models"
)

// ErrUnavailable is matched by every error that makes the ticker source unusable.
var ErrUnavailable = errors.New("ticker registry unavailable")

// UnavailableError reports which primary source could not be read.
type UnavailableError struct {
	Source string
	Cause  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ticker registry unavailable (%s): %v", e.Source, e.Cause)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// TickerSource yields the full ticker universe, blacklist not applied.
type TickerSource interface {
	Tickers(ctx context.Context) ([]models.Ticker, error)
	String() string
}

// Universe is the result of a registry load.
type Universe struct {
	Tickers   []models.Ticker
	Blacklist map[string]struct{}
	Excluded  int
}

type Registry struct {
	source    TickerSource
	blacklist blacklist.Store
	logger    *utils.Logger
}

func New(source TickerSource, store blacklist.Store, logger *utils.Logger) *Registry {
	return &Registry{source: source, blacklist: store, logger: logger}
}

func (r *Registry) Source() TickerSource {
	return r.source
}

// Load reads the universe and drops blacklisted symbols. Only a failing
// ticker source is an error; an unreadable blacklist counts as empty.
func (r *Registry) Load(ctx context.Context) (*Universe, error) {
	tickers, err := r.source.Tickers(ctx)
	if err != nil {
		var unavailable *UnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, &UnavailableError{Source: r.source.String(), Cause: err}
	}

	set := r.LoadBlacklist(ctx)

	u := &Universe{Blacklist: set, Tickers: make([]models.Ticker, 0, len(tickers))}
	for _, t := range tickers {
		if _, banned := set[t.Symbol]; banned {
			u.Excluded++
			continue
		}
		u.Tickers = append(u.Tickers, t)
	}

	r.logger.Info("Loaded %d tickers from %s (%d blacklisted)", len(u.Tickers), r.source, u.Excluded)
	return u, nil
}

// LoadBlacklist returns the stored blacklist, or an empty set with a
// warning when it cannot be read.
func (r *Registry) LoadBlacklist(ctx context.Context) map[string]struct{} {
	set := make(map[string]struct{})
	if r.blacklist == nil {
		return set
	}
	symbols, err := r.blacklist.Symbols(ctx)
	if err != nil {
		r.logger.Warn("Blacklist unavailable, continuing without it: %v", err)
		return set
	}
	for _, s := range symbols {
		set[models.CanonicalSymbol(s)] = struct{}{}
	}
	return set
}

// CSVSource reads a CSV with a header row. The symbol column is named id,
// symbol or ticker; the optional name column is name or nome.
type CSVSource struct {
	Path string
}

func (s CSVSource) String() string {
	return s.Path
}

func (s CSVSource) Tickers(ctx context.Context) ([]models.Ticker, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, &UnavailableError{Source: s.Path, Cause: err}
	}
	defer file.Close()

	tickers, err := ReadTickers(file)
	if err != nil {
		return nil, &UnavailableError{Source: s.Path, Cause: err}
	}
	return tickers, nil
}

// ReadTickers parses ticker CSV content from r.
func ReadTickers(r io.Reader) ([]models.Ticker, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	symbolCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "id", "symbol", "ticker":
			if symbolCol < 0 {
				symbolCol = i
			}
		case "name", "nome":
			if nameCol < 0 {
				nameCol = i
			}
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("no id/symbol/ticker column in header %v", header)
	}

	var tickers []models.Ticker
	seen := make(map[string]struct{})
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tickers: %w", err)
		}
		if symbolCol >= len(record) {
			continue
		}
		t := models.Ticker{Symbol: models.CanonicalSymbol(record[symbolCol])}
		if t.Symbol == "" {
			continue
		}
		if _, dup := seen[t.Symbol]; dup {
			continue
		}
		if nameCol >= 0 && nameCol < len(record) {
			t.Name = strings.TrimSpace(record[nameCol])
		}
		seen[t.Symbol] = struct{}{}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

// StaticSource serves a fixed ticker list, e.g. from a -ticker flag or an API call.
type StaticSource []models.Ticker

func (s StaticSource) String() string {
	return "static list"
}

func (s StaticSource) Tickers(ctx context.Context) ([]models.Ticker, error) {
	tickers := make([]models.Ticker, 0, len(s))
	seen := make(map[string]struct{})
	for _, t := range s {
		t.Symbol = models.CanonicalSymbol(t.Symbol)
		if t.Symbol == "" {
			continue
		}
		if _, dup := seen[t.Symbol]; dup {
			continue
		}
		seen[t.Symbol] = struct{}{}
		tickers = append(tickers, t)
	}
	return tickers, nil
}
