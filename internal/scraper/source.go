// Package scraper retrieves quote fields for one ticker from a configurable
// source and classifies them into a quote or a failure.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"quotescraper/internal/utils"
)

// Fields are the raw strings a source found for one ticker, before parsing.
type Fields struct {
	Price        string
	Variation    string
	VariationPct string
}

// Page is a captured quote page: its visible text and its markup.
type Page struct {
	Text string
	HTML string
}

// Source retrieves raw quote fields. symbol already carries Suffix().
type Source interface {
	Name() string
	Suffix() string
	Retrieve(ctx context.Context, symbol string) (Fields, error)
}

// Checker is implemented by sources that can verify their backend before a run.
type Checker interface {
	Check(ctx context.Context) error
}

// NewSource builds the source selected by cfg.Source. Sources holding
// resources (a browser allocator) implement io.Closer.
func NewSource(cfg utils.ScraperConfig, logger *utils.Logger) (Source, error) {
	switch cfg.Source {
	case utils.SourceChart:
		return NewChartSource(cfg.URL, cfg.Suffix, ChartOptions{
			Timeout:   cfg.TimeoutDuration(),
			UserAgent: cfg.UserAgent,
			Retries:   cfg.Retries,
		}, logger), nil
	case utils.SourceBrowser, utils.SourceHTML:
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}

	rule, err := RuleFromConfig(cfg.Rule)
	if err != nil {
		return nil, err
	}

	if cfg.Source == utils.SourceHTML {
		return &HTMLSource{
			Client:       &http.Client{},
			Rule:         rule,
			URLTemplate:  cfg.URL,
			MarketSuffix: cfg.Suffix,
			UserAgent:    cfg.UserAgent,
			Timeout:      cfg.TimeoutDuration(),
		}, nil
	}

	return &BrowserSource{
		Opener:       NewChromeOpener(cfg.Browser, cfg.UserAgent, logger),
		Rule:         rule,
		URLTemplate:  cfg.URL,
		MarketSuffix: cfg.Suffix,
		WaitSelector: cfg.WaitSelector,
		Settle:       cfg.SettleDuration(),
		Timeout:      cfg.TimeoutDuration(),
	}, nil
}

// BuildURL substitutes {symbol} in template, or appends the symbol as the
// last path segment when the placeholder is absent.
func BuildURL(template, symbol string) string {
	if strings.Contains(template, "{symbol}") {
		return strings.ReplaceAll(template, "{symbol}", symbol)
	}
	return strings.TrimRight(template, "/") + "/" + symbol
}
