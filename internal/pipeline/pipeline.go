// Package pipeline wires registry, fetcher, dispatcher, blacklist filter and
// writer into the single entry point used by the CLI and the HTTP API.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"quotescraper/internal/blacklist"
	"quotescraper/internal/dispatcher"
	"quotescraper/internal/notify"
	"quotescraper/internal/registry"
	"quotescraper/internal/scraper"
	"quotescraper/internal/utils"
	"quotescraper/internal/writer"
	"quotescraper/models"
)

// ErrBlacklisted is returned by Quote for a symbol in the blacklist.
var ErrBlacklisted = errors.New("symbol is blacklisted")

// Report is the result of one run.
type Report struct {
	RunID    string
	Batch    *models.Batch
	Counts   models.Counts
	Artifact string
	Elapsed  time.Duration
}

func (r *Report) String() string {
	return fmt.Sprintf("run %s: attempted %d, succeeded %d, noise %d, failed %d in %v -> %s",
		r.RunID, r.Counts.Attempted, r.Counts.Succeeded, r.Counts.Noise, r.Counts.Failed,
		r.Elapsed.Round(time.Millisecond), r.Artifact)
}

type Pipeline struct {
	config      *utils.Config
	logger      *utils.Logger
	perfTracker *utils.PerformanceTracker

	source   scraper.Source
	tickers  registry.TickerSource
	store    blacklist.Store
	notifier notify.Notifier

	registry *registry.Registry
	fetcher  *scraper.Fetcher
	filter   *blacklist.Filter
	writer   *writer.Writer
}

type Option func(*Pipeline)

// WithSource replaces the quote source built from scraper.source.
func WithSource(s scraper.Source) Option {
	return func(p *Pipeline) { p.source = s }
}

// WithTickerSource replaces the CSV/SQLite ticker source.
func WithTickerSource(s registry.TickerSource) Option {
	return func(p *Pipeline) { p.tickers = s }
}

// WithStore replaces the file/Redis blacklist store.
func WithStore(s blacklist.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// New builds a pipeline from cfg. Components not supplied through options
// are constructed from the configuration.
func New(cfg *utils.Config, logger *utils.Logger, opts ...Option) (*Pipeline, error) {
	format, err := writer.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:      cfg,
		logger:      logger,
		perfTracker: utils.NewPerformanceTracker(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.source == nil {
		if p.source, err = scraper.NewSource(cfg.Scraper, logger); err != nil {
			return nil, err
		}
	}
	if p.tickers == nil {
		p.tickers = tickerSourceFromConfig(cfg.Tickers)
	}
	if p.store == nil {
		p.store = storeFromConfig(cfg.Blacklist)
	}
	if p.notifier == nil {
		p.notifier = notify.Nop{}
		if cfg.Notify.SlackWebhook != "" {
			p.notifier = notify.NewSlack(cfg.Notify.SlackWebhook)
		}
	}

	p.registry = registry.New(p.tickers, p.store, logger)
	p.fetcher = scraper.NewFetcher(p.source, scraper.Options{
		Retries:     cfg.Scraper.Retries,
		Delay:       cfg.Scraper.DelayDuration(),
		MinInterval: cfg.Scraper.MinInterval(),
	}, p.perfTracker, logger)
	p.filter = blacklist.NewFilter(p.store, logger)
	p.writer = writer.New(cfg.Output.Dir, format, cfg.Output.IncludeFailures, logger)
	return p, nil
}

func tickerSourceFromConfig(cfg utils.TickersConfig) registry.TickerSource {
	if cfg.Database != "" {
		return registry.SQLiteSource{
			Path:         cfg.Database,
			Table:        cfg.Table,
			SymbolColumn: cfg.SymbolColumn,
			NameColumn:   cfg.NameColumn,
		}
	}
	return registry.CSVSource{Path: cfg.File}
}

func storeFromConfig(cfg utils.BlacklistConfig) blacklist.Store {
	if cfg.RedisAddr != "" {
		return blacklist.NewRedisStore(cfg.RedisAddr, cfg.RedisKey)
	}
	return blacklist.NewFileStore(cfg.File)
}

func (p *Pipeline) Config() *utils.Config { return p.config }

func (p *Pipeline) Source() scraper.Source { return p.source }

func (p *Pipeline) Store() blacklist.Store { return p.store }

func (p *Pipeline) Writer() *writer.Writer { return p.writer }

func (p *Pipeline) GetPerformanceTracker() *utils.PerformanceTracker { return p.perfTracker }

// Run processes the configured ticker universe.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	universe, err := p.registry.Load(ctx)
	if err != nil {
		p.notifyFailure(ctx, err)
		return nil, err
	}
	return p.run(ctx, universe.Tickers, p.config.Scraper.Workers)
}

// RunTickers processes an explicit symbol list with the given pool size
// (zero means the configured default). Blacklisted symbols are dropped.
func (p *Pipeline) RunTickers(ctx context.Context, symbols []string, workers int) (*Report, error) {
	list := make(registry.StaticSource, 0, len(symbols))
	for _, s := range symbols {
		list = append(list, models.Ticker{Symbol: s})
	}
	if workers <= 0 {
		workers = p.config.Scraper.Workers
	}
	return p.runSource(ctx, list, workers)
}

// runSource runs every ticker src yields except the blacklisted ones.
func (p *Pipeline) runSource(ctx context.Context, src registry.TickerSource, workers int) (*Report, error) {
	universe, err := registry.New(src, p.store, p.logger).Load(ctx)
	if err != nil {
		p.notifyFailure(ctx, err)
		return nil, err
	}
	return p.run(ctx, universe.Tickers, workers)
}

func (p *Pipeline) run(ctx context.Context, tickers []models.Ticker, workers int) (*Report, error) {
	d := dispatcher.New(workers, p.config.Scraper.DeadlineDuration(), p.perfTracker, p.logger)
	batch := d.Run(ctx, tickers, p.fetchAndFilter)

	report := &Report{
		RunID:   batch.RunID,
		Batch:   batch,
		Counts:  batch.Counts(),
		Elapsed: batch.Elapsed,
	}

	path, err := p.writer.Persist(batch)
	if err != nil {
		p.logger.Error("Failed to save batch %s: %v", batch.RunID, err)
		p.notify(ctx, report, err)
		return report, err
	}
	report.Artifact = path

	p.logger.Info("Aggregate Performance Report:\n%s", p.perfTracker.GenerateAggregateReport())
	p.notify(ctx, report, nil)
	return report, nil
}

// Quote fetches a single symbol outside of a batch. Noise still reaches the
// blacklist; nothing is persisted.
func (p *Pipeline) Quote(ctx context.Context, symbol string) (models.Outcome, error) {
	symbol = models.CanonicalSymbol(symbol)
	if symbol == "" {
		return models.Outcome{}, fmt.Errorf("empty symbol")
	}
	if _, banned := p.registry.LoadBlacklist(ctx)[symbol]; banned {
		return models.Outcome{}, fmt.Errorf("%s: %w", symbol, ErrBlacklisted)
	}
	return p.fetchAndFilter(ctx, symbol), nil
}

// fetchAndFilter runs inside the worker pool, so noise symbols reach the
// blacklist as soon as they are classified.
func (p *Pipeline) fetchAndFilter(ctx context.Context, symbol string) models.Outcome {
	outcome := p.fetcher.Fetch(ctx, symbol)
	// the blacklist append must survive a batch deadline
	if err := p.filter.Apply(context.WithoutCancel(ctx), outcome); err != nil {
		p.logger.Warn("Noise symbol %s was not blacklisted: %v", outcome.Symbol, err)
	}
	return outcome
}

// Persist writes batch again, e.g. after a failed write in Run.
func (p *Pipeline) Persist(batch *models.Batch) (string, error) {
	return p.writer.Persist(batch)
}

func (p *Pipeline) notify(ctx context.Context, report *Report, runErr error) {
	sum := notify.Summary{
		RunID:    report.RunID,
		Source:   p.source.Name(),
		Counts:   report.Counts,
		Artifact: report.Artifact,
		Elapsed:  report.Elapsed,
		Err:      runErr,
	}
	if err := p.notifier.Notify(context.WithoutCancel(ctx), sum); err != nil {
		p.logger.Warn("Run notification failed: %v", err)
	}
}

func (p *Pipeline) notifyFailure(ctx context.Context, runErr error) {
	p.notify(ctx, &Report{}, runErr)
}

// Close releases the quote source and the blacklist store.
func (p *Pipeline) Close() error {
	var errs []string
	for _, r := range []interface{}{p.source, p.store} {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}
