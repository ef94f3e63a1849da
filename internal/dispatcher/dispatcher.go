// Package dispatcher fans a ticker list out to a bounded worker pool and
// collects exactly one outcome per ticker.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"quotescraper/internal/utils"
	"quotescraper/models"
)

// DefaultWorkers matches the pool size remote quote pages tolerate well.
const DefaultWorkers = 2

// FetchFunc produces the outcome for one symbol. It should not panic, but
// the dispatcher survives it if it does.
type FetchFunc func(ctx context.Context, symbol string) models.Outcome

type Dispatcher struct {
	workers     int
	deadline    time.Duration
	logger      *utils.Logger
	perfTracker *utils.PerformanceTracker
}

// New returns a dispatcher running at most workers fetches at once. A
// positive deadline bounds the whole batch.
func New(workers int, deadline time.Duration, tracker *utils.PerformanceTracker, logger *utils.Logger) *Dispatcher {
	if tracker == nil {
		tracker = utils.NewPerformanceTracker()
	}
	return &Dispatcher{workers: workers, deadline: deadline, logger: logger, perfTracker: tracker}
}

// ClampWorkers bounds a requested pool size to [1, MaxWorkers] and to the
// number of tickers. Zero or negative means DefaultWorkers.
func ClampWorkers(requested, tickers int) int {
	n := requested
	if n <= 0 {
		n = DefaultWorkers
	}
	if n > utils.MaxWorkers {
		n = utils.MaxWorkers
	}
	if tickers > 0 && n > tickers {
		n = tickers
	}
	return n
}

type indexed struct {
	index   int
	outcome models.Outcome
}

// Run fetches every ticker and returns the batch in dispatch order. One
// ticker's failure never stops the others.
func (d *Dispatcher) Run(ctx context.Context, tickers []models.Ticker, fetch FetchFunc) *models.Batch {
	batch := &models.Batch{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Outcomes:  make([]models.Outcome, len(tickers)),
	}
	if len(tickers) == 0 {
		d.logger.Info("No tickers to process")
		return batch
	}

	if d.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.deadline)
		defer cancel()
	}

	workers := ClampWorkers(d.workers, len(tickers))
	d.logger.Info("Starting to process %d tickers with %d workers (run %s)", len(tickers), workers, batch.RunID)

	p := pool.NewWithResults[indexed]().WithMaxGoroutines(workers)
	for i, t := range tickers {
		p.Go(func() indexed {
			return indexed{index: i, outcome: d.runOne(ctx, t.Symbol, fetch)}
		})
	}
	for _, r := range p.Wait() {
		batch.Outcomes[r.index] = r.outcome
	}

	batch.Elapsed = time.Since(batch.StartedAt)
	d.perfTracker.Record("batch", batch.Elapsed)

	c := batch.Counts()
	d.logger.Info("Completed processing %d tickers in %v: %d ok, %d noise, %d failed",
		c.Attempted, batch.Elapsed.Round(time.Millisecond), c.Succeeded, c.Noise, c.Failed)
	return batch
}

// runOne pairs the outcome with the dispatched symbol no matter what fetch
// returned, so results can never be attributed to the wrong ticker.
func (d *Dispatcher) runOne(ctx context.Context, symbol string, fetch FetchFunc) (out models.Outcome) {
	symbol = models.CanonicalSymbol(symbol)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Recovered panic while processing %s: %v", symbol, r)
			out = models.NewFailureOutcome(symbol, models.ReasonExtraction, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return models.NewFailureOutcome(symbol, models.ReasonExtraction, fmt.Sprintf("abandoned: %v", err))
	}

	done := d.perfTracker.StartStep("fetch")
	out = fetch(ctx, symbol)
	done()

	return pair(symbol, out)
}

func pair(symbol string, out models.Outcome) models.Outcome {
	switch {
	case out.Quote != nil && out.Failure == nil:
		q := *out.Quote
		q.Symbol = symbol
		return models.NewQuoteOutcome(q)
	case out.Failure != nil:
		return models.NewFailureOutcome(symbol, out.Failure.Reason, out.Failure.Detail)
	default:
		return models.NewFailureOutcome(symbol, models.ReasonExtraction, "fetch returned no result")
	}
}
