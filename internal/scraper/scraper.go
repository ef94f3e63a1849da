package scraper

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"quotescraper/internal/utils"
	"quotescraper/models"
)

type Options struct {
	Retries     int
	Delay       time.Duration
	MinInterval time.Duration
}

// Fetcher turns one symbol into one Outcome using a Source. It is safe for
// concurrent use; each Fetch call owns its own retrieval resources.
type Fetcher struct {
	source      Source
	limiter     *rate.Limiter
	opts        Options
	logger      *utils.Logger
	perfTracker *utils.PerformanceTracker
	now         func() time.Time
}

func NewFetcher(source Source, opts Options, tracker *utils.PerformanceTracker, logger *utils.Logger) *Fetcher {
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	if tracker == nil {
		tracker = utils.NewPerformanceTracker()
	}
	return &Fetcher{
		source:      source,
		limiter:     rate.NewLimiter(limit, 1),
		opts:        opts,
		logger:      logger,
		perfTracker: tracker,
		now:         time.Now,
	}
}

func (f *Fetcher) Source() Source {
	return f.source
}

func (f *Fetcher) GetPerformanceTracker() *utils.PerformanceTracker {
	return f.perfTracker
}

// Fetch retrieves and classifies symbol. It never returns an error: every
// failure becomes a Failure outcome carrying the symbol it was asked for.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) models.Outcome {
	symbol = models.CanonicalSymbol(symbol)
	target := NormalizeSymbol(symbol, f.source.Suffix())

	fields, err := f.retrieve(ctx, target)
	if err != nil {
		f.logger.Error("Error processing %s: %v", symbol, err)
		return models.NewFailureOutcome(symbol, models.ReasonExtraction, err.Error())
	}

	done := f.perfTracker.StartStep("classify")
	outcome := Classify(symbol, fields, f.now())
	done()

	switch {
	case outcome.OK():
		f.logger.Debug("%s: price %s, variation %s (%s%%)", symbol, outcome.Quote.Price, outcome.Quote.Variation, outcome.Quote.VariationPct)
	case outcome.Failure.Reason == models.ReasonNoise:
		f.logger.Warn("%s looks inactive: %s", symbol, outcome.Failure.Detail)
	default:
		f.logger.Error("Error processing %s: %s", symbol, outcome.Failure.Detail)
	}
	return outcome
}

// retrieve calls the source, retrying retryable errors up to opts.Retries
// times with opts.Delay in between.
func (f *Fetcher) retrieve(ctx context.Context, target string) (Fields, error) {
	var lastErr error
	for attempt := 0; attempt <= f.opts.Retries; attempt++ {
		if attempt > 0 {
			f.logger.Debug("Retrying %s (attempt %d/%d) after: %v", target, attempt+1, f.opts.Retries+1, lastErr)
			select {
			case <-ctx.Done():
				return Fields{}, fmt.Errorf("abandoned after %d attempts: %w", attempt, lastErr)
			case <-time.After(f.opts.Delay):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return Fields{}, lastErr
			}
			return Fields{}, NewTimeoutError(err)
		}

		done := f.perfTracker.StartStep("retrieve")
		fields, err := f.source.Retrieve(ctx, target)
		done()
		if err == nil {
			return fields, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return Fields{}, lastErr
}

// Classify converts raw fields into a quote, a noise failure when both
// variation fields are zero or non-numeric, or an extraction error.
func Classify(symbol string, f Fields, at time.Time) models.Outcome {
	if IsNoise(f) {
		return models.NewFailureOutcome(symbol, models.ReasonNoise,
			fmt.Sprintf("degenerate variation %q / %q", f.Variation, f.VariationPct))
	}

	price, err := ParseNumber(f.Price)
	if err != nil {
		return models.NewFailureOutcome(symbol, models.ReasonExtraction, "price: "+err.Error())
	}
	variation, err := ParseNumber(f.Variation)
	if err != nil {
		return models.NewFailureOutcome(symbol, models.ReasonExtraction, "variation: "+err.Error())
	}
	pct, err := ParseNumber(f.VariationPct)
	if err != nil {
		return models.NewFailureOutcome(symbol, models.ReasonExtraction, "variation percent: "+err.Error())
	}

	return models.NewQuoteOutcome(models.Quote{
		Symbol:       symbol,
		Price:        price,
		Variation:    variation,
		VariationPct: pct,
		Direction:    models.DirectionOf(variation),
		FetchedAt:    at,
	})
}
