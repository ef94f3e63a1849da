// Package models defines the data structures used in the application.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction tags a quote as moving up, down or flat against the previous close.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

// FlatThreshold absorbs rounding noise around zero when deriving a Direction.
var FlatThreshold = decimal.New(1, -3)

// DirectionOf returns Up when variation > 0.001, Down when variation < -0.001
// and Flat otherwise.
func DirectionOf(variation decimal.Decimal) Direction {
	switch {
	case variation.GreaterThan(FlatThreshold):
		return Up
	case variation.LessThan(FlatThreshold.Neg()):
		return Down
	default:
		return Flat
	}
}

// Ticker is a tradable symbol and its display name. Identity is the symbol.
type Ticker struct {
	Symbol string
	Name   string
}

// CanonicalSymbol trims and upper-cases a symbol so that "petr4 " and
// "PETR4" compare equal.
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Quote is a successfully extracted price snapshot for one ticker.
type Quote struct {
	Symbol       string
	Price        decimal.Decimal
	Variation    decimal.Decimal
	VariationPct decimal.Decimal
	Direction    Direction
	FetchedAt    time.Time
}

// FailureReason classifies why a ticker produced no quote.
type FailureReason string

const (
	// ReasonNoise marks an inactive or delisted ticker; it gets blacklisted.
	ReasonNoise FailureReason = "noise"
	// ReasonExtraction covers timeouts, network errors and unparseable pages.
	ReasonExtraction FailureReason = "extraction_error"
)

// Failure is the outcome of a fetch that yielded no usable quote.
type Failure struct {
	Symbol string
	Reason FailureReason
	Detail string
}

// Outcome pairs a dispatched symbol with exactly one of Quote or Failure.
type Outcome struct {
	Symbol  string
	Quote   *Quote
	Failure *Failure
}

// OK reports whether the outcome carries a usable quote.
func (o Outcome) OK() bool {
	return o.Quote != nil && o.Failure == nil
}

// NewQuoteOutcome wraps a quote into an Outcome.
func NewQuoteOutcome(q Quote) Outcome {
	return Outcome{Symbol: q.Symbol, Quote: &q}
}

// NewFailureOutcome builds a failed Outcome for symbol.
func NewFailureOutcome(symbol string, reason FailureReason, detail string) Outcome {
	return Outcome{
		Symbol:  symbol,
		Failure: &Failure{Symbol: symbol, Reason: reason, Detail: detail},
	}
}

// Batch holds every outcome of one run, in dispatch order.
type Batch struct {
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration
	Outcomes  []Outcome
}

// Counts summarizes a batch.
type Counts struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Noise     int `json:"noise"`
	Failed    int `json:"failed"`
}

// Quotes returns the usable quotes of the batch.
func (b *Batch) Quotes() []Quote {
	quotes := make([]Quote, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		if o.OK() {
			quotes = append(quotes, *o.Quote)
		}
	}
	return quotes
}

// Failures returns the failed outcomes of the batch.
func (b *Batch) Failures() []Failure {
	var failures []Failure
	for _, o := range b.Outcomes {
		if o.Failure != nil {
			failures = append(failures, *o.Failure)
		}
	}
	return failures
}

// Counts tallies attempted, succeeded, noise-flagged and failed outcomes.
func (b *Batch) Counts() Counts {
	c := Counts{Attempted: len(b.Outcomes)}
	for _, o := range b.Outcomes {
		switch {
		case o.OK():
			c.Succeeded++
		case o.Failure != nil && o.Failure.Reason == ReasonNoise:
			c.Noise++
		default:
			c.Failed++
		}
	}
	return c
}
