package blacklist

import (
	"context"

	"quotescraper/internal/utils"
	"quotescraper/models"
)

// Filter turns noise outcomes into blacklist entries.
type Filter struct {
	store  Store
	logger *utils.Logger
}

func NewFilter(store Store, logger *utils.Logger) *Filter {
	return &Filter{store: store, logger: logger}
}

// Apply appends the outcome's symbol when it was classified as noise. Any
// other outcome leaves the store untouched.
func (f *Filter) Apply(ctx context.Context, outcome models.Outcome) error {
	if outcome.Failure == nil || outcome.Failure.Reason != models.ReasonNoise {
		return nil
	}

	added, err := f.store.Add(ctx, outcome.Symbol)
	if err != nil {
		f.logger.Error("Failed to blacklist %s: %v", outcome.Symbol, err)
		return err
	}
	if added {
		f.logger.Info("Blacklisted %s: %s", outcome.Symbol, outcome.Failure.Detail)
	} else {
		f.logger.Debug("%s was already blacklisted", outcome.Symbol)
	}
	return nil
}
