package pipeline

import (
	"context"
	"fmt"
	"time"

	"quotescraper/internal/scraper"
	"quotescraper/internal/utils"
)

const checkTimeout = 30 * time.Second

// PreflightCheck verifies all dependencies and configurations
func (p *Pipeline) PreflightCheck(ctx context.Context) error {
	checks := []struct {
		name  string
		check func(context.Context) error
	}{
		{"Config Validation", p.validateConfig},
		{"Directory Structure", p.checkDirectories},
		{"Ticker Source", p.checkTickerSource},
		{"Blacklist Store", p.checkBlacklist},
		{"Quote Source", p.checkSource},
	}

	for _, c := range checks {
		p.logger.Debug("Running preflight check: %s", c.name)
		if err := c.check(ctx); err != nil {
			return fmt.Errorf("%s check failed: %w", c.name, err)
		}
		p.logger.Debug("%s check passed", c.name)
	}

	return nil
}

func (p *Pipeline) validateConfig(context.Context) error {
	if p.config == nil {
		return fmt.Errorf("configuration is nil")
	}
	return p.config.Validate()
}

func (p *Pipeline) checkDirectories(context.Context) error {
	for _, dir := range []string{p.config.Output.Dir, p.config.Log.Dir} {
		if err := utils.EnsureWritableDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) checkTickerSource(ctx context.Context) error {
	tickers, err := p.tickers.Tickers(ctx)
	if err != nil {
		return err
	}
	p.logger.Debug("Ticker source %s has %d tickers", p.tickers, len(tickers))
	return nil
}

// checkBlacklist only reports; an unreadable blacklist is not fatal for a run.
func (p *Pipeline) checkBlacklist(ctx context.Context) error {
	symbols, err := p.store.Symbols(ctx)
	if err != nil {
		p.logger.Warn("Blacklist unavailable, runs will continue without it: %v", err)
		return nil
	}
	p.logger.Debug("Blacklist has %d symbols", len(symbols))
	return nil
}

func (p *Pipeline) checkSource(ctx context.Context) error {
	checker, ok := p.source.(scraper.Checker)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return checker.Check(ctx)
}
