// Package main provides the entry point for the quote scraper.
// It fetches price and variation for either a few tickers given on the
// command line or the whole ticker universe, and saves one artifact per run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quotescraper/internal/pipeline"
	"quotescraper/internal/utils"
	"quotescraper/internal/writer"
)

// splitTickers turns "PETR4, vale3" into its symbols.
func splitTickers(list string) []string {
	var symbols []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

// applyFlags overrides configuration values given on the command line.
func applyFlags(config *utils.Config, file, format string, workers int) error {
	if file != "" {
		config.Tickers.File = file
		config.Tickers.Database = ""
	}
	if format != "" {
		if _, err := writer.ParseFormat(format); err != nil {
			return err
		}
		config.Output.Format = strings.ToLower(format)
	}
	if workers > 0 {
		config.Scraper.Workers = workers
	}
	return nil
}

// runBatch executes one run and retries the write once when only the
// artifact could not be saved.
func runBatch(ctx context.Context, p *pipeline.Pipeline, logger *utils.Logger, tickers []string, workers int) (*pipeline.Report, error) {
	var (
		report *pipeline.Report
		err    error
	)
	if len(tickers) > 0 {
		logger.Info("Processing %d tickers from the command line", len(tickers))
		report, err = p.RunTickers(ctx, tickers, workers)
	} else {
		logger.Info("Processing ticker universe")
		report, err = p.Run(ctx)
	}

	if errors.Is(err, writer.ErrPersist) && report != nil {
		logger.Warn("Retrying artifact write for run %s", report.RunID)
		path, retryErr := p.Persist(report.Batch)
		if retryErr != nil {
			return report, retryErr
		}
		report.Artifact = path
		err = nil
	}
	return report, err
}

func main() {
	startTime := time.Now()

	// Define and parse command-line flags
	configPath := flag.String("config", utils.EnvOrString("CONFIG_PATH", "configs/config.yaml"), "Path to the YAML configuration")
	tickerList := flag.String("ticker", "", "Comma-separated tickers to process instead of the ticker file")
	tickerFile := flag.String("file", "", "Path to CSV file containing tickers")
	workers := flag.Int("workers", 0, fmt.Sprintf("Concurrent fetches (1-%d, default from config)", utils.MaxWorkers))
	format := flag.String("format", "", "Output format: csv or json")
	preflightOnly := flag.Bool("preflight-only", false, "Run the preflight checks and exit")
	flag.Parse()

	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := applyFlags(config, *tickerFile, *format, *workers); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	// Initialize logger for the application
	logger, err := utils.NewLogger(config.Log.Dir, config.Log.Debug)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Info("Starting quote scraper (%s source)", config.Scraper.Source)

	p, err := pipeline.New(config, logger)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure cleanup happens in the correct order
	defer func() {
		fmt.Println("Starting cleanup...")
		if err := p.Close(); err != nil {
			logger.Warn("Cleanup failed: %v", err)
		}
		fmt.Println("Cleanup completed")
	}()

	// Run preflight checks
	if err := p.PreflightCheck(ctx); err != nil {
		logger.Fatal("Preflight check failed: %v", err)
	}
	if *preflightOnly {
		logger.Info("Preflight checks passed")
		return
	}

	report, err := runBatch(ctx, p, logger, splitTickers(*tickerList), *workers)
	if err != nil {
		logger.Error("Run failed: %v", err)
		stop()
		p.Close()
		logger.Close()
		os.Exit(1)
	}
	fmt.Println(report)

	// Log overall execution time
	duration := time.Since(startTime)
	logger.Info("Total execution time: %v", duration.Round(time.Second))

	logger.Info("Scraping completed successfully!")
}
