package dispatcher

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotescraper/internal/scraper"
	"quotescraper/internal/testutil"
	"quotescraper/internal/utils"
	"quotescraper/models"
)

func newDispatcher(workers int, deadline time.Duration) *Dispatcher {
	return New(workers, deadline, nil, utils.NewNopLogger())
}

func symbolsOf(batch *models.Batch) []string {
	out := make([]string, len(batch.Outcomes))
	for i, o := range batch.Outcomes {
		out[i] = o.Symbol
	}
	return out
}

func TestClampWorkers(t *testing.T) {
	tests := []struct {
		requested, tickers, want int
	}{
		{0, 10, DefaultWorkers},
		{-3, 10, DefaultWorkers},
		{4, 10, 4},
		{100, 50, utils.MaxWorkers},
		{8, 3, 3},
		{1, 0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampWorkers(tt.requested, tt.tickers), "ClampWorkers(%d, %d)", tt.requested, tt.tickers)
	}
}

func TestRun_OneOutcomePerTickerInOrder(t *testing.T) {
	var symbols []string
	src := testutil.NewStubSource(":BVMF")
	src.Delay = 5 * time.Millisecond
	for i := 0; i < 25; i++ {
		s := fmt.Sprintf("T%02d3", i)
		symbols = append(symbols, s)
		if i%5 == 0 {
			src.Noise(s)
		} else {
			src.Quote(s, "10,00", "+0,10", "1,00%")
		}
	}
	fetcher := scraper.NewFetcher(src, scraper.Options{}, nil, utils.NewNopLogger())

	batch := newDispatcher(4, 0).Run(context.Background(), testutil.Tickers(symbols...), fetcher.Fetch)

	require.Len(t, batch.Outcomes, 25)
	assert.Equal(t, symbols, symbolsOf(batch))
	assert.NotEmpty(t, batch.RunID)
	assert.True(t, batch.Elapsed > 0)
	assert.LessOrEqual(t, src.PeakConcurrency(), 4)
	assert.Equal(t, 25, src.TotalCalls())

	assert.Equal(t, models.Counts{Attempted: 25, Succeeded: 20, Noise: 5}, batch.Counts())
	for _, o := range batch.Outcomes {
		if o.OK() {
			assert.Equal(t, o.Symbol, o.Quote.Symbol)
		} else {
			assert.Equal(t, o.Symbol, o.Failure.Symbol)
		}
	}
}

func TestRun_PairsBySymbolNotPosition(t *testing.T) {
	// a fetch that reports the wrong symbol must not shift results
	fetch := func(ctx context.Context, symbol string) models.Outcome {
		if symbol == "AAA3" {
			time.Sleep(20 * time.Millisecond)
		}
		return models.NewQuoteOutcome(models.Quote{Symbol: "WRONG"})
	}

	batch := newDispatcher(2, 0).Run(context.Background(), testutil.Tickers("AAA3", "BBB4"), fetch)
	assert.Equal(t, []string{"AAA3", "BBB4"}, symbolsOf(batch))
	assert.Equal(t, "AAA3", batch.Outcomes[0].Quote.Symbol)
	assert.Equal(t, "BBB4", batch.Outcomes[1].Quote.Symbol)
}

func TestRun_FailureIsIsolated(t *testing.T) {
	src := testutil.NewStubSource(":BVMF").
		Quote("PETR4", "38,50", "+0,45", "1,18%").
		Quote("VALE3", "61,20", "-0,80", "-1,29%").
		Fail("OIBR3", scraper.ClassifyHTTPStatus(404))
	src.Panics["MGLU3"] = true
	fetcher := scraper.NewFetcher(src, scraper.Options{}, nil, utils.NewNopLogger())

	batch := newDispatcher(2, 0).Run(context.Background(), testutil.Tickers("PETR4", "OIBR3", "MGLU3", "VALE3"), fetcher.Fetch)

	require.Len(t, batch.Outcomes, 4)
	assert.True(t, batch.Outcomes[0].OK())
	assert.Equal(t, models.ReasonExtraction, batch.Outcomes[1].Failure.Reason)
	assert.Equal(t, models.ReasonExtraction, batch.Outcomes[2].Failure.Reason)
	assert.Contains(t, batch.Outcomes[2].Failure.Detail, "panic")
	assert.True(t, batch.Outcomes[3].OK())
	assert.Equal(t, models.Down, batch.Outcomes[3].Quote.Direction)
}

func TestRun_Empty(t *testing.T) {
	var called int32
	fetch := func(ctx context.Context, symbol string) models.Outcome {
		atomic.AddInt32(&called, 1)
		return models.Outcome{}
	}

	batch := newDispatcher(2, 0).Run(context.Background(), nil, fetch)
	require.NotNil(t, batch)
	assert.Empty(t, batch.Outcomes)
	assert.Zero(t, atomic.LoadInt32(&called))
	assert.Equal(t, models.Counts{}, batch.Counts())
}

func TestRun_EmptyOutcomeBecomesExtractionError(t *testing.T) {
	fetch := func(ctx context.Context, symbol string) models.Outcome {
		return models.Outcome{}
	}

	batch := newDispatcher(1, 0).Run(context.Background(), testutil.Tickers("AAA3"), fetch)
	require.NotNil(t, batch.Outcomes[0].Failure)
	assert.Equal(t, models.ReasonExtraction, batch.Outcomes[0].Failure.Reason)
}

func TestRun_Deadline(t *testing.T) {
	src := testutil.NewStubSource(".SA")
	src.Delay = time.Second
	for _, s := range []string{"AAA3", "BBB3", "CCC3", "DDD3", "EEE3", "FFF3"} {
		src.Quote(s, "1,00", "0,10", "10,00")
	}
	fetcher := scraper.NewFetcher(src, scraper.Options{}, nil, utils.NewNopLogger())

	start := time.Now()
	batch := newDispatcher(2, 50*time.Millisecond).Run(context.Background(),
		testutil.Tickers("AAA3", "BBB3", "CCC3", "DDD3", "EEE3", "FFF3"), fetcher.Fetch)

	assert.Less(t, time.Since(start), 900*time.Millisecond)
	require.Len(t, batch.Outcomes, 6)
	for _, o := range batch.Outcomes {
		require.NotNil(t, o.Failure, "%s should not have completed", o.Symbol)
		assert.Equal(t, models.ReasonExtraction, o.Failure.Reason)
	}
	assert.LessOrEqual(t, src.TotalCalls(), 2)
}
