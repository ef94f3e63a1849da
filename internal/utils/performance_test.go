package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceTracker_Record(t *testing.T) {
	pt := NewPerformanceTracker()
	pt.Record("retrieve", 30*time.Millisecond)
	pt.Record("retrieve", 10*time.Millisecond)
	pt.Record("retrieve", 20*time.Millisecond)

	agg, ok := pt.Aggregate("retrieve")
	require.True(t, ok)
	assert.Equal(t, 3, agg.Count)
	assert.Equal(t, 60*time.Millisecond, agg.Total)
	assert.Equal(t, 20*time.Millisecond, agg.Average)
	assert.Equal(t, 10*time.Millisecond, agg.Min)
	assert.Equal(t, 30*time.Millisecond, agg.Max)

	_, ok = pt.Aggregate("missing")
	assert.False(t, ok)
}

func TestPerformanceTracker_ConcurrentSteps(t *testing.T) {
	pt := NewPerformanceTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done := pt.StartStep("fetch")
			done()
		}()
	}
	wg.Wait()

	agg, ok := pt.Aggregate("fetch")
	require.True(t, ok)
	assert.Equal(t, 50, agg.Count)
	assert.Contains(t, pt.GenerateAggregateReport(), "Step: fetch")
}
