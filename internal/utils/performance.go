package utils

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// StepAggregate holds aggregate timing information for a step
type StepAggregate struct {
	Count    int
	Total    time.Duration
	Average  time.Duration
	Min      time.Duration
	Max      time.Duration
	StepName string
}

// PerformanceTracker aggregates step durations reported by concurrent workers.
type PerformanceTracker struct {
	aggregates map[string]*StepAggregate
	mu         sync.Mutex
}

func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{
		aggregates: make(map[string]*StepAggregate),
	}
}

// StartStep begins timing name; calling the returned func records the step.
// Safe for concurrent use, each caller owns its own timer.
func (pt *PerformanceTracker) StartStep(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		pt.Record(name, d)
		return d
	}
}

// Record adds one observation of d for step name.
func (pt *PerformanceTracker) Record(name string, d time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	agg, exists := pt.aggregates[name]
	if !exists {
		agg = &StepAggregate{
			StepName: name,
			Min:      d,
			Max:      d,
		}
		pt.aggregates[name] = agg
	}

	agg.Count++
	agg.Total += d
	agg.Average = agg.Total / time.Duration(agg.Count)

	if d < agg.Min {
		agg.Min = d
	}
	if d > agg.Max {
		agg.Max = d
	}
}

// Aggregate returns a copy of the aggregate for name.
func (pt *PerformanceTracker) Aggregate(name string) (StepAggregate, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	agg, ok := pt.aggregates[name]
	if !ok {
		return StepAggregate{}, false
	}
	return *agg, true
}

// GenerateAggregateReport generates an aggregate performance report
func (pt *PerformanceTracker) GenerateAggregateReport() string {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("\n=== Aggregate Performance Report ===\n")

	// Sort steps by total time
	var steps []*StepAggregate
	for _, agg := range pt.aggregates {
		steps = append(steps, agg)
	}
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Total > steps[j].Total
	})

	for _, agg := range steps {
		sb.WriteString(fmt.Sprintf(
			"Step: %s\n"+
				"  Count:   %d\n"+
				"  Total:   %v\n"+
				"  Average: %v\n"+
				"  Min:     %v\n"+
				"  Max:     %v\n",
			agg.StepName,
			agg.Count,
			agg.Total.Round(time.Millisecond),
			agg.Average.Round(time.Millisecond),
			agg.Min.Round(time.Millisecond),
			agg.Max.Round(time.Millisecond),
		))
	}

	return sb.String()
}
