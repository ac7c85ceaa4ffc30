package steparena

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// promcollector package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordStep is called after each step. cost is the budget consumed,
	// done reports completion, err is nil if the step committed.
	RecordStep(cost int64, done bool, duration time.Duration, err error)

	// RecordYield is called when a step checkpoints on low budget.
	RecordYield(cost int64)

	// RecordIngest is called after each input append.
	RecordIngest(bytes int, err error)

	// RecordTeardown is called after teardown with the bytes reclaimed.
	RecordTeardown(reclaimed int64, err error)

	// RecordRecovery is called when an interrupted commit is rolled back.
	RecordRecovery(err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordStep(int64, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordYield(int64)                            {}
func (NoopMetricsCollector) RecordIngest(int, error)                      {}
func (NoopMetricsCollector) RecordTeardown(int64, error)                  {}
func (NoopMetricsCollector) RecordRecovery(error)                         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	StepCount      atomic.Int64
	StepErrors     atomic.Int64
	StepTotalNanos atomic.Int64
	StepTotalCost  atomic.Int64
	Completions    atomic.Int64
	YieldCount     atomic.Int64
	IngestCount    atomic.Int64
	IngestBytes    atomic.Int64
	IngestErrors   atomic.Int64
	TeardownCount  atomic.Int64
	ReclaimedBytes atomic.Int64
	TeardownErrors atomic.Int64
	Recoveries     atomic.Int64
	RecoveryErrors atomic.Int64
}

// RecordStep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStep(cost int64, done bool, duration time.Duration, err error) {
	b.StepCount.Add(1)
	b.StepTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.StepErrors.Add(1)
		return
	}
	b.StepTotalCost.Add(cost)
	if done {
		b.Completions.Add(1)
	}
}

// RecordYield implements MetricsCollector.
func (b *BasicMetricsCollector) RecordYield(int64) {
	b.YieldCount.Add(1)
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(bytes int, err error) {
	b.IngestCount.Add(1)
	if err != nil {
		b.IngestErrors.Add(1)
		return
	}
	b.IngestBytes.Add(int64(bytes))
}

// RecordTeardown implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTeardown(reclaimed int64, err error) {
	b.TeardownCount.Add(1)
	b.ReclaimedBytes.Add(reclaimed)
	if err != nil {
		b.TeardownErrors.Add(1)
	}
}

// RecordRecovery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRecovery(err error) {
	b.Recoveries.Add(1)
	if err != nil {
		b.RecoveryErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		StepCount:      b.StepCount.Load(),
		StepErrors:     b.StepErrors.Load(),
		StepAvgNanos:   b.getAvgStepNanos(),
		StepTotalCost:  b.StepTotalCost.Load(),
		Completions:    b.Completions.Load(),
		YieldCount:     b.YieldCount.Load(),
		IngestCount:    b.IngestCount.Load(),
		IngestBytes:    b.IngestBytes.Load(),
		IngestErrors:   b.IngestErrors.Load(),
		TeardownCount:  b.TeardownCount.Load(),
		ReclaimedBytes: b.ReclaimedBytes.Load(),
		TeardownErrors: b.TeardownErrors.Load(),
		Recoveries:     b.Recoveries.Load(),
		RecoveryErrors: b.RecoveryErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgStepNanos() int64 {
	count := b.StepCount.Load()
	if count == 0 {
		return 0
	}
	return b.StepTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	StepCount      int64
	StepErrors     int64
	StepAvgNanos   int64
	StepTotalCost  int64
	Completions    int64
	YieldCount     int64
	IngestCount    int64
	IngestBytes    int64
	IngestErrors   int64
	TeardownCount  int64
	ReclaimedBytes int64
	TeardownErrors int64
	Recoveries     int64
	RecoveryErrors int64
}
