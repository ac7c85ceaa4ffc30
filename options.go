package steparena

import (
	"log/slog"

	"github.com/hupe1980/steparena/arena"
	"github.com/hupe1980/steparena/budget"
	"github.com/hupe1980/steparena/checkpoint"
	"github.com/hupe1980/steparena/reader"
)

// DefaultMaxChunkSize bounds one input append issued by IngestInput.
const DefaultMaxChunkSize = 1 << 20

type options struct {
	instanceID       string
	scalars          checkpoint.Store
	scalarCapacity   int
	budget           budget.Config
	bounds           arena.BoundsMode
	journal          bool
	journalCodec     string
	maxChunkSize     int
	requireNewline   bool
	maxSteps         int
	strictDone       bool
	readerWindow     int
	blockCacheBytes  int64
	blockSize        int64
	memoryLimit      int64
	ioLimit          int64
	ioFanout         int
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Computation.
type Option func(*options)

// WithInstanceID names the computation instance. Segments and scalars of
// an instance are found again by this ID. The default is a random UUID.
func WithInstanceID(id string) Option {
	return func(o *options) {
		o.instanceID = id
	}
}

// WithCheckpointStore sets the scalar checkpoint store. The default is a
// document blob next to the segments.
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(o *options) {
		o.scalars = s
	}
}

// WithScalarCapacity sets the capacity of the default checkpoint store.
func WithScalarCapacity(n int) Option {
	return func(o *options) {
		o.scalarCapacity = n
	}
}

// WithBudget sets the budget every Step starts with.
func WithBudget(cfg budget.Config) Option {
	return func(o *options) {
		o.budget = cfg
	}
}

// WithStepBudget sets the per-step limit and keeps the other budget settings.
func WithStepBudget(limit int64) Option {
	return func(o *options) {
		o.budget.Limit = limit
	}
}

// WithCostModel sets the units charged per store call.
func WithCostModel(c budget.CostModel) Option {
	return func(o *options) {
		o.budget.Costs = c
	}
}

// WithBoundsMode selects checked or unchecked view indexing.
func WithBoundsMode(m arena.BoundsMode) Option {
	return func(o *options) {
		o.bounds = m
	}
}

// WithJournal enables or disables the undo journal. Without it a store
// failure part way through a commit can leave a step half applied.
func WithJournal(enabled bool) Option {
	return func(o *options) {
		o.journal = enabled
	}
}

// WithJournalCompression selects the pre-image codec: "none", "lz4" or "zstd".
func WithJournalCompression(name string) Option {
	return func(o *options) {
		o.journalCodec = name
	}
}

// WithMaxChunkSize bounds the appends issued by IngestInput.
func WithMaxChunkSize(n int) Option {
	return func(o *options) {
		o.maxChunkSize = n
	}
}

// WithRequireTrailingNewline makes IngestInput reject non-empty input that
// does not end with '\n'. Line-oriented programs rely on it.
func WithRequireTrailingNewline() Option {
	return func(o *options) {
		o.requireNewline = true
	}
}

// WithMaxSteps bounds Solve. Zero means unbounded.
func WithMaxSteps(n int) Option {
	return func(o *options) {
		o.maxSteps = n
	}
}

// WithStrictDone makes Step fail with ErrDone after completion instead of
// returning a no-op status.
func WithStrictDone() Option {
	return func(o *options) {
		o.strictDone = true
	}
}

// WithReaderWindow sets the input read-ahead window.
func WithReaderWindow(n int) Option {
	return func(o *options) {
		o.readerWindow = n
	}
}

// WithBlockCache serves input reads from a shared LRU block cache of the
// given size. blockSize <= 0 uses the blobstore default.
func WithBlockCache(bytes, blockSize int64) Option {
	return func(o *options) {
		o.blockCacheBytes = bytes
		o.blockSize = blockSize
	}
}

// WithMemoryLimit bounds area caches and block caches together.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit throttles store traffic to bytesPerSec.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithIOFanout caps concurrent store calls made by block cache fills and
// teardown. n <= 0 uses the default of 8.
func WithIOFanout(n int) Option {
	return func(o *options) {
		o.ioFanout = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring steps.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &steparena.BasicMetricsCollector{}
//	c, _ := steparena.New(prog, store, steparena.WithMetricsCollector(metrics))
//	// ... step ...
//	stats := metrics.GetStats()
//	fmt.Printf("Steps: %d, Yields: %d\n", stats.StepCount, stats.YieldCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger at level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		budget:           budget.DefaultConfig(),
		journal:          true,
		journalCodec:     "lz4",
		maxChunkSize:     DefaultMaxChunkSize,
		readerWindow:     reader.DefaultWindow,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
