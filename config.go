package steparena

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/steparena/arena"
	"github.com/hupe1980/steparena/budget"
	"github.com/hupe1980/steparena/internal/compress"
	"gopkg.in/yaml.v3"
)

// Config is the declarative form of the computation options, loadable
// from YAML. The backend and checkpoint sections are read by harnesses
// that construct the stores; Options ignores them.
type Config struct {
	StepBudget         int64            `yaml:"step_budget"`
	Reserve            int64            `yaml:"reserve"`
	Costs              budget.CostModel `yaml:"costs"`
	Bounds             string           `yaml:"bounds"`
	Journal            bool             `yaml:"journal"`
	JournalCompression string           `yaml:"journal_compression"`
	ScalarCapacity     int              `yaml:"scalar_capacity"`
	BlockCacheBytes    int64            `yaml:"block_cache_bytes"`
	IOLimitBytesPerSec int64            `yaml:"io_limit_bytes_per_sec"`
	MemoryLimitBytes   int64            `yaml:"memory_limit_bytes"`
	IOFanout           int              `yaml:"io_fanout"`
	MaxChunkSize       int              `yaml:"max_chunk_size"`
	MaxSteps           int              `yaml:"max_steps"`
	LogLevel           string           `yaml:"log_level"`

	Backend    BackendConfig    `yaml:"backend"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// BackendConfig selects the segment store.
type BackendConfig struct {
	// Kind is one of memory, local, s3, minio.
	Kind         string `yaml:"kind"`
	Root         string `yaml:"root"`
	Mmap         bool   `yaml:"mmap"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	Secure       bool   `yaml:"secure"`
}

// CheckpointConfig selects the scalar checkpoint store.
type CheckpointConfig struct {
	// Kind is one of memory, blob, dynamodb.
	Kind  string `yaml:"kind"`
	Table string `yaml:"table"`
}

// DefaultConfig returns the configuration equivalent to no options.
func DefaultConfig() Config {
	bc := budget.DefaultConfig()
	return Config{
		StepBudget:         bc.Limit,
		Reserve:            bc.Reserve,
		Costs:              bc.Costs,
		Bounds:             arena.BoundsChecked.String(),
		Journal:            true,
		JournalCompression: "lz4",
		MaxChunkSize:       DefaultMaxChunkSize,
		LogLevel:           "info",
		Backend:            BackendConfig{Kind: "memory"},
		Checkpoint:         CheckpointConfig{Kind: "blob"},
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig decodes YAML from r over DefaultConfig. Unknown keys are
// rejected.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("steparena: config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.StepBudget <= 0 {
		errs = append(errs, fmt.Errorf("step_budget must be positive, got %d", c.StepBudget))
	}
	if c.Reserve < 0 || c.Reserve >= c.StepBudget {
		errs = append(errs, fmt.Errorf("reserve must be in [0, step_budget), got %d", c.Reserve))
	}
	if c.Costs.Read < 0 || c.Costs.Write < 0 || c.Costs.ScalarLoad < 0 || c.Costs.ScalarSave < 0 {
		errs = append(errs, errors.New("costs must not be negative"))
	}
	if _, err := parseBounds(c.Bounds); err != nil {
		errs = append(errs, err)
	}
	if _, err := compress.ParseType(c.JournalCompression); err != nil {
		errs = append(errs, err)
	}
	if c.MaxChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("max_chunk_size must be positive, got %d", c.MaxChunkSize))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Backend.Kind {
	case "memory":
	case "local":
		if c.Backend.Root == "" {
			errs = append(errs, errors.New("backend.root is required for local"))
		}
	case "s3", "minio":
		if c.Backend.Bucket == "" {
			errs = append(errs, fmt.Errorf("backend.bucket is required for %s", c.Backend.Kind))
		}
		if c.Backend.Kind == "minio" && c.Backend.Endpoint == "" {
			errs = append(errs, errors.New("backend.endpoint is required for minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend.kind %q", c.Backend.Kind))
	}
	switch c.Checkpoint.Kind {
	case "memory", "blob":
	case "dynamodb":
		if c.Checkpoint.Table == "" {
			errs = append(errs, errors.New("checkpoint.table is required for dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown checkpoint.kind %q", c.Checkpoint.Kind))
	}
	if len(errs) > 0 {
		return fmt.Errorf("steparena: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Options converts the computation settings to functional options.
func (c Config) Options() ([]Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	bounds, _ := parseBounds(c.Bounds)
	level, _ := parseLevel(c.LogLevel)
	opts := []Option{
		WithBudget(budget.Config{Limit: c.StepBudget, Reserve: c.Reserve, Costs: c.Costs}),
		WithBoundsMode(bounds),
		WithJournal(c.Journal),
		WithJournalCompression(c.JournalCompression),
		WithMaxChunkSize(c.MaxChunkSize),
		WithMaxSteps(c.MaxSteps),
		WithLogLevel(level),
	}
	if c.ScalarCapacity > 0 {
		opts = append(opts, WithScalarCapacity(c.ScalarCapacity))
	}
	if c.BlockCacheBytes > 0 {
		opts = append(opts, WithBlockCache(c.BlockCacheBytes, 0))
	}
	if c.MemoryLimitBytes > 0 {
		opts = append(opts, WithMemoryLimit(c.MemoryLimitBytes))
	}
	if c.IOLimitBytesPerSec > 0 {
		opts = append(opts, WithIOLimit(c.IOLimitBytesPerSec))
	}
	if c.IOFanout > 0 {
		opts = append(opts, WithIOFanout(c.IOFanout))
	}
	return opts, nil
}

func parseBounds(s string) (arena.BoundsMode, error) {
	switch s {
	case "", "checked":
		return arena.BoundsChecked, nil
	case "unchecked":
		return arena.BoundsUnchecked, nil
	default:
		return arena.BoundsChecked, fmt.Errorf("unknown bounds mode %q", s)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
	return l, nil
}
