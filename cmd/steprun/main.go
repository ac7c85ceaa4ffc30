// Command steprun ingests an input file, drives a bundled program to
// completion one budgeted step at a time and prints the results.
//
// Usage:
//
//	steprun -program calories -input day1.txt [-config steparena.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/steparena"
	"github.com/hupe1980/steparena/programs"
	"github.com/hupe1980/steparena/promcollector"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type flags struct {
	config      string
	program     string
	input       string
	instance    string
	stepBudget  int64
	export      string
	keep        bool
	jsonLogs    bool
	metricsAddr string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("steprun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "YAML configuration file")
	fs.StringVar(&f.program, "program", "", "program to run: "+strings.Join(programs.Names(), ", "))
	fs.StringVar(&f.input, "input", "", "input file")
	fs.StringVar(&f.instance, "instance", "", "instance ID (default: random)")
	fs.Int64Var(&f.stepBudget, "step-budget", 0, "override the per-step budget")
	fs.StringVar(&f.export, "export", "", "write a state archive here after solving")
	fs.BoolVar(&f.keep, "keep", false, "keep the persisted state instead of tearing it down")
	fs.BoolVar(&f.jsonLogs, "json", false, "log in JSON")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.program == "" || f.input == "" {
		return f, errors.New("steprun: -program and -input are required")
	}
	return f, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg := steparena.DefaultConfig()
	if f.config != "" {
		if cfg, err = steparena.LoadConfig(f.config); err != nil {
			return err
		}
	}
	if f.stepBudget > 0 {
		cfg.StepBudget = f.stepBudget
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	prog, ok := programs.Lookup(f.program)
	if !ok {
		return fmt.Errorf("steprun: unknown program %q", f.program)
	}
	data, err := os.ReadFile(f.input)
	if err != nil {
		return err
	}

	id := f.instance
	if id == "" {
		id = uuid.NewString()
	}

	level, err := logLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(stderr, handlerOpts)
	if f.jsonLogs {
		handler = slog.NewJSONHandler(stderr, handlerOpts)
	}

	stats := &steparena.BasicMetricsCollector{}
	var mc steparena.MetricsCollector = stats
	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		pc, err := promcollector.New(reg)
		if err != nil {
			return err
		}
		mc = tee{stats, pc}
		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		ln, err := net.Listen("tcp", f.metricsAddr)
		if err != nil {
			return fmt.Errorf("steprun: metrics: %w", err)
		}
		logger := slog.New(handler)
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "addr", f.metricsAddr, "error", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	store, err := openBackend(ctx, cfg.Backend)
	if err != nil {
		return err
	}
	scalars, err := openCheckpoint(ctx, cfg, id)
	if err != nil {
		return err
	}

	opts = append(opts,
		steparena.WithInstanceID(id),
		steparena.WithLogger(steparena.NewLogger(handler)),
		steparena.WithMetricsCollector(mc),
	)
	if scalars != nil {
		opts = append(opts, steparena.WithCheckpointStore(scalars))
	}

	c, err := steparena.New(prog, store, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := c.IngestInput(ctx, data); err != nil {
		return err
	}
	sum, err := c.Solve(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if f.export != "" {
		if err := exportArchive(ctx, c, f.export, cfg.JournalCompression); err != nil {
			return err
		}
	}

	var reclaimed int64
	if !f.keep {
		if reclaimed, err = c.Teardown(ctx); err != nil {
			return err
		}
	}

	return report(stdout, reportData{
		instance:  id,
		program:   prog.Name(),
		input:     len(data),
		summary:   sum,
		stats:     stats.GetStats(),
		elapsed:   elapsed,
		reclaimed: reclaimed,
		kept:      f.keep,
	})
}

func logLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	err := l.UnmarshalText([]byte(s))
	return l, err
}

func exportArchive(ctx context.Context, c *steparena.Computation, path, compression string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Export(ctx, out, compression); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// tee forwards every event to two collectors.
type tee [2]steparena.MetricsCollector

func (t tee) RecordStep(cost int64, done bool, d time.Duration, err error) {
	t[0].RecordStep(cost, done, d, err)
	t[1].RecordStep(cost, done, d, err)
}

func (t tee) RecordYield(cost int64) {
	t[0].RecordYield(cost)
	t[1].RecordYield(cost)
}

func (t tee) RecordIngest(bytes int, err error) {
	t[0].RecordIngest(bytes, err)
	t[1].RecordIngest(bytes, err)
}

func (t tee) RecordTeardown(reclaimed int64, err error) {
	t[0].RecordTeardown(reclaimed, err)
	t[1].RecordTeardown(reclaimed, err)
}

func (t tee) RecordRecovery(err error) {
	t[0].RecordRecovery(err)
	t[1].RecordRecovery(err)
}
