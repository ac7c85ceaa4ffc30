package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hupe1980/steparena"
	"github.com/hupe1980/steparena/checkpoint"
)

type reportData struct {
	instance  string
	program   string
	input     int
	summary   steparena.Summary
	stats     steparena.BasicMetricsStats
	elapsed   time.Duration
	reclaimed int64
	kept      bool
}

var titleStyle = lipgloss.NewStyle().Bold(true)

func formatValue(v checkpoint.Value) string {
	if v.Kind == checkpoint.KindBytes {
		return strconv.Quote(string(v.Bytes))
	}
	return strconv.FormatUint(v.Num, 10)
}

func report(w io.Writer, d reportData) error {
	names := make([]string, 0, len(d.summary.Results))
	for name := range d.summary.Results {
		names = append(names, name)
	}
	slices.Sort(names)

	results := table.New().Border(lipgloss.NormalBorder()).Headers("result", "value")
	for _, name := range names {
		results.Row(name, formatValue(d.summary.Results[name]))
	}

	teardown := "kept"
	if !d.kept {
		teardown = fmt.Sprintf("%d bytes reclaimed", d.reclaimed)
	}
	stats := table.New().Border(lipgloss.NormalBorder()).Headers("stat", "value").
		Row("instance", d.instance).
		Row("input bytes", strconv.Itoa(d.input)).
		Row("steps", strconv.Itoa(d.summary.Steps)).
		Row("yields", strconv.FormatInt(d.stats.YieldCount, 10)).
		Row("budget used", strconv.FormatInt(d.summary.Cost, 10)).
		Row("recoveries", strconv.FormatInt(d.stats.Recoveries, 10)).
		Row("elapsed", d.elapsed.Round(time.Millisecond).String()).
		Row("state", teardown)

	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", titleStyle.Render(d.program), results.Render(), stats.Render())
	return err
}
