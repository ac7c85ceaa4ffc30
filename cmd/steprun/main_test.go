package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestRun_Memory(t *testing.T) {
	input := writeFile(t, "input.txt", "1000\n2000\n\n4000\n")
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"-program", "calories", "-input", input, "-instance", "cli"}, &stdout, &stderr)
	require.NoError(t, err)
	out := stdout.String()
	assert.Contains(t, out, "calories")
	assert.Contains(t, out, "4000")
	assert.Contains(t, out, "7000")
	assert.Contains(t, out, "bytes reclaimed")
}

func TestRun_LocalBackendWithExport(t *testing.T) {
	root := t.TempDir()
	cfg := writeFile(t, "steparena.yaml", "step_budget: 1000\nreserve: 400\nbackend:\n  kind: local\n  root: "+root+"\n")
	input := writeFile(t, "input.txt", "2-4,6-8\n2-8,3-7\n")
	archive := filepath.Join(t.TempDir(), "state.spar")
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{
		"-config", cfg, "-program", "overlap", "-input", input,
		"-instance", "local", "-keep", "-export", archive,
	}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "contained")
	assert.Contains(t, stdout.String(), "kept")

	_, err = os.Stat(archive)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(root, "local"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRun_MetricsAddr(t *testing.T) {
	input := writeFile(t, "input.txt", "5\n\n7\n")
	ctx := context.Background()

	var stdout, stderr bytes.Buffer
	err := run(ctx, []string{"-program", "calories", "-input", input, "-metrics-addr", "127.0.0.1:0"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "calories")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	err = run(ctx, []string{"-program", "calories", "-input", input, "-metrics-addr", ln.Addr().String()}, &stdout, &stderr)
	require.ErrorContains(t, err, "metrics")
}

func TestRun_Errors(t *testing.T) {
	input := writeFile(t, "input.txt", "1\n")
	var stdout, stderr bytes.Buffer
	ctx := context.Background()

	require.Error(t, run(ctx, nil, &stdout, &stderr))
	require.Error(t, run(ctx, []string{"-program", "nope", "-input", input}, &stdout, &stderr))
	require.Error(t, run(ctx, []string{"-program", "calories", "-input", filepath.Join(t.TempDir(), "missing")}, &stdout, &stderr))

	bad := writeFile(t, "bad.yaml", "backend:\n  kind: tape\n")
	require.Error(t, run(ctx, []string{"-config", bad, "-program", "calories", "-input", input}, &stdout, &stderr))
}
