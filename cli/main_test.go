package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Octogonapus/ServingBench/benchmark"
	"github.com/Octogonapus/ServingBench/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configYAML = `
- backend: vllm
  base_url: http://localhost:8000
  endpoint: /v1/completions
  model: m
  num_prompts: 10
  concurrency: 4
  request_rate: inf
  prompt_length: 128
  output_length: 64
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 3, exitCode(fmt.Errorf("run 1: %w", &target.ExitError{Command: "x", Code: 3})))
	assert.Equal(t, 1, exitCode(fmt.Errorf("%w: nope", benchmark.ErrInvalidConfig)))
	assert.Equal(t, exitInterrupted, exitCode(fmt.Errorf("running: %w", context.Canceled)))
}

func TestWrongArgumentCountPrintsUsage(t *testing.T) {
	out, err := execute(t, "only-one.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "servingbench <config.yaml> <gpu_type>")
	assert.Equal(t, 1, exitCode(err))
}

func TestDryRun(t *testing.T) {
	outDir := t.TempDir()
	_, err := execute(t, writeConfig(t, configYAML), "none", "--dry-run", "--quiet", "--output-dir", outDir)
	require.NoError(t, err)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvalidConfigFile(t *testing.T) {
	_, err := execute(t, writeConfig(t, "model: not-a-list\n"), "amd", "--dry-run")
	require.ErrorIs(t, err, benchmark.ErrInvalidConfig)
	assert.Equal(t, 1, exitCode(err))
}

func TestDriverFromEnvironment(t *testing.T) {
	t.Setenv("SERVINGBENCH_DRIVER", "bogus")
	_, err := execute(t, writeConfig(t, configYAML), "amd", "--dry-run")
	require.ErrorIs(t, err, benchmark.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "bogus")
}

func TestToolFailureExitCode(t *testing.T) {
	tool := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\nexit 4\n"), 0o755))

	_, err := execute(t, writeConfig(t, configYAML), "none", "--quiet", "--tool", tool, "--output-dir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 4, exitCode(err))
}

func TestHelpListsDriversAndProfilers(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, `"genai-perf", "vllm"`)
	assert.Contains(t, out, `"amd", "none", "nvidia"`)
}
