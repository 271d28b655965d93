package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Octogonapus/ServingBench/profile"
	"github.com/Octogonapus/ServingBench/report"
	"github.com/Octogonapus/ServingBench/target"
)

// Runs one configuration entry with its profilers. Wrap each driver via NewBenchmarkRunner.
type BenchmarkRunner interface {
	// Build the command for cfg without running it.
	Plan(cfg Config, run RunInfo) (*report.RunReport, error)

	// Run the benchmark tool for cfg with every profiler sampling. A non-zero exit from the tool
	// is returned as *target.ExitError along with the filled-in report.
	Run(ctx context.Context, cfg Config, run RunInfo) (*report.RunReport, error)
}

type RunnerInput struct {
	Driver    Driver
	Target    target.Target
	Profilers []profile.Profiler
	// Working directory of the tool and the profilers; all result files land here.
	OutputDir string
}

type benchmarkRunner struct {
	input *RunnerInput
}

func NewBenchmarkRunner(input *RunnerInput) BenchmarkRunner {
	return &benchmarkRunner{input: input}
}

func (br *benchmarkRunner) Plan(cfg Config, run RunInfo) (*report.RunReport, error) {
	cmd, err := br.input.Driver.Command(cfg, run)
	if err != nil {
		return nil, fmt.Errorf("building benchmark command failed: %w", err)
	}
	tag, err := br.input.Driver.RunTag(cfg, run)
	if err != nil {
		return nil, fmt.Errorf("building run tag failed: %w", err)
	}
	return &report.RunReport{
		Index:     run.Index,
		Input:     cfg,
		Command:   cmd,
		LogTag:    tag,
		StartedAt: run.Timestamp,
	}, nil
}

func (br *benchmarkRunner) Run(ctx context.Context, cfg Config, run RunInfo) (*report.RunReport, error) {
	rep, err := br.Plan(cfg, run)
	if err != nil {
		return nil, err
	}
	slog.Info("running command", slog.Int("run", run.Index), slog.String("command", strings.Join(rep.Command, " ")))

	start := time.Now()
	err = profile.Scope(ctx, br.input.Profilers, br.input.OutputDir, rep.LogTag, func(ctx context.Context) error {
		return br.input.Target.RunCommand(ctx, br.input.OutputDir, rep.Command)
	})
	rep.DurationSec = time.Since(start).Seconds()

	if err != nil {
		rep.Error = err.Error()
		rep.ExitCode = 1
		var exitErr *target.ExitError
		if errors.As(err, &exitErr) {
			rep.ExitCode = exitErr.Code
		}
		slog.Error("command failed", slog.Int("run", run.Index), slog.Int("exitCode", rep.ExitCode), slog.String("error", err.Error()))
		return rep, err
	}

	slog.Info("finished command", slog.Int("run", run.Index), slog.Float64("durationSec", rep.DurationSec))
	return rep, nil
}
