package benchmarkorchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Octogonapus/ServingBench/archive"
	"github.com/Octogonapus/ServingBench/benchmark"
	objectprovider "github.com/Octogonapus/ServingBench/object_provider"
	"github.com/Octogonapus/ServingBench/profile"
	"github.com/Octogonapus/ServingBench/report"
	"github.com/Octogonapus/ServingBench/target"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// ErrPublish is returned when the archive was written locally but could not be published.
var ErrPublish = errors.New("publishing results failed")

type OrchestratorInput struct {
	Driver    benchmark.Driver
	Target    target.Target
	Profilers []profile.Profiler
	// Directory the tool runs in and where results are collected. Defaults to ".".
	OutputDir string
	// Defaults to <OutputDir>/results.
	ResultDir string
	// Overrides the driver's cooldown between configurations when set.
	Cooldown    *time.Duration
	GPUType     string
	ToolVersion string
	Publishers  []objectprovider.Publisher
	// Progress bar destination. No progress bar when nil.
	Progress io.Writer
	// Print the commands without running anything.
	DryRun bool
}

type Report struct {
	Session     *report.SessionReport
	SummaryPath string
	ArchivePath string
	Locations   []string
}

// Runs benchmark configurations one after another on the local machine.
type BenchmarkOrchestrator interface {
	// Add a configuration entry to be run later, in order.
	AddBenchmark(benchmark.Config) error

	// Validate every configuration and prepare the output locations. Nothing runs if this fails.
	SetUp(ctx context.Context) error

	// Run every configuration, then summarize, archive and publish the results.
	// Stops at the first failing configuration.
	RunBenchmarks(ctx context.Context) (*Report, error)
}

type orchestrator struct {
	input   *OrchestratorInput
	configs []benchmark.Config
	runner  benchmark.BenchmarkRunner
}

func NewBenchmarkOrchestrator(input *OrchestratorInput) BenchmarkOrchestrator {
	if input.OutputDir == "" {
		input.OutputDir = "."
	}
	if input.ResultDir == "" {
		input.ResultDir = filepath.Join(input.OutputDir, "results")
	}
	return &orchestrator{
		input: input,
		runner: benchmark.NewBenchmarkRunner(&benchmark.RunnerInput{
			Driver:    input.Driver,
			Target:    input.Target,
			Profilers: input.Profilers,
			OutputDir: input.OutputDir,
		}),
	}
}

func (o *orchestrator) AddBenchmark(cfg benchmark.Config) error {
	o.configs = append(o.configs, cfg)
	return nil
}

func (o *orchestrator) SetUp(ctx context.Context) error {
	if err := benchmark.ValidateAll(o.input.Driver, o.configs); err != nil {
		return err
	}

	if o.input.ToolVersion != "" {
		v, ok, err := benchmark.CheckToolVersion(o.input.Driver, o.input.ToolVersion)
		if err != nil {
			return fmt.Errorf("%w: %w", benchmark.ErrInvalidConfig, err)
		}
		if !ok {
			slog.Warn("the benchmark command line isn't intended for this tool version",
				slog.String("driver", o.input.Driver.Name()),
				slog.String("toolVersion", v.String()),
				slog.String("minimum", o.input.Driver.MinToolVersion().String()),
			)
		}
	}

	if err := os.MkdirAll(o.input.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if o.input.DryRun {
		return nil
	}
	for _, p := range o.input.Publishers {
		if err := p.SetUp(ctx); err != nil {
			return fmt.Errorf("setting up publisher %s failed: %w", p.Describe(), err)
		}
	}
	return nil
}

func (o *orchestrator) cooldown() time.Duration {
	if o.input.Cooldown != nil {
		return *o.input.Cooldown
	}
	return o.input.Driver.Cooldown()
}

func (o *orchestrator) newProgressBar() *progressbar.ProgressBar {
	w := o.input.Progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions(len(o.configs),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Running benchmarks:"),
		progressbar.OptionShowCount(),
	)
}

func (o *orchestrator) RunBenchmarks(ctx context.Context) (*Report, error) {
	session := &report.SessionReport{
		RunID:       uuid.NewString(),
		Driver:      o.input.Driver.Name(),
		GPUType:     o.input.GPUType,
		ToolVersion: o.input.ToolVersion,
		StartedAt:   time.Now(),
	}
	rep := &Report{Session: session}

	bar := o.newProgressBar()
	total := len(o.configs)
	for i, cfg := range o.configs {
		run := benchmark.RunInfo{Index: i + 1, Timestamp: time.Now()}
		slog.Info("running config",
			slog.String("config", fmt.Sprintf("%d/%d", run.Index, total)),
			slog.String("model", cfg.Get("model")),
			slog.String("concurrency", cfg.Get("concurrency")),
			slog.String("numPrompts", cfg.Get("num_prompts")),
		)

		if o.input.DryRun {
			runRep, err := o.runner.Plan(cfg, run)
			if err != nil {
				return rep, err
			}
			slog.Info("dry run, not running command", slog.String("command", strings.Join(runRep.Command, " ")))
			session.Runs = append(session.Runs, runRep)
			continue
		}

		runRep, err := o.runner.Run(ctx, cfg, run)
		if runRep != nil {
			session.Runs = append(session.Runs, runRep)
		}
		if err != nil {
			return rep, err
		}
		_ = bar.Add(1)

		if cd := o.cooldown(); cd > 0 && run.Index < total {
			slog.Info("cooling down", slog.Duration("duration", cd))
			if err := sleep(ctx, cd); err != nil {
				return rep, err
			}
		}
	}
	_ = bar.Finish()

	if o.input.DryRun {
		return rep, nil
	}

	if err := o.summarize(rep); err != nil {
		return rep, err
	}

	session.FinishedAt = time.Now()
	if err := session.WriteFile(o.manifestPath()); err != nil {
		return rep, err
	}

	if err := o.archive(rep); err != nil {
		return rep, err
	}

	if err := o.publish(ctx, rep); err != nil {
		return rep, err
	}

	slog.Info("benchmark suite completed", slog.String("runID", session.RunID), slog.Int("configs", total))
	return rep, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *orchestrator) manifestPath() string {
	stem := strings.TrimSuffix(o.input.Driver.ArchiveName(), filepath.Ext(o.input.Driver.ArchiveName()))
	return filepath.Join(o.input.OutputDir, stem+"_manifest.json")
}

func (o *orchestrator) summarize(rep *Report) error {
	out := filepath.Join(o.input.OutputDir, o.input.Driver.SummaryName())
	res, err := report.WriteSummary(o.input.OutputDir, out, o.input.Driver.Schema())
	if res != nil {
		rep.Session.Summary = &report.SummaryCounts{Path: res.Path, Processed: res.Processed, Skipped: res.Skipped}
	}
	if errors.Is(err, report.ErrNoRecords) {
		slog.Warn("no valid JSON files processed, not writing a summary", slog.Int("skipped", res.Skipped))
		return nil
	} else if err != nil {
		return fmt.Errorf("writing summary failed: %w", err)
	}

	rep.SummaryPath = res.Path
	slog.Info("summary saved", slog.String("path", res.Path), slog.Int("processed", res.Processed), slog.Int("skipped", res.Skipped))
	return nil
}

func (o *orchestrator) archive(rep *Report) error {
	moved, err := archive.MoveResults(o.input.OutputDir, o.input.ResultDir, archive.MoveOptions{SkipHidden: o.input.Driver.SkipHidden()})
	if err != nil {
		return fmt.Errorf("moving results failed: %w", err)
	}
	slog.Debug("moved results", slog.Int("files", len(moved)), slog.String("dir", o.input.ResultDir))

	zipPath, err := archive.ZipDir(o.input.ResultDir, filepath.Join(o.input.OutputDir, o.input.Driver.ArchiveName()))
	if err != nil {
		return fmt.Errorf("archiving results failed: %w", err)
	}
	rep.ArchivePath = zipPath
	if rep.SummaryPath != "" {
		rep.SummaryPath = filepath.Join(o.input.ResultDir, filepath.Base(rep.SummaryPath))
	}
	return nil
}

func (o *orchestrator) publish(ctx context.Context, rep *Report) error {
	errs := []error{}
	for _, p := range o.input.Publishers {
		loc, err := p.Publish(ctx, rep.ArchivePath, rep.Session.RunID)
		if err != nil {
			slog.Error("publishing results failed", slog.String("destination", p.Describe()), slog.String("error", err.Error()))
			errs = append(errs, err)
			continue
		}
		rep.Locations = append(rep.Locations, loc)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPublish, errors.Join(errs...))
	}
	return nil
}
