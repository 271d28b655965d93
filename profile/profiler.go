package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Octogonapus/ServingBench/util"
)

// ErrProfilerUnavailable means the profiler can't run on this machine. Runs continue without it.
var ErrProfilerUnavailable = errors.New("profiler unavailable")

const DefaultGracePeriod = 5 * time.Second

// A Session is a running profiler. Stop must be safe to call more than once.
type Session interface {
	Stop() error
}

// A Profiler samples the machine for the lifetime of one benchmark run.
type Profiler interface {
	Name() string

	// Start sampling in the background. Output files named after tag are written to dir.
	Start(ctx context.Context, dir, tag string) (Session, error)
}

type ProfilerKind string

const (
	None   ProfilerKind = "none"
	AMD    ProfilerKind = "amd"
	NVIDIA ProfilerKind = "nvidia"
)

type ProfilerInput struct {
	// Directory that relative profiler script paths are resolved against.
	ScriptDir string
	// How long a profiler gets to exit after SIGTERM before it is killed.
	GracePeriod time.Duration
}

type ProfilerFactory func(*ProfilerInput) Profiler

var allProfilers map[ProfilerKind]ProfilerFactory

func RegisterProfiler(kind ProfilerKind, factory ProfilerFactory) {
	if allProfilers == nil {
		allProfilers = map[ProfilerKind]ProfilerFactory{
			None: func(*ProfilerInput) Profiler { panic("Profiler kind none is reserved and can't be created") },
		}
	}
	allProfilers[kind] = factory
}

func NewProfiler(kind ProfilerKind, input *ProfilerInput) (Profiler, error) {
	if kind == None {
		return nil, fmt.Errorf("Profiler kind none is reserved and can't be created")
	}

	factory, ok := allProfilers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown profiler kind: %s", kind)
	}
	if input.GracePeriod <= 0 {
		input.GracePeriod = DefaultGracePeriod
	}
	return factory(input), nil
}

// ForGPU returns the profiler for a GPU vendor tag, or nil when the tag has none.
func ForGPU(gpuType string, input *ProfilerInput) Profiler {
	kind := ProfilerKind(strings.ToLower(gpuType))
	if _, ok := allProfilers[kind]; !ok || kind == None {
		slog.Debug("no profiler for gpu type", slog.String("gpuType", gpuType))
		return nil
	}
	p, err := NewProfiler(kind, input)
	if err != nil {
		slog.Warn("creating profiler failed", slog.String("gpuType", gpuType), slog.String("error", err.Error()))
		return nil
	}
	return p
}

func ExplainProfilers() string {
	var sb strings.Builder
	for i, kind := range util.SortedKeys(allProfilers) {
		sb.WriteString("\"")
		sb.WriteString(string(kind))
		sb.WriteString("\"")
		if i < len(allProfilers)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}

// Scope runs fn with every available profiler sampling in the background. All started profilers
// are stopped before Scope returns, whether fn returns, fails or panics. Profiler failures are
// logged and never returned.
func Scope(ctx context.Context, profilers []Profiler, dir, tag string, fn func(context.Context) error) error {
	sessions := []Session{}
	defer func() {
		for i := len(sessions) - 1; i >= 0; i-- {
			if err := sessions[i].Stop(); err != nil {
				slog.Warn("stopping profiler failed", slog.String("error", err.Error()))
			}
		}
	}()

	for _, p := range profilers {
		if p == nil {
			continue
		}
		s, err := p.Start(ctx, dir, tag)
		if errors.Is(err, ErrProfilerUnavailable) {
			slog.Warn("profiler not available, running without it", slog.String("profiler", p.Name()), slog.String("error", err.Error()))
			continue
		} else if err != nil {
			slog.Warn("starting profiler failed, running without it", slog.String("profiler", p.Name()), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("profiler started", slog.String("profiler", p.Name()), slog.String("tag", tag))
		sessions = append(sessions, s)
	}

	return fn(ctx)
}
