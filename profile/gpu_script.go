package profile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// The scripts read LOGFILE to decide where to write their samples.
const LogFileEnv = "LOGFILE"

type scriptProfiler struct {
	kind   ProfilerKind
	script string
	input  *ProfilerInput
}

func init() {
	RegisterProfiler(AMD, func(input *ProfilerInput) Profiler {
		return NewScriptProfiler(AMD, "./profile_rocm.sh", input)
	})
	RegisterProfiler(NVIDIA, func(input *ProfilerInput) Profiler {
		return NewScriptProfiler(NVIDIA, "./profile_nvidia_smi.sh", input)
	})
}

// NewScriptProfiler runs an external sampling script that keeps going until it is terminated.
func NewScriptProfiler(kind ProfilerKind, script string, input *ProfilerInput) Profiler {
	return &scriptProfiler{kind: kind, script: script, input: input}
}

func (p *scriptProfiler) Name() string {
	return string(p.kind)
}

func LogFileName(tag string) string {
	return fmt.Sprintf("gpu_profile_%s.csv", tag)
}

func (p *scriptProfiler) scriptPath() (string, error) {
	path := p.script
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.input.ScriptDir, path)
	}
	return filepath.Abs(path)
}

func (p *scriptProfiler) Start(ctx context.Context, dir, tag string) (Session, error) {
	path, err := p.scriptPath()
	if err != nil {
		return nil, fmt.Errorf("resolving profiler script: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProfilerUnavailable, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrProfilerUnavailable, path)
	}

	logFile := LogFileName(tag)
	cmd := exec.Command(path)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), LogFileEnv+"="+logFile)
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", path, err)
	}
	slog.Info("profiler started", slog.String("script", path), slog.String("logFile", logFile), slog.Int("pid", cmd.Process.Pid))

	s := &processSession{cmd: cmd, grace: p.input.GracePeriod, done: make(chan struct{})}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.done)
	}()
	return s, nil
}

type processSession struct {
	cmd     *exec.Cmd
	grace   time.Duration
	done    chan struct{}
	waitErr error
	once    sync.Once
}

func (s *processSession) Stop() error {
	s.once.Do(func() {
		select {
		case <-s.done:
			slog.Debug("profiler already exited", slog.Int("pid", s.cmd.Process.Pid))
			return
		default:
		}

		if err := terminate(s.cmd); err != nil {
			slog.Debug("signalling profiler failed", slog.String("error", err.Error()))
		}
		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		select {
		case <-s.done:
		case <-timer.C:
			slog.Warn("profiler did not exit after SIGTERM, killing it", slog.Int("pid", s.cmd.Process.Pid), slog.Duration("grace", s.grace))
			if err := kill(s.cmd); err != nil {
				slog.Debug("killing profiler failed", slog.String("error", err.Error()))
			}
			<-s.done
		}
		if s.waitErr != nil {
			slog.Debug("profiler exited", slog.String("status", s.waitErr.Error()))
		}
	})
	// the profiler's own exit status is not interesting, it is always terminated
	return nil
}
