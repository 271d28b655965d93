package systemmonitor

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Octogonapus/ServingBench/profile"
)

type HostMonitorInput struct {
	Interval time.Duration
	// Defaults to /proc.
	ProcDir string
}

type hostMonitor struct {
	input *HostMonitorInput
}

// NewHostMonitor samples CPU and memory usage of the local host into a CSV file for each run.
func NewHostMonitor(input *HostMonitorInput) profile.Profiler {
	if input.Interval <= 0 {
		input.Interval = time.Second
	}
	if input.ProcDir == "" {
		input.ProcDir = "/proc"
	}
	return &hostMonitor{input: input}
}

func (mon *hostMonitor) Name() string {
	return "host"
}

func LogFileName(tag string) string {
	return fmt.Sprintf("host_monitor_%s.csv", tag)
}

var header = []string{
	"time",
	"cpu_user_pct",
	"cpu_system_pct",
	"cpu_idle_pct",
	"cpu_iowait_pct",
	"mem_used_bytes",
	"mem_used_pct",
	"mem_available_pct",
}

func (mon *hostMonitor) Start(ctx context.Context, dir, tag string) (profile.Session, error) {
	if _, err := os.Stat(filepath.Join(mon.input.ProcDir, "stat")); err != nil {
		return nil, fmt.Errorf("%w: %w", profile.ErrProfilerUnavailable, err)
	}

	f, err := os.Create(filepath.Join(dir, LogFileName(tag)))
	if err != nil {
		return nil, fmt.Errorf("creating host monitor log: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing host monitor header: %w", err)
	}
	w.Flush()

	s := &session{
		mon:  mon,
		file: f,
		w:    w,
		stop: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

type session struct {
	mon  *hostMonitor
	file *os.File
	w    *csv.Writer
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
	err  error
}

func (s *session) Stop() error {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			s.err = fmt.Errorf("writing host monitor log: %w", err)
		}
		if err := s.file.Close(); err != nil && s.err == nil {
			s.err = fmt.Errorf("closing host monitor log: %w", err)
		}
	})
	return s.err
}

var maxJitter = 1 * time.Second

func (s *session) run(ctx context.Context) {
	defer s.wg.Done()

	interval := s.mon.input.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prevCPU *cpuTimeStat
	lastWakeTime := time.Now()
	for {
		now := time.Now()
		jitter := now.Sub(lastWakeTime) - interval
		if jitter > maxJitter {
			slog.Warn("HostMonitor: jitter exceeded maximum", slog.Int64("jitterMs", jitter.Milliseconds()), slog.Int64("maxJitterMs", maxJitter.Milliseconds()))
		}
		lastWakeTime = now

		currCPU := parseCPUTimeStat(s.readProc("stat"))
		mem := parseMemInfo(s.readProc("meminfo"))
		row := []string{strconv.FormatInt(now.Unix(), 10), "", "", "", ""}
		if usage := cpuUsageBetween(prevCPU, currCPU); usage != nil {
			row[1] = formatPct(usage.user)
			row[2] = formatPct(usage.system)
			row[3] = formatPct(usage.idle)
			row[4] = formatPct(usage.iowait)
		}
		prevCPU = currCPU
		if mem != nil {
			row = append(row, strconv.Itoa(mem.usedBytes), formatPct(mem.usedPct), formatPct(mem.availablePct))
		} else {
			row = append(row, "", "", "")
		}
		if err := s.w.Write(row); err != nil {
			slog.Warn("HostMonitor: writing sample failed", slog.String("error", err.Error()))
		}
		s.w.Flush()

		select {
		case <-s.stop:
			slog.Debug("HostMonitor: stopped")
			return
		case <-ctx.Done():
			slog.Debug("HostMonitor: context done")
			return
		case <-ticker.C:
		}
	}
}

func (s *session) readProc(name string) []byte {
	buf, err := os.ReadFile(filepath.Join(s.mon.input.ProcDir, name))
	if err != nil {
		slog.Warn("HostMonitor: failed to read", slog.String("file", name), slog.String("error", err.Error()))
		return nil
	}
	return buf
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
