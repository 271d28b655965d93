package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// RunReport describes one configuration of a session.
type RunReport struct {
	Index       int
	Input       map[string]any
	Command     []string
	LogTag      string
	StartedAt   time.Time
	DurationSec float64
	ExitCode    int
	Error       string `json:",omitempty"` // non-empty iff the run failed
}

// SessionReport is written next to the summary and archived with the results.
type SessionReport struct {
	RunID       string
	Driver      string
	GPUType     string
	ToolVersion string `json:",omitempty"`
	StartedAt   time.Time
	FinishedAt  time.Time
	Runs        []*RunReport
	Summary     *SummaryCounts `json:",omitempty"`
}

type SummaryCounts struct {
	Path      string `json:",omitempty"`
	Processed int
	Skipped   int
}

func (r *SessionReport) WriteFile(path string) error {
	buf, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session report: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("writing session report: %w", err)
	}
	return nil
}
