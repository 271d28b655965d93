package benchmark

import (
	"fmt"
	"strings"
	"time"

	"github.com/Octogonapus/ServingBench/report"
	"github.com/Octogonapus/ServingBench/util"
	"github.com/hashicorp/go-version"
)

// Config is one entry of the benchmark configuration file.
type Config map[string]any

// Get renders a configuration value for status output.
func (c Config) Get(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return "<unset>"
	}
	return fmt.Sprint(v)
}

// RunInfo identifies one run within a session.
type RunInfo struct {
	Index     int // 1-based position in the configuration file
	Timestamp time.Time
}

// A Driver knows how to invoke one external benchmark tool and how to read what it writes.
type Driver interface {
	Name() string

	// Check that the configuration entry has every field the tool needs.
	Validate(Config) error

	// Return the full command line for one configuration entry. Deterministic for a given RunInfo.
	Command(Config, RunInfo) ([]string, error)

	// Return a name fragment unique to this run, used for profiler log files.
	RunTag(Config, RunInfo) (string, error)

	// The schema of the JSON result files the tool writes.
	Schema() *report.Schema

	SummaryName() string
	ArchiveName() string

	// How long to wait between configurations.
	Cooldown() time.Duration

	// Whether hidden files are left out of the results directory.
	SkipHidden() bool

	// The oldest tool version the command line is known to work with.
	MinToolVersion() *version.Version
}

type DriverInput struct {
	// Overrides the driver's default tool command prefix.
	Tool []string
}

type driverFactory func(*DriverInput) (Driver, error)

var drivers map[string]driverFactory

// All drivers must register themselves at package load time so they can be selected by name.
func RegisterDriver(name string, f driverFactory) {
	if drivers == nil {
		drivers = map[string]driverFactory{}
	}
	drivers[name] = f
}

func NewDriver(name string, input *DriverInput) (Driver, error) {
	f, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown benchmark driver: %s", name)
	}
	return f(input)
}

func ExplainDrivers() string {
	var sb strings.Builder
	for i, name := range util.SortedKeys(drivers) {
		sb.WriteString("\"")
		sb.WriteString(name)
		sb.WriteString("\"")
		if i < len(drivers)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}

// CheckToolVersion parses a user-supplied tool version and compares it against the driver's minimum.
// Returns whether the version is supported.
func CheckToolVersion(d Driver, toolVersion string) (*version.Version, bool, error) {
	if strings.HasPrefix(toolVersion, "v") {
		return nil, false, fmt.Errorf("tool version string must not have a v prefix")
	}
	v, err := version.NewVersion(toolVersion)
	if err != nil {
		return nil, false, fmt.Errorf("can't parse tool version: %w", err)
	}
	minVersion := d.MinToolVersion()
	if minVersion == nil {
		return v, true, nil
	}
	return v, v.GreaterThanOrEqual(minVersion), nil
}
