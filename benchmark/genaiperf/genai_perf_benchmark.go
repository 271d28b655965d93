package genaiperf

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Octogonapus/ServingBench/benchmark"
	"github.com/Octogonapus/ServingBench/report"
	"github.com/Octogonapus/ServingBench/target"
	"github.com/Octogonapus/ServingBench/util"
	"github.com/hashicorp/go-version"
)

const Name = "genai-perf"

var DefaultTool = []string{"genai-perf"}

var minToolVersion = version.Must(version.NewVersion("0.0.4"))

// Load from one configuration needs time to drain from the server before the next starts.
const cooldown = 10 * time.Second

type GenAIPerfBenchmarkInput struct {
	Model       string `mapstructure:"model" validate:"required"`
	BaseURL     string `mapstructure:"base_url" validate:"required"`
	NumPrompts  int    `mapstructure:"num_prompts" validate:"required,gt=0"`
	Concurrency int    `mapstructure:"concurrency" validate:"required,gt=0"`
}

type driver struct {
	tool []string
}

func init() {
	benchmark.RegisterDriver(Name, func(input *benchmark.DriverInput) (benchmark.Driver, error) {
		return NewGenAIPerfDriver(input)
	})
}

// NewGenAIPerfDriver drives NVIDIA genai-perf against an OpenAI completions endpoint.
func NewGenAIPerfDriver(input *benchmark.DriverInput) (benchmark.Driver, error) {
	tool := DefaultTool
	if len(input.Tool) > 0 {
		tool = input.Tool
	}
	tool, err := target.AbsPaths(tool)
	if err != nil {
		return nil, err
	}
	return &driver{tool: tool}, nil
}

func (d *driver) Name() string {
	return Name
}

func decode(cfg benchmark.Config) (*GenAIPerfBenchmarkInput, error) {
	input := &GenAIPerfBenchmarkInput{}
	if err := benchmark.DecodeInput(cfg, input); err != nil {
		return nil, fmt.Errorf("can't convert config to GenAIPerfBenchmarkInput: %w", err)
	}
	return input, nil
}

func (d *driver) Validate(cfg benchmark.Config) error {
	_, err := decode(cfg)
	return err
}

// OutputFileName is where genai-perf writes its JSON summary for one run.
func OutputFileName(run benchmark.RunInfo) string {
	return fmt.Sprintf("genaiperf_result_%s_r%d.json", util.Timestamp(run.Timestamp), run.Index)
}

func (d *driver) Command(cfg benchmark.Config, run benchmark.RunInfo) ([]string, error) {
	in, err := decode(cfg)
	if err != nil {
		return nil, err
	}
	cmd := append([]string{}, d.tool...)
	return append(cmd,
		"--model", in.Model,
		"--service-kind", "openai",
		"--endpoint", "v1/completions",
		"--endpoint-type", "completions",
		"--num-prompts", strconv.Itoa(in.NumPrompts),
		"--concurrency", strconv.Itoa(in.Concurrency),
		"--url", in.BaseURL,
		"--json", OutputFileName(run),
	), nil
}

func (d *driver) RunTag(cfg benchmark.Config, run benchmark.RunInfo) (string, error) {
	in, err := decode(cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_r%d_c%d", util.Timestamp(run.Timestamp), run.Index, in.Concurrency), nil
}

func (d *driver) Schema() *report.Schema {
	return report.GenAIPerfSchema
}

func (d *driver) SummaryName() string {
	return "genaiperf_summary.csv"
}

func (d *driver) ArchiveName() string {
	return "genaiperf_results.zip"
}

func (d *driver) Cooldown() time.Duration {
	return cooldown
}

func (d *driver) SkipHidden() bool {
	return true
}

func (d *driver) MinToolVersion() *version.Version {
	return minToolVersion
}
