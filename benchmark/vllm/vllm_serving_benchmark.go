package vllm

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

const Name = "vllm"

var DefaultTool = []string{"python", "../vllm/benchmarks/benchmark_serving.py"}

// --max-concurrency first shipped in 0.6.3
var minToolVersion = version.Must(version.NewVersion("0.6.3"))

type ServingBenchmarkInput struct {
	Backend      string `mapstructure:"backend" validate:"required"`
	BaseURL      string `mapstructure:"base_url" validate:"required"`
	Endpoint     string `mapstructure:"endpoint" validate:"required"`
	Model        string `mapstructure:"model" validate:"required"`
	NumPrompts   int    `mapstructure:"num_prompts" validate:"required,gt=0"`
	Concurrency  int    `mapstructure:"concurrency" validate:"required,gt=0"`
	RequestRate  string `mapstructure:"request_rate" validate:"required"` // a number or "inf"
	PromptLength int    `mapstructure:"prompt_length" validate:"required,gt=0"`
	OutputLength int    `mapstructure:"output_length" validate:"required,gt=0"`
}

type driver struct {
	tool []string
}

func init() {
	benchmark.RegisterDriver(Name, func(input *benchmark.DriverInput) (benchmark.Driver, error) {
		return NewServingDriver(input)
	})
}

// NewServingDriver drives vLLM's benchmarks/benchmark_serving.py against an OpenAI-compatible server.
func NewServingDriver(input *benchmark.DriverInput) (benchmark.Driver, error) {
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

func decode(cfg benchmark.Config) (*ServingBenchmarkInput, error) {
	input := &ServingBenchmarkInput{}
	if err := benchmark.DecodeInput(cfg, input); err != nil {
		return nil, fmt.Errorf("can't convert config to ServingBenchmarkInput: %w", err)
	}
	return input, nil
}

func (d *driver) Validate(cfg benchmark.Config) error {
	_, err := decode(cfg)
	return err
}

func (d *driver) Command(cfg benchmark.Config, run benchmark.RunInfo) ([]string, error) {
	in, err := decode(cfg)
	if err != nil {
		return nil, err
	}
	cmd := append([]string{}, d.tool...)
	return append(cmd,
		"--backend", in.Backend,
		"--base-url", in.BaseURL,
		"--endpoint", in.Endpoint,
		"--model", in.Model,
		"--dataset-name", "random",
		"--num-prompts", strconv.Itoa(in.NumPrompts),
		"--max-concurrency", strconv.Itoa(in.Concurrency),
		"--request-rate", in.RequestRate,
		"--random-input-len", strconv.Itoa(in.PromptLength),
		"--random-output-len", strconv.Itoa(in.OutputLength),
		"--percentile-metrics", "ttft,tpot,itl,e2el",
		"--save-result",
		"--ignore-eos",
	), nil
}

func (d *driver) RunTag(cfg benchmark.Config, run benchmark.RunInfo) (string, error) {
	in, err := decode(cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_r%d_c%d_l%d", util.Timestamp(run.Timestamp), run.Index, in.Concurrency, in.PromptLength), nil
}

func (d *driver) Schema() *report.Schema {
	return report.ServingSchema
}

func (d *driver) SummaryName() string {
	return "benchmark_summary.csv"
}

func (d *driver) ArchiveName() string {
	return "benchmark_results.zip"
}

func (d *driver) Cooldown() time.Duration {
	return 0
}

func (d *driver) SkipHidden() bool {
	return false
}

func (d *driver) MinToolVersion() *version.Version {
	return minToolVersion
}
