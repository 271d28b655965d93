package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Octogonapus/ServingBench/benchmark"
	_ "github.com/Octogonapus/ServingBench/benchmark/genaiperf"
	"github.com/Octogonapus/ServingBench/benchmark/vllm"
	benchmarkorchestrator "github.com/Octogonapus/ServingBench/benchmark_orchestrator"
	objectprovider "github.com/Octogonapus/ServingBench/object_provider"
	"github.com/Octogonapus/ServingBench/profile"
	systemmonitor "github.com/Octogonapus/ServingBench/system_monitor"
	"github.com/Octogonapus/ServingBench/target"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh"
)

const exitInterrupted = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	code := exitCode(err)
	if code != 0 {
		stop()
		os.Exit(code)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SERVINGBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "servingbench <config.yaml> <gpu_type>",
		Short: "Run an LLM serving benchmark tool once per configuration and archive the results.",
		Long: "Run an LLM serving benchmark tool once per configuration entry of a YAML file, " +
			"optionally profiling the GPUs during each run, then summarize the JSON results into a CSV file " +
			"and zip everything into a single archive.\n\n" +
			fmt.Sprintf("gpu_type selects the profiler script. Must be one of: %s. Any other value disables profiling.", profile.ExplainProfilers()),
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// usage is only useful for argument errors
			cmd.SilenceUsage = true
			if err := setUpLogging(v.GetString("log-level")); err != nil {
				return err
			}
			return run(cmd.Context(), v, args[0], args[1], cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.String("driver", vllm.Name, fmt.Sprintf("The benchmark tool to drive. Must be one of: %s.", benchmark.ExplainDrivers()))
	flags.String("tool", "", "Override the tool command prefix, e.g. \"python /opt/vllm/benchmarks/benchmark_serving.py\".")
	flags.String("tool-version", "", "The installed tool version. Warns when older than the driver supports.")
	flags.String("output-dir", ".", "Directory the tool runs in and where results, the summary and the archive are written.")
	flags.Duration("cooldown", 0, "Wait this long between configurations. Defaults to the driver's cooldown.")
	flags.String("profiler-dir", ".", "Directory containing the GPU profiler scripts.")
	flags.Duration("profiler-grace", profile.DefaultGracePeriod, "How long a profiler gets to exit after SIGTERM before it is killed.")
	flags.Bool("host-monitor", false, "Also sample host CPU and memory usage during each run.")
	flags.Duration("host-monitor-interval", time.Second, "Sampling interval of the host monitor.")
	flags.Bool("dry-run", false, "Validate the configuration and print the commands without running them.")
	flags.Bool("quiet", false, "Don't show a progress bar.")
	flags.String("log-level", "info", "One of: debug, info, warn, error.")
	flags.String("s3-bucket", "", "Upload the archive to this S3 bucket.")
	flags.String("s3-prefix", "", "Key prefix of the uploaded archive.")
	flags.String("s3-region", "", "Region of the S3 bucket. Defaults to the AWS SDK's region resolution.")
	flags.Bool("s3-create-bucket", false, "Create the S3 bucket if it does not exist.")
	flags.String("sftp-addr", "", "Upload the archive to this SFTP server (host:port).")
	flags.String("sftp-user", "", "SFTP user name. Defaults to $USER.")
	flags.String("sftp-key", "", "Private key file used to authenticate to the SFTP server.")
	flags.String("sftp-dir", ".", "Remote directory the archive is uploaded into.")
	flags.String("sftp-known-hosts", "", "known_hosts file used to verify the SFTP server. Host keys are not verified when empty.")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	return cmd
}

func setUpLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("%w: bad log level %q", benchmark.ErrInvalidConfig, level)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	return nil
}

func run(ctx context.Context, v *viper.Viper, configPath, gpuType string, stderr io.Writer) error {
	driver, err := benchmark.NewDriver(v.GetString("driver"), &benchmark.DriverInput{
		Tool: strings.Fields(v.GetString("tool")),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", benchmark.ErrInvalidConfig, err)
	}

	configs, err := benchmark.LoadConfigs(configPath)
	if err != nil {
		return err
	}

	profilers := []profile.Profiler{}
	if p := profile.ForGPU(gpuType, &profile.ProfilerInput{
		ScriptDir:   v.GetString("profiler-dir"),
		GracePeriod: v.GetDuration("profiler-grace"),
	}); p != nil {
		profilers = append(profilers, p)
	} else {
		slog.Info("GPU profiling disabled", slog.String("gpuType", gpuType))
	}
	if v.GetBool("host-monitor") {
		profilers = append(profilers, systemmonitor.NewHostMonitor(&systemmonitor.HostMonitorInput{
			Interval: v.GetDuration("host-monitor-interval"),
		}))
	}

	publishers, err := newPublishers(ctx, v)
	if err != nil {
		return err
	}

	input := &benchmarkorchestrator.OrchestratorInput{
		Driver:      driver,
		Target:      target.NewLocalTarget(),
		Profilers:   profilers,
		OutputDir:   v.GetString("output-dir"),
		GPUType:     gpuType,
		ToolVersion: v.GetString("tool-version"),
		Publishers:  publishers,
		DryRun:      v.GetBool("dry-run"),
	}
	if v.IsSet("cooldown") {
		cd := v.GetDuration("cooldown")
		input.Cooldown = &cd
	}
	if !v.GetBool("quiet") {
		input.Progress = stderr
	}

	orch := benchmarkorchestrator.NewBenchmarkOrchestrator(input)
	for _, cfg := range configs {
		if err := orch.AddBenchmark(cfg); err != nil {
			return err
		}
	}
	if err := orch.SetUp(ctx); err != nil {
		return err
	}

	rep, err := orch.RunBenchmarks(ctx)
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(stderr, "Benchmark session %s failed: %v\n", rep.Session.RunID, err)
		return err
	}
	if input.DryRun {
		color.New(color.FgYellow).Fprintf(stderr, "Dry run: %d configurations validated\n", len(rep.Session.Runs))
		return nil
	}
	color.New(color.FgGreen, color.Bold).Fprintf(stderr, "Benchmark session %s complete: %s\n", rep.Session.RunID, rep.ArchivePath)
	for _, loc := range rep.Locations {
		color.New(color.FgGreen).Fprintf(stderr, "Published to %s\n", loc)
	}
	return nil
}

func newPublishers(ctx context.Context, v *viper.Viper) ([]objectprovider.Publisher, error) {
	publishers := []objectprovider.Publisher{}

	if bucket := v.GetString("s3-bucket"); bucket != "" {
		opts := []func(*config.LoadOptions) error{}
		if region := v.GetString("s3-region"); region != "" {
			opts = append(opts, config.WithRegion(region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		publishers = append(publishers, objectprovider.NewS3Publisher(&objectprovider.S3PublisherInput{
			AwsConfig:    cfg,
			Bucket:       bucket,
			Prefix:       v.GetString("s3-prefix"),
			CreateBucket: v.GetBool("s3-create-bucket"),
		}))
	}

	if addr := v.GetString("sftp-addr"); addr != "" {
		user := v.GetString("sftp-user")
		if user == "" {
			user = os.Getenv("USER")
		}
		auths := []ssh.AuthMethod{}
		if keyPath := v.GetString("sftp-key"); keyPath != "" {
			auth, err := objectprovider.KeyAuth(keyPath)
			if err != nil {
				return nil, err
			}
			auths = append(auths, auth)
		}
		publishers = append(publishers, objectprovider.NewSFTPPublisher(&objectprovider.SFTPPublisherInput{
			Addr:           addr,
			User:           user,
			Auths:          auths,
			RemoteDir:      v.GetString("sftp-dir"),
			KnownHostsPath: v.GetString("sftp-known-hosts"),
		}))
	}

	return publishers, nil
}

// exitCode maps a session error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *target.ExitError
	switch {
	case errors.As(err, &exitErr):
		fmt.Fprintln(os.Stderr, err)
		return exitErr.Code
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintln(os.Stderr, "interrupted")
		return exitInterrupted
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}
