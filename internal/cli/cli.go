// ============================================================================
// frtrace CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree of the frtrace binary
//
// Command Structure:
//   frtrace                        # Root command
//   ├── convert <capture>          # Capture -> Chrome trace JSON
//   │   ├── --output, -o           # Trace path, "-" for stdout
//   │   ├── --report               # Also write a run summary
//   │   └── --metrics              # Also write a Prometheus textfile
//   ├── frames <capture>           # One line per decoded event
//   ├── inspect <capture>          # Tasks, ISRs, queues and diagnostics
//   ├── synth <out>                # Generate a scripted capture
//   ├── --config, -c               # Config file (configs/default.yaml)
//   ├── --log-level / --log-format
//   └── --version
//
// Configuration:
//   Flags override the YAML file, which overrides the built-in defaults.
//   Only flags the user actually set take effect (cobra's Changed).
//
// Examples:
//   frtrace convert capture.hex -o trace.json --workers 4
//   frtrace inspect capture.bin --encoding binary --format yaml
//   frtrace synth demo.hex --steps 2000 --corrupt 2
//
// Exit status:
//   0 on success, 1 when the capture cannot be read or decoded as text.
//   Damaged frames are not an error; they show up as diagnostics.
//
// ============================================================================

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/frtrace/internal/config"
	"github.com/ChuLiYu/frtrace/internal/logging"
	"github.com/ChuLiYu/frtrace/internal/metrics"
	"github.com/ChuLiYu/frtrace/internal/pipeline"
	"github.com/ChuLiYu/frtrace/internal/report"
	"github.com/ChuLiYu/frtrace/internal/storage/capture"
	"github.com/ChuLiYu/frtrace/internal/synth"
	"github.com/ChuLiYu/frtrace/internal/telemetry"
)

// Version is reported by --version. It is set at build time.
var Version = "dev"

// app is the state shared by the commands of one invocation.
type app struct {
	configFile string
	logLevel   string
	logFormat  string

	cfg      *config.Config
	log      zerolog.Logger
	runID    string
	shutdown telemetry.Shutdown
}

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "frtrace",
		Short: "frtrace: FreeRTOS trace capture converter",
		Long: `frtrace turns raw FreeRTOS trace captures into Chrome trace-event JSON
for Perfetto or chrome://tracing:
- zero-delimited, byte-stuffed frames
- task, interrupt, queue and marker timelines
- diagnostics for damaged or inconsistent captures`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file path (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, off")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: console or json")

	rootCmd.AddCommand(a.buildConvertCommand())
	rootCmd.AddCommand(a.buildFramesCommand())
	rootCmd.AddCommand(a.buildInspectCommand())
	rootCmd.AddCommand(a.buildSynthCommand())

	return rootCmd
}

// setup loads the configuration and wires logging and tracing.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.runID = report.NewRunID()
	a.log = logging.Init(cfg.Logging, cmd.ErrOrStderr()).With().Str("run_id", a.runID).Logger()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cmd.ErrOrStderr(), a.log)
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		a.shutdown = shutdown
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := a.shutdown(ctx)
	a.shutdown = nil
	return err
}

// pipelineFlags are shared by the commands that decode a capture.
type pipelineFlags struct {
	encoding string
	workers  int
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.encoding, "encoding", "e", "", "capture encoding: hex or binary")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "decode workers, 0 = one per CPU")
}

// apply copies the flags the user set onto the configuration.
func (f *pipelineFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("encoding") {
		cfg.Input.Encoding = capture.Encoding(f.encoding)
	}
	if cmd.Flags().Changed("workers") {
		cfg.Decode.Workers = f.workers
	}
	return cfg.Validate()
}

func (a *app) newPipeline(m *metrics.Collector) *pipeline.Pipeline {
	return pipeline.New(pipeline.Config{
		Workers:    a.cfg.WorkerCount(),
		BufferSize: a.cfg.Decode.BufferSize,
		Encoding:   a.cfg.Input.Encoding,
		IncludeRaw: a.cfg.Output.IncludeRaw,
		Logger:     a.log,
		Metrics:    m,
	})
}

// ============================================================================
// convert
// ============================================================================

func (a *app) buildConvertCommand() *cobra.Command {
	var (
		pf          pipelineFlags
		output      string
		reportPath  string
		metricsPath string
		pretty      bool
		raw         bool
	)

	cmd := &cobra.Command{
		Use:   "convert <capture>",
		Short: "Convert a capture to Chrome trace JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.apply(cmd, a.cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("pretty") {
				a.cfg.Output.Pretty = pretty
			}
			if cmd.Flags().Changed("raw") {
				a.cfg.Output.IncludeRaw = raw
			}
			if cmd.Flags().Changed("metrics") {
				a.cfg.Metrics.Enabled = metricsPath != ""
				a.cfg.Metrics.Textfile = metricsPath
			}
			if output == "" {
				output = defaultOutput(args[0])
			}
			return a.convert(cmd.Context(), cmd.OutOrStdout(), args[0], output, reportPath)
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", `trace file, "-" for stdout (default <capture>.json)`)
	cmd.Flags().StringVar(&reportPath, "report", "", "write a run summary to this file")
	cmd.Flags().StringVar(&metricsPath, "metrics", "", "write Prometheus metrics to this file")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the trace JSON")
	cmd.Flags().BoolVar(&raw, "raw", true, "add one instant per decoded event")

	return cmd
}

func defaultOutput(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".json"
}

func (a *app) convert(ctx context.Context, stdout io.Writer, input, output, reportPath string) error {
	var m *metrics.Collector
	if a.cfg.Metrics.Enabled {
		m = metrics.NewCollector()
	}

	res, err := a.newPipeline(m).RunFile(ctx, input)
	if err != nil {
		return err
	}

	if output == "-" {
		if a.cfg.Output.Pretty {
			_, err = res.Document.WriteIndented(stdout)
		} else {
			_, err = res.Document.WriteTo(stdout)
		}
	} else {
		err = res.Document.WriteFile(output, a.cfg.Output.Pretty)
	}
	if err != nil {
		return err
	}

	if reportPath != "" {
		sum := report.Build(a.runID, input, res)
		if err := sum.WriteFile(reportPath, a.cfg.Report.Format); err != nil {
			return err
		}
	}

	if m != nil {
		if err := m.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			return err
		}
	}

	a.log.Info().
		Str("input", input).
		Str("output", output).
		Int("trace_events", len(res.Document.TraceEvents)).
		Msg("trace written")
	return nil
}

// ============================================================================
// frames
// ============================================================================

func (a *app) buildFramesCommand() *cobra.Command {
	var pf pipelineFlags

	cmd := &cobra.Command{
		Use:   "frames <capture>",
		Short: "Print every decoded event, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.apply(cmd, a.cfg); err != nil {
				return err
			}
			a.cfg.Output.IncludeRaw = false

			res, err := a.newPipeline(nil).RunFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, ev := range res.Events {
				if _, err := fmt.Fprintf(out, "%6d  %s\n", i, ev); err != nil {
					return err
				}
			}
			return nil
		},
	}

	pf.register(cmd)
	return cmd
}

// ============================================================================
// inspect
// ============================================================================

func (a *app) buildInspectCommand() *cobra.Command {
	var (
		pf      pipelineFlags
		format  string
		summary string
	)

	cmd := &cobra.Command{
		Use:   "inspect [capture]",
		Short: "Summarise tasks, interrupts, queues and diagnostics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pf.apply(cmd, a.cfg); err != nil {
				return err
			}

			var (
				sum *report.Summary
				err error
			)
			switch {
			case summary != "":
				sum, err = report.Load(summary)
			case len(args) == 1:
				var res *pipeline.Result
				a.cfg.Output.IncludeRaw = false
				res, err = a.newPipeline(nil).RunFile(cmd.Context(), args[0])
				if err == nil {
					sum = report.Build(a.runID, args[0], res)
				}
			default:
				return fmt.Errorf("inspect needs a capture or --summary")
			}
			if err != nil {
				return err
			}

			if format == "table" {
				return sum.WriteTable(cmd.OutOrStdout())
			}
			return sum.Encode(cmd.OutOrStdout(), format)
		},
	}

	pf.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, yaml or json")
	cmd.Flags().StringVar(&summary, "summary", "", "read a saved run summary instead of a capture")
	return cmd
}

// ============================================================================
// synth
// ============================================================================

func (a *app) buildSynthCommand() *cobra.Command {
	var (
		sc       = synth.Default()
		encoding string
	)

	cmd := &cobra.Command{
		Use:   "synth <out>",
		Short: "Generate a scripted capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := a.cfg.Input.Encoding
			if cmd.Flags().Changed("encoding") {
				enc = capture.Encoding(encoding)
			}
			return writeScenario(args[0], enc, sc, a.log)
		},
	}

	cmd.Flags().IntVar(&sc.Tasks, "tasks", sc.Tasks, "application tasks")
	cmd.Flags().IntVar(&sc.Queues, "queues", sc.Queues, "message queues")
	cmd.Flags().IntVar(&sc.ISRs, "isrs", sc.ISRs, "interrupt sources")
	cmd.Flags().IntVar(&sc.Steps, "steps", sc.Steps, "scheduler steps")
	cmd.Flags().Int64Var(&sc.Seed, "seed", sc.Seed, "random seed")
	cmd.Flags().Uint64Var(&sc.Resolution, "resolution", sc.Resolution, "nanoseconds per timestamp unit, 0 omits it")
	cmd.Flags().IntVar(&sc.Corrupt, "corrupt", sc.Corrupt, "damaged frames to insert")
	cmd.Flags().StringVarP(&encoding, "encoding", "e", "", "capture encoding: hex or binary")
	return cmd
}

func writeScenario(path string, enc capture.Encoding, sc synth.Config, log zerolog.Logger) error {
	events, err := synth.Generate(sc)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture: %w", err)
	}
	if err := synth.Write(f, enc, events, sc.Corrupt); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close capture: %w", err)
	}

	log.Info().Str("path", path).Int("events", len(events)).Int("damaged", sc.Corrupt).Msg("capture written")
	return nil
}
