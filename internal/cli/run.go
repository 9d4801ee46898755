package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/httpscenario"
	"github.com/wesleyorama2/stampede/internal/output"
	"github.com/wesleyorama2/stampede/internal/promexport"
	"github.com/wesleyorama2/stampede/internal/summary"
)

// HTTP debug levels
const (
	httpDebugHeaders = "headers"
	httpDebugFull    = "full"
)

type runOptions struct {
	configPath  string
	quiet       bool
	metricsAddr string
	summaryJSON string
	summaryHTML string
	httpDebug   string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test from a configuration file",
		Long: `Run the scenario of a configuration file through its load profile.

The process exits with 0 when every threshold passes, 99 when a threshold
fails and 1 when the configuration is invalid or the run could not start.
Ctrl-C stops the run gracefully; the summary is still produced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd.Context(), g, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the test configuration (YAML or JSON)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "hide the live progress display")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run, e.g. :9090")
	flags.StringVar(&opts.summaryJSON, "summary-json", "", "also write the summary as JSON to this path")
	flags.StringVar(&opts.summaryHTML, "summary-html", "", "also write an HTML report to this path")
	flags.StringVar(&opts.httpDebug, "http-debug", "", "dump every request and response to stderr: headers or full")
	flags.Lookup("http-debug").NoOptDefVal = httpDebugHeaders
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runTest(ctx context.Context, g *globalOptions, opts *runOptions) error {
	if opts.httpDebug != "" && opts.httpDebug != httpDebugHeaders && opts.httpDebug != httpDebugFull {
		return &exitError{code: ExitError, err: fmt.Errorf("invalid --http-debug value %q (want headers or full)", opts.httpDebug)}
	}

	logger, err := g.logger()
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		logger.Error("invalid configuration", zap.String("config", opts.configPath), zap.Error(err))
		return &exitError{code: ExitError, err: err}
	}
	addSummaryFlags(cfg, opts)

	eng, closeScenario, err := buildEngine(cfg, g, opts, logger)
	if err != nil {
		logger.Error("invalid configuration", zap.String("config", opts.configPath), zap.Error(err))
		return &exitError{code: ExitError, err: err}
	}
	defer closeScenario()

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	group, metricsCtx := errgroup.WithContext(metricsCtx)
	if opts.metricsAddr != "" {
		srv, err := promexport.Listen(opts.metricsAddr, promexport.NewExporter(eng.Collector(), logger), logger)
		if err != nil {
			return &exitError{code: ExitError, err: err}
		}
		group.Go(func() error { return srv.Serve(metricsCtx) })
	}

	result, runErr := eng.Run(ctx)

	stopMetrics()
	if err := group.Wait(); err != nil {
		logger.Warn("metrics server failed", zap.Error(err))
	}

	if runErr != nil {
		logger.Error("summary output failed", zap.Error(runErr))
	}
	return exitFor(result, runErr)
}

// exitFor maps the run outcome to an exit code. Failed thresholds win
// over output errors.
func exitFor(result *engine.RunResult, runErr error) error {
	switch {
	case result != nil && !result.Passed:
		return &exitError{code: ExitThresholdsFailed}
	case runErr != nil:
		return &exitError{code: ExitError}
	default:
		return nil
	}
}

func loadConfig(path string) (*config.TestConfig, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func addSummaryFlags(cfg *config.TestConfig, opts *runOptions) {
	if opts.summaryJSON != "" {
		cfg.Summary.Outputs = append(cfg.Summary.Outputs, config.OutputConfig{Format: "json", Path: opts.summaryJSON})
	}
	if opts.summaryHTML != "" {
		cfg.Summary.Outputs = append(cfg.Summary.Outputs, config.OutputConfig{Format: "html", Path: opts.summaryHTML})
	}
}

// buildEngine wires the configuration into a ready engine. The returned
// func releases the scenario's connections.
func buildEngine(cfg *config.TestConfig, g *globalOptions, opts *runOptions, logger *zap.Logger) (*engine.Engine, func(), error) {
	execCfg, err := cfg.ExecutorConfig()
	if err != nil {
		return nil, nil, err
	}
	thresholds, err := cfg.ThresholdSpecs()
	if err != nil {
		return nil, nil, err
	}
	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, nil, err
	}
	def, err := cfg.ScenarioDefinition()
	if err != nil {
		return nil, nil, err
	}
	outputs, err := summaryOutputs(cfg.Summary.Outputs, g)
	if err != nil {
		return nil, nil, err
	}

	scenarioOpts := httpscenario.Options{Client: clientCfg, Logger: logger}
	if opts.httpDebug != "" {
		scenarioOpts.Trace = output.NewHTTPDebug(g.stderr, opts.httpDebug == httpDebugFull, g.noColor).Trace
	}
	scenario, err := httpscenario.New(def, scenarioOpts)
	if err != nil {
		return nil, nil, err
	}

	console := output.New(output.Config{
		Name:     cfg.Name,
		Executor: string(execCfg.Type),
		Writer:   g.stderr,
		Quiet:    opts.quiet,
		NoColor:  g.noColor,
	})

	eng, err := engine.New(engine.Options{
		Name:            cfg.Name,
		Executor:        execCfg,
		Scenario:        scenario,
		Thresholds:      thresholds,
		Metrics:         append(cfg.MetricDefinitions(), scenario.MetricDefinitions()...),
		HTTPMetrics:     true,
		SummaryHandlers: []engine.SummaryHandler{summary.Handler(outputs)},
		Output:          summary.NewWriter(g.stdout, g.stderr, logger),
		Logger:          logger,
		OnProgress:      console.Update,
	})
	if err != nil {
		scenario.Close()
		return nil, nil, err
	}

	console.PrintHeader()
	return eng, scenario.Close, nil
}

// summaryOutputs picks a renderer per configured output. Text colours
// follow the destination unless the output or --no-color says otherwise.
func summaryOutputs(outputs []config.OutputConfig, g *globalOptions) ([]summary.OutputSpec, error) {
	specs := make([]summary.OutputSpec, 0, len(outputs))
	var errs []error
	for i, out := range outputs {
		colors := false
		switch {
		case g.noColor:
		case out.Colors != nil:
			colors = *out.Colors
		case out.Path == summary.Stdout:
			colors = output.ColorsEnabled(g.stdout)
		case out.Path == summary.Stderr:
			colors = output.ColorsEnabled(g.stderr)
		}

		renderer, err := summary.ForFormat(out.Format, summary.Options{Indent: out.Indent, Colors: colors})
		if err != nil {
			errs = append(errs, fmt.Errorf("summary.outputs[%d]: %w", i, err))
			continue
		}
		specs = append(specs, summary.OutputSpec{Path: out.Path, Renderer: renderer})
	}
	return specs, errors.Join(errs...)
}
