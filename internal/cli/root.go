// Package cli implements the stampede command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/logging"
	"github.com/wesleyorama2/stampede/internal/output"
)

var version = "dev"

// Exit codes
const (
	ExitOK               = 0
	ExitError            = 1
	ExitThresholdsFailed = 99
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	logLevel  string
	logFormat string
	noColor   bool

	stdout io.Writer
	stderr io.Writer
}

func (g *globalOptions) logger() (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:  g.logLevel,
		Format: g.logFormat,
		Writer: g.stderr,
		Color:  !g.noColor && output.ColorsEnabled(g.stderr),
	})
}

// NewRootCmd builds the command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:     "stampede",
		Short:   "Run load tests defined in YAML",
		Version: version,
		Long: `stampede ramps virtual users against an HTTP service following a staged
load profile, records metrics, checks thresholds and renders an
end-of-test summary.

  stampede run --config crypto-price.yaml
  stampede validate --config crypto-price.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&g.logFormat, "log-format", logging.FormatConsole, "log format: console or json")
	flags.BoolVar(&g.noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable coloured output")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newValidateCmd(g))
	return root
}

// Execute runs the command line and returns the process exit code.
// SIGINT and SIGTERM interrupt a run gracefully.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, NewRootCmd(os.Stdout, os.Stderr), os.Args[1:])
}

func run(ctx context.Context, root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintln(root.ErrOrStderr(), "Error:", exit.err)
		}
		return exit.code
	}
	fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	return ExitError
}
