// Package summary renders the final RunResult and writes the rendered
// outputs to the console or to files.
package summary

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/engine"
)

// Special output destinations.
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

// Renderer turns a run result into one document.
type Renderer interface {
	Render(r *engine.RunResult) ([]byte, error)
}

// Options tune the renderer ForFormat returns.
type Options struct {
	Indent string
	Colors bool
}

// ForFormat returns the renderer for a configured format name.
func ForFormat(format string, opts Options) (Renderer, error) {
	switch format {
	case "text", "":
		return Text{Indent: opts.Indent, EnableColors: opts.Colors}, nil
	case "json":
		return JSON{Indent: opts.Indent}, nil
	case "html":
		return HTML{}, nil
	default:
		return nil, fmt.Errorf("unknown summary format %q", format)
	}
}

// JSON renders the result as a JSON document.
type JSON struct {
	// Indent defaults to two spaces.
	Indent string
}

// Render implements Renderer.
func (j JSON) Render(r *engine.RunResult) ([]byte, error) {
	indent := j.Indent
	if indent == "" {
		indent = "  "
	}
	out, err := json.MarshalIndent(r, "", indent)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	return append(out, '\n'), nil
}

// OutputSpec sends one rendering to one destination.
type OutputSpec struct {
	// Path is a file path, Stdout or Stderr.
	Path     string
	Renderer Renderer
}

// Handler returns a summary handler that renders every output. Outputs
// sharing a destination are concatenated in order. A failed rendering
// fails the handler; nothing is written for it.
func Handler(outputs []OutputSpec) engine.SummaryHandler {
	return func(r *engine.RunResult) (map[string][]byte, error) {
		rendered := make(map[string][]byte, len(outputs))
		var errs *multierror.Error
		for _, out := range outputs {
			doc, err := out.Renderer.Render(r)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("render %s: %w", out.Path, err))
				continue
			}
			rendered[out.Path] = append(rendered[out.Path], doc...)
		}
		if err := errs.ErrorOrNil(); err != nil {
			return nil, err
		}
		return rendered, nil
	}
}

// WriteOutputs writes every output: Stdout and Stderr to the given
// writers, anything else to a file whose parent directories are created.
// Destinations are written in sorted order and every failure is reported.
func WriteOutputs(outputs map[string][]byte, stdout, stderr io.Writer) error {
	return writeAll(outputs, stdout, stderr, zap.NewNop())
}

// NewWriter returns an engine.OutputWriter backed by WriteOutputs that
// logs every file written.
func NewWriter(stdout, stderr io.Writer, logger *zap.Logger) engine.OutputWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(outputs map[string][]byte) error {
		return writeAll(outputs, stdout, stderr, logger)
	}
}

func writeAll(outputs map[string][]byte, stdout, stderr io.Writer, logger *zap.Logger) error {
	paths := make([]string, 0, len(outputs))
	for path := range outputs {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var errs *multierror.Error
	for _, path := range paths {
		data := outputs[path]
		if err := writeOutput(path, data, stdout, stderr); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if path != Stdout && path != Stderr {
			logger.Info("summary written", zap.String("path", path), zap.Int("bytes", len(data)))
		}
	}
	return errs.ErrorOrNil()
}

func writeOutput(path string, data []byte, stdout, stderr io.Writer) error {
	switch path {
	case Stdout:
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("write summary to stdout: %w", err)
		}
		return nil
	case Stderr:
		if _, err := stderr.Write(data); err != nil {
			return fmt.Errorf("write summary to stderr: %w", err)
		}
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary to %s: %w", path, err)
	}
	return nil
}
