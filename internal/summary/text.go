package summary

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/fatih/color"

	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/threshold"
)

// Text renders the end-of-test summary for a terminal.
type Text struct {
	// Indent prefixes every line.
	Indent string

	// EnableColors forces ANSI colours on. When false no escape codes are
	// written, whatever the destination.
	EnableColors bool
}

// palette holds the colours of one rendering.
type palette struct {
	pass   *color.Color
	fail   *color.Color
	warn   *color.Color
	header *color.Color
	name   *color.Color
	value  *color.Color
	dim    *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		pass:   color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		warn:   color.New(color.FgYellow),
		header: color.New(color.Bold),
		name:   color.New(color.FgWhite),
		value:  color.New(color.FgCyan),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.pass, p.fail, p.warn, p.header, p.name, p.value, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p *palette) mark(ok bool) string {
	if ok {
		return p.pass.Sprint("✓")
	}
	return p.fail.Sprint("✗")
}

// Render implements Renderer.
func (t Text) Render(r *engine.RunResult) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil run result")
	}
	w := &textWriter{indent: t.Indent, p: newPalette(t.EnableColors)}

	w.writeHeader(r)
	w.writeThresholds(r)
	w.writeChecks(r.Metrics)
	w.writeMetrics(r)
	w.writeStages(r)
	w.writeWarnings(r)

	return w.buf.Bytes(), nil
}

type textWriter struct {
	buf    bytes.Buffer
	indent string
	p      *palette
}

func (w *textWriter) line(depth int, format string, args ...any) {
	w.buf.WriteString(w.indent)
	w.buf.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(&w.buf, format, args...)
	w.buf.WriteByte('\n')
}

func (w *textWriter) blank() {
	w.buf.WriteByte('\n')
}

func (w *textWriter) section(title string) {
	w.blank()
	w.line(1, "%s", w.p.header.Sprint("█ "+title))
	w.blank()
}

func (w *textWriter) writeHeader(r *engine.RunResult) {
	name := r.Name
	if name == "" {
		name = "run"
	}
	w.line(1, "%s %s", w.p.header.Sprint(name), w.p.dim.Sprintf("(%s)", r.ID))
	w.line(1, "duration: %s", formatDuration(r.Duration))

	status := w.p.pass.Sprint("PASSED")
	if !r.Passed {
		status = w.p.fail.Sprint("FAILED")
	}
	w.line(1, "status:   %s", status)
	if r.Abort != nil {
		w.line(1, "%s", w.p.warn.Sprint(r.Abort.Error()))
	}
}

// writeThresholds groups outcomes by metric in the order they appear.
func (w *textWriter) writeThresholds(r *engine.RunResult) {
	if len(r.Thresholds) == 0 {
		return
	}
	w.section("THRESHOLDS")

	var order []string
	byMetric := make(map[string][]threshold.Outcome)
	for _, o := range r.Thresholds {
		if _, ok := byMetric[o.Metric]; !ok {
			order = append(order, o.Metric)
		}
		byMetric[o.Metric] = append(byMetric[o.Metric], o)
	}

	for i, name := range order {
		if i > 0 {
			w.blank()
		}
		w.line(2, "%s", w.p.name.Sprint(name))
		series := r.Metrics.Get(name)
		for _, o := range byMetric[name] {
			w.line(2, "%s %s", w.p.mark(o.Passed), w.outcomeDetail(series, o))
		}
	}
}

func (w *textWriter) outcomeDetail(s *metrics.SeriesSnapshot, o threshold.Outcome) string {
	detail := fmt.Sprintf("'%s'", o.Expression)
	if o.NoData {
		return detail + " " + w.p.dim.Sprint("no data")
	}
	label := o.Expression
	if expr, err := threshold.Parse(o.Expression); err == nil {
		label = expr.StatLabel()
	}
	return fmt.Sprintf("%s %s=%s", detail, label, w.p.value.Sprint(formatStat(s, label, o.Actual)))
}

const checkPrefix = metrics.Checks + "::"

func (w *textWriter) writeChecks(snap *metrics.Snapshot) {
	total := snap.Get(metrics.Checks)
	if total.Empty() {
		return
	}
	w.section("CHECKS")

	var names []string
	for _, name := range snap.Names() {
		if strings.HasPrefix(name, checkPrefix) {
			names = append(names, name)
		}
	}
	for _, name := range names {
		s := snap.Get(name)
		passes, count := s.Ratio()
		w.line(2, "%s %s", w.p.mark(passes == count), strings.TrimPrefix(name, checkPrefix))
		if passes != count {
			w.line(3, "%s %s %s %d / %s %d", w.p.dim.Sprint("↳"), formatPercent(s.Rate),
				w.p.pass.Sprint("✓"), passes, w.p.fail.Sprint("✗"), count-passes)
		}
	}

	w.blank()
	passes, count := total.Ratio()
	w.line(2, "checks_total: %s  %s %s  %s %s", formatNumber(count),
		w.p.pass.Sprint("✓"), formatNumber(passes), w.p.fail.Sprint("✗"), formatNumber(count-passes))
	w.line(2, "checks_succeeded: %s", w.p.value.Sprint(formatPercent(total.Rate)))
}

// writeMetrics prints every series except the per-check rates with dotted
// padding so values line up.
func (w *textWriter) writeMetrics(r *engine.RunResult) {
	snap := r.Metrics
	if snap == nil || len(snap.Series) == 0 {
		return
	}
	w.section("METRICS")

	thresholdPassed := make(map[string]bool)
	for _, o := range r.Thresholds {
		passed, seen := thresholdPassed[o.Metric]
		thresholdPassed[o.Metric] = o.Passed && (passed || !seen)
	}

	var names []string
	width := 0
	for _, name := range snap.Names() {
		if strings.HasPrefix(name, checkPrefix) {
			continue
		}
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}

	for _, name := range names {
		s := snap.Get(name)
		mark := " "
		if passed, ok := thresholdPassed[name]; ok {
			mark = w.p.mark(passed)
		}
		dots := strings.Repeat(".", width-len(name)+3)
		w.line(2, "%s %s%s: %s", mark, w.p.name.Sprint(name), w.p.dim.Sprint(dots), w.seriesLine(s))
	}
}

func (w *textWriter) seriesLine(s *metrics.SeriesSnapshot) string {
	v := w.p.value.Sprint
	switch s.Kind {
	case metrics.KindCounter:
		return fmt.Sprintf("%s %s", v(formatValue(s, s.Sum)), w.p.dim.Sprintf("%s/s", formatFloat(math.Round(s.Rate*100)/100)))
	case metrics.KindGauge:
		return fmt.Sprintf("%s min=%s max=%s", v(formatValue(s, s.Value)), v(formatValue(s, s.Min)), v(formatValue(s, s.Max)))
	case metrics.KindRate:
		passes, count := s.Ratio()
		return fmt.Sprintf("%s %s out of %s", v(formatPercent(s.Rate)), formatNumber(passes), formatNumber(count))
	case metrics.KindTrend:
		if s.Empty() {
			return w.p.dim.Sprint("no samples")
		}
		stats := []struct {
			label string
			value float64
		}{
			{"avg", s.Avg}, {"min", s.Min}, {"med", s.Med}, {"max", s.Max},
			{"p(90)", s.P90}, {"p(95)", s.P95},
		}
		parts := make([]string, len(stats))
		for i, st := range stats {
			parts[i] = st.label + "=" + v(formatValue(s, st.value))
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

func (w *textWriter) writeStages(r *engine.RunResult) {
	if len(r.Stages) == 0 {
		return
	}
	w.section("STAGES")
	for _, st := range r.Stages {
		name := st.Name
		if name == "" {
			name = fmt.Sprintf("stage %d", st.Index+1)
		}
		w.line(2, "%-12s target=%-5d active=%-5d %-8s %s", name, st.Target, st.ActiveAtEnd,
			formatDuration(st.Duration), w.p.dim.Sprint(string(st.Status)))
	}
}

func (w *textWriter) writeWarnings(r *engine.RunResult) {
	if len(r.Warnings) == 0 {
		return
	}
	w.blank()
	for _, warning := range r.Warnings {
		w.line(1, "%s %s", w.p.warn.Sprint("⚠"), warning)
	}
}
