package summary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/threshold"
)

// HTML renders a standalone report page with a throughput chart.
type HTML struct{}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDuration": formatDuration,
	"formatNumber":   formatNumber,
	"formatPercent":  formatPercent,
	"reportTime":     reportTime,
}).Parse(htmlTemplate))

// reportData is what the template sees.
type reportData struct {
	*engine.RunResult
	Iterations       int64
	FailedIterations int64
	Thresholds       []thresholdRow
	Checks           []checkRow
	Trends           []metricRow
	Others           []metricRow
	TimeSeriesJSON   template.JS
}

type thresholdRow struct {
	Metric     string
	Expression string
	Actual     string
	Passed     bool
}

type checkRow struct {
	Name   string
	Passes int64
	Fails  int64
	Rate   float64
}

type metricRow struct {
	Name   string
	Kind   string
	Values []string
}

// timeSeriesPoint is one chart sample.
type timeSeriesPoint struct {
	Elapsed   float64 `json:"elapsed"`
	Rate      float64 `json:"rate"`
	ErrorRate float64 `json:"errorRate"`
	P95       float64 `json:"p95"`
	ActiveVUs int     `json:"activeVUs"`
	Phase     string  `json:"phase"`
}

// Render implements Renderer.
func (HTML) Render(r *engine.RunResult) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil run result")
	}

	series, err := timeSeriesJSON(r.TimeSeries)
	if err != nil {
		return nil, fmt.Errorf("failed to convert time series: %w", err)
	}

	data := reportData{
		RunResult:      r,
		Thresholds:     thresholdRows(r),
		TimeSeriesJSON: template.JS(series),
	}
	data.Iterations, data.FailedIterations = r.Iterations()
	data.Checks = checkRows(r.Metrics)
	data.Trends, data.Others = metricRows(r.Metrics)

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func timeSeriesJSON(buckets []*metrics.TimeBucket) (string, error) {
	points := make([]timeSeriesPoint, len(buckets))
	for i, b := range buckets {
		points[i] = timeSeriesPoint{
			Elapsed:   b.Elapsed.Seconds(),
			Rate:      b.IntervalRate,
			ErrorRate: b.IntervalErrorRate,
			P95:       b.IterationP95,
			ActiveVUs: b.ActiveVUs,
			Phase:     string(b.Phase),
		}
	}
	out, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(out), nil
}

func thresholdRows(r *engine.RunResult) []thresholdRow {
	rows := make([]thresholdRow, 0, len(r.Thresholds))
	for _, o := range r.Thresholds {
		row := thresholdRow{Metric: o.Metric, Expression: o.Expression, Passed: o.Passed, Actual: "no data"}
		if !o.NoData {
			label := o.Expression
			if expr, err := threshold.Parse(o.Expression); err == nil {
				label = expr.StatLabel()
			}
			row.Actual = label + "=" + formatStat(r.Metrics.Get(o.Metric), label, o.Actual)
		}
		rows = append(rows, row)
	}
	return rows
}

func checkRows(snap *metrics.Snapshot) []checkRow {
	if snap == nil {
		return nil
	}
	var rows []checkRow
	for _, name := range snap.Names() {
		if !strings.HasPrefix(name, checkPrefix) {
			continue
		}
		s := snap.Get(name)
		passes, count := s.Ratio()
		rows = append(rows, checkRow{
			Name:   strings.TrimPrefix(name, checkPrefix),
			Passes: passes,
			Fails:  count - passes,
			Rate:   s.Rate,
		})
	}
	return rows
}

// metricRows splits the series into trends, which get one column per
// statistic, and everything else.
func metricRows(snap *metrics.Snapshot) (trends, others []metricRow) {
	if snap == nil {
		return nil, nil
	}
	for _, name := range snap.Names() {
		if strings.HasPrefix(name, checkPrefix) {
			continue
		}
		s := snap.Get(name)
		row := metricRow{Name: name, Kind: s.Kind.String()}
		switch s.Kind {
		case metrics.KindTrend:
			for _, v := range []float64{s.Avg, s.Min, s.Med, s.Max, s.P90, s.P95, s.P99} {
				row.Values = append(row.Values, formatValue(s, v))
			}
			row.Values = append(row.Values, formatNumber(s.Count))
			trends = append(trends, row)
			continue
		case metrics.KindCounter:
			row.Values = []string{formatValue(s, s.Sum), fmt.Sprintf("%.2f/s", s.Rate)}
		case metrics.KindGauge:
			row.Values = []string{formatValue(s, s.Value), "min " + formatValue(s, s.Min) + " / max " + formatValue(s, s.Max)}
		case metrics.KindRate:
			passes, count := s.Ratio()
			row.Values = []string{formatPercent(s.Rate), fmt.Sprintf("%s / %s", formatNumber(passes), formatNumber(count))}
		}
		others = append(others, row)
	}
	return trends, others
}

// reportTime formats the report timestamp.
func reportTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}
