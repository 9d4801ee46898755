// Package promexport exposes the live metrics of a run for Prometheus to
// scrape.
package promexport

import (
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// MetricPrefix starts every exported metric name.
const MetricPrefix = "stampede"

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

var (
	checkRatioDesc = prometheus.NewDesc(
		MetricPrefix+"_check_ratio",
		"Share of passing evaluations of a named check.",
		[]string{"check"}, nil,
	)
	elapsedDesc = prometheus.NewDesc(
		MetricPrefix+"_run_elapsed_seconds",
		"Time since the run started.",
		nil, nil,
	)
	phaseDesc = prometheus.NewDesc(
		MetricPrefix+"_run_phase",
		"1 for the phase the run is in.",
		[]string{"phase"}, nil,
	)
)

// trendStats are the statistics exported for every trend, in label order.
var trendStats = []struct {
	label string
	value func(*metrics.SeriesSnapshot) float64
}{
	{"avg", func(s *metrics.SeriesSnapshot) float64 { return s.Avg }},
	{"min", func(s *metrics.SeriesSnapshot) float64 { return s.Min }},
	{"med", func(s *metrics.SeriesSnapshot) float64 { return s.Med }},
	{"max", func(s *metrics.SeriesSnapshot) float64 { return s.Max }},
	{"p90", func(s *metrics.SeriesSnapshot) float64 { return s.P90 }},
	{"p95", func(s *metrics.SeriesSnapshot) float64 { return s.P95 }},
	{"p99", func(s *metrics.SeriesSnapshot) float64 { return s.P99 }},
}

// Exporter is a prometheus.Collector over a run's metric collector. Series
// are created by the run as it goes, so the exporter is unchecked: it
// describes nothing up front and takes a fresh snapshot on every scrape.
type Exporter struct {
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewExporter exports the series of c.
func NewExporter(c *metrics.Collector, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{collector: c, logger: logger}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.collector.Snapshot()

	ch <- prometheus.MustNewConstMetric(elapsedDesc, prometheus.GaugeValue, snap.Elapsed.Seconds())
	if snap.Phase != "" {
		ch <- prometheus.MustNewConstMetric(phaseDesc, prometheus.GaugeValue, 1, string(snap.Phase))
	}

	seen := make(map[string]string)
	for _, name := range snap.Names() {
		s := snap.Get(name)
		if check, ok := strings.CutPrefix(name, metrics.Checks+"::"); ok {
			if !s.Empty() {
				ch <- prometheus.MustNewConstMetric(checkRatioDesc, prometheus.GaugeValue, s.Rate, check)
			}
			continue
		}

		base := metricName(name)
		if other, dup := seen[base]; dup {
			e.logger.Warn("metric name collides after sanitising, not exported",
				zap.String("metric", name), zap.String("exported_as", other))
			continue
		}
		seen[base] = name
		e.collectSeries(ch, base, s)
	}
}

func (e *Exporter) collectSeries(ch chan<- prometheus.Metric, base string, s *metrics.SeriesSnapshot) {
	help := s.Kind.String() + " " + s.Name
	switch s.Kind {
	case metrics.KindCounter:
		desc := prometheus.NewDesc(base+"_total", help, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, s.Sum)
	case metrics.KindGauge:
		desc := prometheus.NewDesc(base, help, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, s.Value)
	case metrics.KindRate:
		if s.Empty() {
			return
		}
		desc := prometheus.NewDesc(base+"_ratio", help, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, s.Rate)
	case metrics.KindTrend:
		if s.Empty() {
			return
		}
		desc := prometheus.NewDesc(base, help, []string{"stat"}, nil)
		for _, stat := range trendStats {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, stat.value(s), stat.label)
		}
		samples := prometheus.NewDesc(base+"_samples_total", "samples in "+s.Name, nil, nil)
		ch <- prometheus.MustNewConstMetric(samples, prometheus.CounterValue, float64(s.Count))
	}
}

// metricName maps a series name to a valid Prometheus name.
func metricName(series string) string {
	return MetricPrefix + "_" + invalidNameChars.ReplaceAllString(series, "_")
}
