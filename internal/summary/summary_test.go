package summary

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/threshold"
)

// cryptoResult builds the result of a short crypto price run: 20
// requests, two of them slow and failing the success rate.
func cryptoResult(t *testing.T) *engine.RunResult {
	t.Helper()

	c := metrics.NewCollector()
	for _, def := range metrics.CoreDefinitions() {
		c.Declare(def)
	}
	c.Declare(metrics.Definition{Name: "get_crypto_price_duration", Kind: metrics.KindTrend, ValueType: metrics.Time})
	c.Declare(metrics.Definition{Name: "success_rate", Kind: metrics.KindRate})
	c.Declare(metrics.Definition{Name: metrics.DataReceived, Kind: metrics.KindCounter})

	for i := 0; i < 20; i++ {
		ok := i%10 != 0
		duration := 120.0
		if !ok {
			duration = 6200
		}
		c.Record("get_crypto_price_duration", metrics.KindTrend, duration)
		c.Record("success_rate", metrics.KindRate, boolValue(ok))
		c.Record(metrics.Checks, metrics.KindRate, 1)
		c.Record(metrics.CheckMetricName("status is 200"), metrics.KindRate, 1)
		c.Record(metrics.Checks, metrics.KindRate, boolValue(ok))
		c.Record(metrics.CheckMetricName("response has bitcoin.usd"), metrics.KindRate, boolValue(ok))
		c.Record(metrics.Iterations, metrics.KindCounter, 1)
		c.Record(metrics.DataReceived, metrics.KindCounter, 2048)
	}
	c.Record(metrics.VUs, metrics.KindGauge, 3)
	c.Freeze()
	snap := c.Snapshot()

	trend := snap.Get("get_crypto_price_duration")
	rate := snap.Get("success_rate")
	start := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	return &engine.RunResult{
		ID:        "run-1",
		Name:      "crypto-price",
		StartTime: start,
		EndTime:   start.Add(5 * time.Minute),
		Duration:  5 * time.Minute,
		Metrics:   snap,
		Thresholds: []threshold.Outcome{
			{Metric: "get_crypto_price_duration", Expression: "p(95)<5700", Passed: false, Actual: trend.Percentile(95)},
			{Metric: "success_rate", Expression: "rate>0.88", Passed: true, Actual: rate.Rate},
			{Metric: "http_req_failed", Expression: "rate<0.01", Passed: false, NoData: true},
		},
		Stages: []executor.StageResult{
			{Index: 0, Target: 10, ActiveAtEnd: 10, Duration: time.Minute, Status: executor.StageCompleted},
			{Index: 1, Name: "peak", Target: 300, ActiveAtEnd: 300, Duration: 3 * time.Minute, Status: executor.StageCompleted},
			{Index: 2, Target: 0, ActiveAtEnd: 0, Duration: time.Minute, Status: executor.StageCompleted},
		},
		Warnings: []string{"spawn failed for 2 VUs"},
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func TestText_Render(t *testing.T) {
	r := cryptoResult(t)

	out, err := Text{Indent: " "}.Render(r)
	require.NoError(t, err)
	text := string(out)

	assert.NotContains(t, text, "\x1b[", "colours must be off")
	assert.Contains(t, text, "crypto-price")
	assert.Contains(t, text, "FAILED")

	// Every threshold outcome is listed.
	assert.Contains(t, text, "✗ 'p(95)<5700' p(95)=")
	assert.Contains(t, text, "✓ 'rate>0.88' rate=90.00%")
	assert.Contains(t, text, "✗ 'rate<0.01' no data")

	assert.Contains(t, text, "✓ status is 200")
	assert.Contains(t, text, "✗ response has bitcoin.usd")
	assert.Contains(t, text, "90.00% ✓ 18 / ✗ 2")
	assert.Contains(t, text, "checks_succeeded: 95.00%")

	assert.Contains(t, text, "success_rate")
	assert.Contains(t, text, "90.00% 18 out of 20")
	assert.Contains(t, text, "40.96 kB")
	assert.Contains(t, text, "peak")
	assert.Contains(t, text, "⚠ spawn failed for 2 VUs")

	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line != "" {
			assert.True(t, strings.HasPrefix(line, " "), "line %q is not indented", line)
		}
	}
}

func TestText_Colors(t *testing.T) {
	out, err := Text{EnableColors: true}.Render(cryptoResult(t))
	require.NoError(t, err)
	assert.Contains(t, string(out), "\x1b[")
}

func TestText_Abort(t *testing.T) {
	r := cryptoResult(t)
	r.Interrupted = true
	r.Abort = &engine.RunAbort{Reason: engine.AbortInterrupt, Elapsed: 90 * time.Second}

	out, err := Text{}.Render(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "run interrupted after 1m30s")
}

func TestJSON_Render(t *testing.T) {
	out, err := JSON{}.Render(cryptoResult(t))
	require.NoError(t, err)

	var doc struct {
		ID         string `json:"id"`
		Passed     bool   `json:"passed"`
		Thresholds []struct {
			Metric string `json:"metric"`
			Passed bool   `json:"passed"`
		} `json:"thresholds"`
		Metrics struct {
			Series map[string]struct {
				Type  string  `json:"type"`
				Rate  float64 `json:"rate"`
				Count int64   `json:"count"`
			} `json:"metrics"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))

	assert.Equal(t, "run-1", doc.ID)
	assert.False(t, doc.Passed)
	assert.Len(t, doc.Thresholds, 3)
	assert.Equal(t, "rate", doc.Metrics.Series["success_rate"].Type)
	assert.InDelta(t, 0.9, doc.Metrics.Series["success_rate"].Rate, 1e-9)
	assert.Equal(t, int64(20), doc.Metrics.Series["get_crypto_price_duration"].Count)
	assert.True(t, bytes.HasPrefix(out, []byte("{\n  \"id\"")))
}

func TestHTML_Render(t *testing.T) {
	out, err := HTML{}.Render(cryptoResult(t))
	require.NoError(t, err)
	page := string(out)

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>crypto-price - Load Test Report</title>")
	assert.Contains(t, page, "✗ FAILED")
	assert.Contains(t, page, "p(95)&lt;5700")
	assert.Contains(t, page, "response has bitcoin.usd")
	assert.Contains(t, page, "get_crypto_price_duration")
	assert.Contains(t, page, "const timeSeries = [];")
}

func TestRenderers_NilResult(t *testing.T) {
	for _, r := range []Renderer{Text{}, HTML{}} {
		_, err := r.Render(nil)
		assert.Error(t, err)
	}
}

func TestForFormat(t *testing.T) {
	r, err := ForFormat("text", Options{Indent: "  ", Colors: true})
	require.NoError(t, err)
	assert.Equal(t, Text{Indent: "  ", EnableColors: true}, r)

	r, err = ForFormat("json", Options{Indent: "\t"})
	require.NoError(t, err)
	assert.Equal(t, JSON{Indent: "\t"}, r)

	r, err = ForFormat("html", Options{})
	require.NoError(t, err)
	assert.Equal(t, HTML{}, r)

	_, err = ForFormat("xml", Options{})
	assert.ErrorContains(t, err, "unknown summary format")
}

type failingRenderer struct{}

func (failingRenderer) Render(*engine.RunResult) ([]byte, error) {
	return nil, errors.New("boom")
}

type fixedRenderer string

func (f fixedRenderer) Render(*engine.RunResult) ([]byte, error) {
	return []byte(f), nil
}

func TestHandler(t *testing.T) {
	h := Handler([]OutputSpec{
		{Path: Stdout, Renderer: fixedRenderer("a")},
		{Path: "out/report.html", Renderer: fixedRenderer("<html>")},
		{Path: Stdout, Renderer: fixedRenderer("b")},
	})

	outputs, err := h(&engine.RunResult{})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		Stdout:            []byte("ab"),
		"out/report.html": []byte("<html>"),
	}, outputs)

	failing := Handler([]OutputSpec{
		{Path: Stdout, Renderer: fixedRenderer("a")},
		{Path: Stderr, Renderer: failingRenderer{}},
	})
	outputs, err = failing(&engine.RunResult{})
	assert.ErrorContains(t, err, "boom")
	assert.Nil(t, outputs)
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "src", "output", "index.html")

	var stdout, stderr bytes.Buffer
	err := WriteOutputs(map[string][]byte{
		Stdout:   []byte("summary"),
		Stderr:   []byte("warn"),
		htmlPath: []byte("<html></html>"),
	}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, "summary", stdout.String())
	assert.Equal(t, "warn", stderr.String())
	written, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(written))
}

func TestWriteOutputs_AggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	var stdout bytes.Buffer
	err := WriteOutputs(map[string][]byte{
		filepath.Join(blocker, "a.json"): []byte("{}"),
		filepath.Join(blocker, "b.json"): []byte("{}"),
		Stdout:                           []byte("still written"),
	}, &stdout, &bytes.Buffer{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.json")
	assert.Contains(t, err.Error(), "b.json")
	assert.Equal(t, "still written", stdout.String())
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "-1,000", formatNumber(-1000))

	assert.Equal(t, "0s", formatMillis(0))
	assert.Equal(t, "850µs", formatMillis(0.85))
	assert.Equal(t, "42.00µs", formatMillis(0.042))
	assert.Equal(t, "120ms", formatMillis(120))
	assert.Equal(t, "5.70s", formatMillis(5700))
	assert.Equal(t, "2m", formatMillis(120000))

	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "2.05 kB", formatBytes(2048))
	assert.Equal(t, "3", formatFloat(3))
	assert.Equal(t, "0.5", formatFloat(0.5))

	assert.Equal(t, "1m30s", formatDuration(90*time.Second))
	assert.Equal(t, "1h05m", formatDuration(65*time.Minute))
}
