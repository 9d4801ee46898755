package promexport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

func cryptoCollector() *metrics.Collector {
	c := metrics.NewCollector()
	c.Declare(metrics.Definition{Name: "get_crypto_price_duration", Kind: metrics.KindTrend, ValueType: metrics.Time})
	c.Declare(metrics.Definition{Name: "success_rate", Kind: metrics.KindRate})
	c.Declare(metrics.Definition{Name: metrics.HTTPReqFailed, Kind: metrics.KindRate})

	for i := 0; i < 20; i++ {
		ok := i%10 != 0
		c.Record(metrics.Iterations, metrics.KindCounter, 1)
		c.Record("get_crypto_price_duration", metrics.KindTrend, 100+float64(i))
		if ok {
			c.Record("success_rate", metrics.KindRate, 1)
			c.Record(metrics.CheckMetricName("status is 200"), metrics.KindRate, 1)
		} else {
			c.Record("success_rate", metrics.KindRate, 0)
			c.Record(metrics.CheckMetricName("status is 200"), metrics.KindRate, 0)
		}
	}
	c.Record(metrics.VUs, metrics.KindGauge, 3)
	return c
}

func TestExporter_CountersGaugesRates(t *testing.T) {
	e := NewExporter(cryptoCollector(), nil)

	expected := `
# HELP stampede_iterations_total counter iterations
# TYPE stampede_iterations_total counter
stampede_iterations_total 20
# HELP stampede_vus gauge vus
# TYPE stampede_vus gauge
stampede_vus 3
# HELP stampede_success_rate_ratio rate success_rate
# TYPE stampede_success_rate_ratio gauge
stampede_success_rate_ratio 0.9
# HELP stampede_check_ratio Share of passing evaluations of a named check.
# TYPE stampede_check_ratio gauge
stampede_check_ratio{check="status is 200"} 0.9
`
	err := testutil.CollectAndCompare(e, strings.NewReader(expected),
		"stampede_iterations_total", "stampede_vus", "stampede_success_rate_ratio", "stampede_check_ratio")
	require.NoError(t, err)
}

func TestExporter_TrendStatistics(t *testing.T) {
	e := NewExporter(cryptoCollector(), nil)

	assert.Equal(t, len(trendStats), testutil.CollectAndCount(e, "stampede_get_crypto_price_duration"))
	assert.Equal(t, 1, testutil.CollectAndCount(e, "stampede_get_crypto_price_duration_samples_total"))

	expected := `
# HELP stampede_get_crypto_price_duration_samples_total samples in get_crypto_price_duration
# TYPE stampede_get_crypto_price_duration_samples_total counter
stampede_get_crypto_price_duration_samples_total 20
`
	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(expected),
		"stampede_get_crypto_price_duration_samples_total"))
}

func TestExporter_SkipsEmptySeries(t *testing.T) {
	e := NewExporter(cryptoCollector(), nil)

	// http_req_failed was declared but never recorded.
	assert.Zero(t, testutil.CollectAndCount(e, "stampede_http_req_failed_ratio"))
	assert.Equal(t, 1, testutil.CollectAndCount(e, "stampede_run_elapsed_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(e, "stampede_run_phase"))
}

func TestExporter_SanitisesNames(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	c := metrics.NewCollector()
	c.Record("orders.created", metrics.KindCounter, 2)
	c.Record("orders-created", metrics.KindCounter, 5)

	e := NewExporter(c, zap.New(core))
	assert.Equal(t, 1, testutil.CollectAndCount(e, "stampede_orders_created_total"))
	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(`
# HELP stampede_orders_created_total counter orders-created
# TYPE stampede_orders_created_total counter
stampede_orders_created_total 5
`), "stampede_orders_created_total"))

	assert.NotZero(t, logs.FilterMessage("metric name collides after sanitising, not exported").Len())
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "stampede_http_req_duration", metricName("http_req_duration"))
	assert.Equal(t, "stampede_a_b_c", metricName("a.b c"))
}

func TestServer_ServesMetrics(t *testing.T) {
	s, err := Listen("127.0.0.1:0", NewExporter(cryptoCollector(), nil), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(raw)
		return true
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, body, "stampede_iterations_total 20")
	assert.Contains(t, body, "go_goroutines")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}

func TestListen_AddressInUse(t *testing.T) {
	first, err := Listen("127.0.0.1:0", NewExporter(metrics.NewCollector(), nil), nil)
	require.NoError(t, err)
	defer first.listener.Close()

	_, err = Listen(first.Addr(), NewExporter(metrics.NewCollector(), nil), nil)
	assert.ErrorContains(t, err, "failed to listen")
}
