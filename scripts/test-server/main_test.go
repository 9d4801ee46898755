package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_Price(t *testing.T) {
	h := newHandler(&serverOptions{}, rand.New(rand.NewSource(1)), zap.NewNop())

	rec := get(t, h, "/api/v3/simple/price?ids=bitcoin,unknown&vs_currencies=usd")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]map[string]float64{"bitcoin": {"usd": 64000.5}}, body)
}

func TestHandler_MissingCurrency(t *testing.T) {
	h := newHandler(&serverOptions{}, rand.New(rand.NewSource(1)), zap.NewNop())
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v3/simple/price?ids=bitcoin").Code)
}

func TestHandler_ErrorRate(t *testing.T) {
	h := newHandler(&serverOptions{errorRate: 1}, rand.New(rand.NewSource(1)), zap.NewNop())
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v3/simple/price?ids=bitcoin&vs_currencies=usd").Code)
}

func TestHandler_Latency(t *testing.T) {
	h := newHandler(&serverOptions{latency: 20 * time.Millisecond}, rand.New(rand.NewSource(1)), zap.NewNop())

	start := time.Now()
	get(t, h, "/api/v3/simple/price?ids=bitcoin&vs_currencies=usd")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestHandler_Health(t *testing.T) {
	h := newHandler(&serverOptions{}, rand.New(rand.NewSource(1)), zap.NewNop())
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", rec.Body.String())
}

func TestServe_RejectsBadErrorRate(t *testing.T) {
	err := serve(context.Background(), &serverOptions{errorRate: 2}, zap.NewNop())
	assert.ErrorContains(t, err, "--error-rate")
}
