// Package metrics aggregates the samples emitted during a load test run.
package metrics

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies how samples of a metric are aggregated.
type Kind int

const (
	// KindCounter sums every value it receives.
	KindCounter Kind = iota
	// KindGauge keeps the last value plus min and max.
	KindGauge
	// KindRate tracks the ratio of non-zero values to all values.
	KindRate
	// KindTrend tracks a distribution and supports percentile queries.
	KindTrend
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindRate:
		return "rate"
	case KindTrend:
		return "trend"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind parses a kind name as used in configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "counter":
		return KindCounter, nil
	case "gauge":
		return KindGauge, nil
	case "rate":
		return KindRate, nil
	case "trend":
		return KindTrend, nil
	default:
		return 0, fmt.Errorf("unknown metric type %q", s)
	}
}

// ValueType qualifies the values of a metric.
type ValueType int

const (
	// Default values are plain numbers.
	Default ValueType = iota
	// Time values are durations expressed in milliseconds.
	Time
)

func (v ValueType) String() string {
	if v == Time {
		return "time"
	}
	return "default"
}

// MarshalText implements encoding.TextMarshaler.
func (v ValueType) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Sample is a single observation. Once handed to a Collector it is not
// referenced again by the caller.
type Sample struct {
	Name  string
	Kind  Kind
	Value float64
	Time  time.Time
}

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the phase before the first stage starts.
	PhaseInit Phase = "init"

	// PhaseRampUp is active while the VU target is increasing.
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is active while the VU target is held.
	PhaseSteady Phase = "steady"

	// PhaseRampDown is active while the VU target is decreasing.
	PhaseRampDown Phase = "ramp-down"

	// PhaseStopping is active while VUs finish their last iteration.
	PhaseStopping Phase = "stopping"

	// PhaseDone indicates the run has completed.
	PhaseDone Phase = "done"
)

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase      Phase     `json:"phase"`
	Timestamp  time.Time `json:"timestamp"`
	Iterations int64     `json:"iterations"`
}

// Built-in metric names emitted by the engine and the HTTP scenario.
const (
	VUs                   = "vus"
	VUsMax                = "vus_max"
	Iterations            = "iterations"
	IterationDuration     = "iteration_duration"
	IterationErrors       = "iteration_errors"
	IterationsInterrupted = "iterations_interrupted"
	Checks                = "checks"

	HTTPReqs              = "http_reqs"
	HTTPReqDuration       = "http_req_duration"
	HTTPReqBlocked        = "http_req_blocked"
	HTTPReqConnecting     = "http_req_connecting"
	HTTPReqTLSHandshaking = "http_req_tls_handshaking"
	HTTPReqSending        = "http_req_sending"
	HTTPReqWaiting        = "http_req_waiting"
	HTTPReqReceiving      = "http_req_receiving"
	HTTPReqFailed         = "http_req_failed"
	DataReceived          = "data_received"
)

// Definition declares a metric ahead of any sample.
type Definition struct {
	Name      string
	Kind      Kind
	ValueType ValueType
}

// CoreDefinitions returns the metrics every run declares.
func CoreDefinitions() []Definition {
	return []Definition{
		{Name: VUs, Kind: KindGauge},
		{Name: VUsMax, Kind: KindGauge},
		{Name: Iterations, Kind: KindCounter},
		{Name: IterationDuration, Kind: KindTrend, ValueType: Time},
		{Name: IterationErrors, Kind: KindCounter},
		{Name: IterationsInterrupted, Kind: KindCounter},
		{Name: Checks, Kind: KindRate},
	}
}

// HTTPDefinitions returns the metrics emitted by HTTP scenarios.
func HTTPDefinitions() []Definition {
	return []Definition{
		{Name: HTTPReqs, Kind: KindCounter},
		{Name: HTTPReqDuration, Kind: KindTrend, ValueType: Time},
		{Name: HTTPReqBlocked, Kind: KindTrend, ValueType: Time},
		{Name: HTTPReqConnecting, Kind: KindTrend, ValueType: Time},
		{Name: HTTPReqTLSHandshaking, Kind: KindTrend, ValueType: Time},
		{Name: HTTPReqSending, Kind: KindTrend, ValueType: Time},
		{Name: HTTPReqWaiting, Kind: KindTrend, ValueType: Time},
		{Name: HTTPReqReceiving, Kind: KindTrend, ValueType: Time},
		{Name: HTTPReqFailed, Kind: KindRate},
		{Name: DataReceived, Kind: KindCounter},
	}
}

// CheckMetricName returns the per-check rate series name for a named check.
func CheckMetricName(check string) string {
	return Checks + "::" + check
}
