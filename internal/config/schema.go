// Package config loads and validates load test definitions.
//
// A test is one YAML or JSON document:
//
//	name: crypto-price
//	settings:
//	  baseUrl: https://api.coingecko.com
//	scenario:
//	  executor: ramping-vus
//	  stages:
//	    - duration: 1m
//	      target: 10
//	  requests:
//	    - name: price
//	      url: "{{baseUrl}}/api/v3/simple/price?ids=bitcoin&vs_currencies=usd"
//	      checks:
//	        - type: status
//	          value: 200
//	thresholds:
//	  http_req_duration:
//	    - p(95)<5700
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TestConfig is the root of a test definition.
type TestConfig struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are available to every request as {{name}}.
	Variables map[string]Scalar `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Metrics declares custom metrics so thresholds can reference them.
	Metrics map[string]MetricConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	Scenario ScenarioConfig `json:"scenario" yaml:"scenario"`

	// Thresholds maps metric names to pass/fail criteria.
	Thresholds map[string][]ThresholdConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	Summary SummaryConfig `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Settings configures the HTTP transport.
type Settings struct {
	BaseURL               string            `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	Timeout               Scalar            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	InsecureSkipVerify    bool              `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
	UserAgent             string            `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	Headers               map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	MaxIdleConnsPerHost   int               `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	MaxConnectionsPerHost int               `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxRPS caps requests per second across all VUs.
	MaxRPS float64 `json:"maxRPS,omitempty" yaml:"maxRPS,omitempty"`
}

// MetricConfig declares a custom metric.
type MetricConfig struct {
	// Type is counter, gauge, rate or trend.
	Type string `json:"type" yaml:"type"`

	// Time marks a trend whose values are milliseconds.
	Time bool `json:"time,omitempty" yaml:"time,omitempty"`
}

// ScenarioConfig defines the load profile and the requests each
// iteration sends.
type ScenarioConfig struct {
	// Executor is ramping-vus or constant-vus.
	Executor string `json:"executor,omitempty" yaml:"executor,omitempty"`

	// constant-vus
	VUs      int    `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration Scalar `json:"duration,omitempty" yaml:"duration,omitempty"`

	// ramping-vus
	StartVUs int           `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`
	Stages   []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	MaxVUs       int           `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`
	GracefulStop Scalar        `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
	TickInterval Scalar        `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`
	Pacing       *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`

	Requests []RequestConfig `json:"requests" yaml:"requests"`
}

// StageConfig is one segment of a ramping plan.
type StageConfig struct {
	Duration Scalar `json:"duration" yaml:"duration"`
	Target   int    `json:"target" yaml:"target"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls the delay between a VU's iterations.
type PacingConfig struct {
	// Type: "none", "constant", "random"
	Type     string `json:"type" yaml:"type"`
	Duration Scalar `json:"duration,omitempty" yaml:"duration,omitempty"`
	Min      Scalar `json:"min,omitempty" yaml:"min,omitempty"`
	Max      Scalar `json:"max,omitempty" yaml:"max,omitempty"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	Name    string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is sent as is when it is a string and encoded as JSON otherwise.
	Body any `json:"body,omitempty" yaml:"body,omitempty"`

	Timeout   Scalar `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ThinkTime Scalar `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Trend receives the request duration.
	Trend string `json:"trend,omitempty" yaml:"trend,omitempty"`

	// Rate receives status == expectStatus.
	Rate *RateConfig `json:"rate,omitempty" yaml:"rate,omitempty"`

	Checks  []CheckConfig   `json:"checks,omitempty" yaml:"checks,omitempty"`
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// RateConfig feeds a custom rate from the response status.
type RateConfig struct {
	Metric       string `json:"metric" yaml:"metric"`
	ExpectStatus int    `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`
}

// CheckConfig defines a named assertion on a response.
type CheckConfig struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Type      string `json:"type" yaml:"type"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Value     Scalar `json:"value,omitempty" yaml:"value,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`

	// Schema is an inline JSON Schema document.
	Schema any `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// ExtractConfig defines how to extract variables from a response.
type ExtractConfig struct {
	Name   string `json:"name" yaml:"name"`
	Source string `json:"source" yaml:"source"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Regex  string `json:"regex,omitempty" yaml:"regex,omitempty"`
}

// ThresholdConfig is a threshold expression. It is written either as a
// bare string or as an object with options:
//
//	- p(95)<500
//	- threshold: rate>0.9
//	  abortOnFail: true
//	  delayAbortEval: 10s
type ThresholdConfig struct {
	Threshold      string `json:"threshold" yaml:"threshold"`
	AbortOnFail    bool   `json:"abortOnFail,omitempty" yaml:"abortOnFail,omitempty"`
	DelayAbortEval Scalar `json:"delayAbortEval,omitempty" yaml:"delayAbortEval,omitempty"`
	OnlyIfPresent  bool   `json:"onlyIfPresent,omitempty" yaml:"onlyIfPresent,omitempty"`
}

// thresholdObject breaks the UnmarshalYAML/UnmarshalJSON recursion.
type thresholdObject ThresholdConfig

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ThresholdConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = ThresholdConfig{Threshold: node.Value}
		return nil
	}
	var obj thresholdObject
	if err := node.Decode(&obj); err != nil {
		return err
	}
	*t = ThresholdConfig(obj)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ThresholdConfig) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = ThresholdConfig{Threshold: s}
		return nil
	}
	var obj thresholdObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*t = ThresholdConfig(obj)
	return nil
}

// SummaryConfig selects the end-of-test reports.
type SummaryConfig struct {
	Outputs []OutputConfig `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// OutputConfig is one rendered summary.
type OutputConfig struct {
	// Format is text, json or html.
	Format string `json:"format" yaml:"format"`

	// Path is a file path, "stdout" or "stderr". Defaults to stdout.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Colors overrides colour detection for text output.
	Colors *bool  `json:"colors,omitempty" yaml:"colors,omitempty"`
	Indent string `json:"indent,omitempty" yaml:"indent,omitempty"`
}

// Scalar is a string that also accepts YAML and JSON numbers and booleans,
// so `value: 200` and `duration: 30` need no quoting.
type Scalar string

// String returns s as a string.
func (s Scalar) String() string {
	return string(s)
}

// Duration parses s with ParseDurationString.
func (s Scalar) Duration() (time.Duration, error) {
	return ParseDurationString(string(s))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	if node.Tag == "!!null" {
		*s = ""
		return nil
	}
	*s = Scalar(node.Value)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null":
		*s = ""
	case strings.HasPrefix(raw, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case strings.HasPrefix(raw, "{"), strings.HasPrefix(raw, "["):
		return fmt.Errorf("expected a scalar value, got %s", raw)
	default:
		*s = Scalar(raw)
	}
	return nil
}
