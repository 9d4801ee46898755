package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/wesleyorama2/stampede/internal/executor"
	httpclient "github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/httpscenario"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/threshold"
	"github.com/wesleyorama2/stampede/internal/vu"
)

// The conversions below assume Validate has passed; they still return
// errors for values that cannot be converted.

// ExecutorConfig converts the scenario load profile.
func (c *TestConfig) ExecutorConfig() (*executor.Config, error) {
	sc := &c.Scenario
	cfg := &executor.Config{
		Name:     c.Name,
		Type:     executor.Type(sc.Executor),
		VUs:      sc.VUs,
		StartVUs: sc.StartVUs,
		MaxVUs:   sc.MaxVUs,
	}

	var err error
	if cfg.Duration, err = sc.Duration.Duration(); err != nil {
		return nil, fmt.Errorf("invalid duration: %w", err)
	}
	if cfg.GracefulStop, err = sc.GracefulStop.Duration(); err != nil {
		return nil, fmt.Errorf("invalid gracefulStop: %w", err)
	}
	if sc.GracefulStop == "" {
		cfg.GracefulStop = executor.DefaultGracefulStop
	}
	if cfg.TickInterval, err = sc.TickInterval.Duration(); err != nil {
		return nil, fmt.Errorf("invalid tickInterval: %w", err)
	}

	for i, stage := range sc.Stages {
		d, err := stage.Duration.Duration()
		if err != nil {
			return nil, fmt.Errorf("invalid stages[%d] duration: %w", i, err)
		}
		cfg.Stages = append(cfg.Stages, executor.Stage{
			Duration: d,
			Target:   stage.Target,
			Name:     stage.Name,
		})
	}

	if p := sc.Pacing; p != nil {
		pacing := &vu.Pacing{Type: vu.PacingType(p.Type)}
		if pacing.Duration, err = p.Duration.Duration(); err != nil {
			return nil, fmt.Errorf("invalid pacing duration: %w", err)
		}
		if pacing.Min, err = p.Min.Duration(); err != nil {
			return nil, fmt.Errorf("invalid pacing min: %w", err)
		}
		if pacing.Max, err = p.Max.Duration(); err != nil {
			return nil, fmt.Errorf("invalid pacing max: %w", err)
		}
		cfg.Pacing = pacing
	}

	return cfg, nil
}

// ThresholdSpecs converts the thresholds section.
func (c *TestConfig) ThresholdSpecs() (map[string][]threshold.Spec, error) {
	if len(c.Thresholds) == 0 {
		return nil, nil
	}
	specs := make(map[string][]threshold.Spec, len(c.Thresholds))
	for name, list := range c.Thresholds {
		for i, th := range list {
			delay, err := th.DelayAbortEval.Duration()
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s[%d]: invalid delayAbortEval: %w", name, i, err)
			}
			specs[name] = append(specs[name], threshold.Spec{
				Expression:     th.Threshold,
				AbortOnFail:    th.AbortOnFail,
				DelayAbortEval: delay,
				OnlyIfPresent:  th.OnlyIfPresent,
			})
		}
	}
	return specs, nil
}

// MetricDefinitions returns the custom metrics: those declared in the
// metrics section plus the trends and rates requests record into. Entries
// are sorted by name.
func (c *TestConfig) MetricDefinitions() []metrics.Definition {
	byName := make(map[string]metrics.Definition)
	for _, req := range c.Scenario.Requests {
		if req.Trend != "" {
			byName[req.Trend] = metrics.Definition{Name: req.Trend, Kind: metrics.KindTrend, ValueType: metrics.Time}
		}
		if req.Rate != nil && req.Rate.Metric != "" {
			byName[req.Rate.Metric] = metrics.Definition{Name: req.Rate.Metric, Kind: metrics.KindRate}
		}
	}
	for name, m := range c.Metrics {
		kind, err := metrics.ParseKind(m.Type)
		if err != nil {
			continue
		}
		def := metrics.Definition{Name: name, Kind: kind}
		if m.Time {
			def.ValueType = metrics.Time
		}
		byName[name] = def
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]metrics.Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, byName[name])
	}
	return defs
}

// ClientConfig converts the transport settings.
func (c *TestConfig) ClientConfig() (httpclient.ClientConfig, error) {
	cfg := httpclient.DefaultClientConfig()
	timeout, err := c.Settings.Timeout.Duration()
	if err != nil {
		return cfg, fmt.Errorf("invalid settings.timeout: %w", err)
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if c.Settings.MaxIdleConnsPerHost > 0 {
		cfg.MaxIdleConnsPerHost = c.Settings.MaxIdleConnsPerHost
	}
	cfg.MaxConnsPerHost = c.Settings.MaxConnectionsPerHost
	cfg.InsecureSkipVerify = c.Settings.InsecureSkipVerify
	return cfg, nil
}

// ScenarioDefinition converts the requests into an HTTP scenario.
func (c *TestConfig) ScenarioDefinition() (httpscenario.Definition, error) {
	def := httpscenario.Definition{
		Name:      c.Name,
		Variables: c.Vars(),
		Headers:   c.Settings.Headers,
		UserAgent: c.Settings.UserAgent,
		MaxRPS:    c.Settings.MaxRPS,
	}

	for i, rc := range c.Scenario.Requests {
		req := httpscenario.Request{
			Name:    rc.Name,
			Method:  rc.Method,
			URL:     rc.URL,
			Headers: rc.Headers,
			Trend:   rc.Trend,
		}

		var err error
		if req.Timeout, err = rc.Timeout.Duration(); err != nil {
			return def, fmt.Errorf("requests[%d]: invalid timeout: %w", i, err)
		}
		if req.ThinkTime, err = rc.ThinkTime.Duration(); err != nil {
			return def, fmt.Errorf("requests[%d]: invalid thinkTime: %w", i, err)
		}
		if req.Body, err = encodeBody(rc.Body); err != nil {
			return def, fmt.Errorf("requests[%d]: invalid body: %w", i, err)
		}
		if _, isString := rc.Body.(string); rc.Body != nil && !isString && !hasHeader(rc.Headers, "Content-Type") {
			req.Headers = make(map[string]string, len(rc.Headers)+1)
			for k, v := range rc.Headers {
				req.Headers[k] = v
			}
			req.Headers["Content-Type"] = "application/json"
		}
		if rc.Rate != nil {
			req.Rate = &httpscenario.RateMetric{Metric: rc.Rate.Metric, ExpectStatus: rc.Rate.ExpectStatus}
		}

		for j, cc := range rc.Checks {
			check := httpscenario.Check{
				Name:      cc.Name,
				Type:      cc.Type,
				Condition: cc.Condition,
				Value:     cc.Value.String(),
				Path:      cc.Path,
			}
			if cc.Schema != nil {
				doc, err := json.Marshal(cc.Schema)
				if err != nil {
					return def, fmt.Errorf("requests[%d].checks[%d]: invalid schema: %w", i, j, err)
				}
				check.Schema = string(doc)
			}
			req.Checks = append(req.Checks, check)
		}
		for _, xc := range rc.Extract {
			req.Extract = append(req.Extract, httpscenario.Extract{
				Name:   xc.Name,
				Source: xc.Source,
				Path:   xc.Path,
				Regex:  xc.Regex,
			})
		}

		def.Requests = append(def.Requests, req)
	}
	return def, nil
}

func encodeBody(body any) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		return b, nil
	default:
		doc, err := json.Marshal(b)
		if err != nil {
			return "", err
		}
		return string(doc), nil
	}
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
