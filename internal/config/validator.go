package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/httpscenario"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Has reports whether any error was recorded for field.
func (e *ValidationErrors) Has(field string) bool {
	for _, err := range e.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

var validFormats = map[string]bool{"text": true, "json": true, "html": true}

// Validate checks everything a run needs before any virtual user starts:
// the load profile, every request, threshold expressions against the
// metrics they name, and summary outputs. All problems are returned
// together as *ValidationErrors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateSettings(&c.Settings, errs)
	validateScenario(&c.Scenario, errs)
	validateRequests(c, errs)
	validateMetrics(c, errs)
	validateThresholds(c, errs)
	validateSummary(&c.Summary, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateSettings(s *Settings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %s", s.BaseURL))
		}
	}
	if _, err := s.Timeout.Duration(); err != nil {
		errs.Add("settings.timeout", err.Error())
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}

func validateScenario(sc *ScenarioConfig, errs *ValidationErrors) {
	const prefix = "scenario"

	switch sc.Executor {
	case "constant-vus":
		if sc.VUs <= 0 {
			errs.Add(prefix+".vus", "vus must be greater than 0")
		}
		if sc.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant-vus executor")
		} else if d, err := sc.Duration.Duration(); err != nil {
			errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
		} else if d <= 0 {
			errs.Add(prefix+".duration", "duration must be greater than 0")
		}
	case "ramping-vus":
		if len(sc.Stages) == 0 {
			errs.Add(prefix+".stages", "at least one stage is required for ramping-vus executor")
		}
		if sc.StartVUs < 0 {
			errs.Add(prefix+".startVUs", "startVUs cannot be negative")
		}
	case "":
		errs.Add(prefix+".executor", "executor type is required")
	default:
		errs.Add(prefix+".executor", fmt.Sprintf("unknown executor type: %s", sc.Executor))
	}

	for i, stage := range sc.Stages {
		validateStage(fmt.Sprintf("%s.stages[%d]", prefix, i), &stage, errs)
	}

	if sc.MaxVUs < 0 {
		errs.Add(prefix+".maxVUs", "maxVUs cannot be negative")
	}
	if _, err := sc.GracefulStop.Duration(); err != nil {
		errs.Add(prefix+".gracefulStop", fmt.Sprintf("invalid gracefulStop: %v", err))
	}
	if d, err := sc.TickInterval.Duration(); err != nil {
		errs.Add(prefix+".tickInterval", fmt.Sprintf("invalid tickInterval: %v", err))
	} else if d < 0 || d > executor.MaxTickInterval {
		errs.Add(prefix+".tickInterval", "tickInterval must be between 0 and 1s")
	}

	if sc.Pacing != nil {
		validatePacing(prefix+".pacing", sc.Pacing, errs)
	}
}

// validateStage validates a single stage configuration.
func validateStage(prefix string, stage *StageConfig, errs *ValidationErrors) {
	if stage.Duration == "" {
		errs.Add(prefix+".duration", "duration is required")
	} else if d, err := stage.Duration.Duration(); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	} else if d <= 0 {
		errs.Add(prefix+".duration", "duration must be greater than 0")
	}

	if stage.Target < 0 {
		errs.Add(prefix+".target", "target cannot be negative")
	}
}

// validatePacing validates pacing configuration.
func validatePacing(prefix string, pacing *PacingConfig, errs *ValidationErrors) {
	switch pacing.Type {
	case "none":
	case "constant":
		if pacing.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		} else if _, err := pacing.Duration.Duration(); err != nil {
			errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
		}
	case "random":
		minDur, minErr := pacing.Min.Duration()
		maxDur, maxErr := pacing.Max.Duration()
		if pacing.Min == "" {
			errs.Add(prefix+".min", "min is required for random pacing")
		} else if minErr != nil {
			errs.Add(prefix+".min", fmt.Sprintf("invalid min: %v", minErr))
		}
		if pacing.Max == "" {
			errs.Add(prefix+".max", "max is required for random pacing")
		} else if maxErr != nil {
			errs.Add(prefix+".max", fmt.Sprintf("invalid max: %v", maxErr))
		}
		if minErr == nil && maxErr == nil && minDur > maxDur {
			errs.Add(prefix, "min must be less than or equal to max")
		}
	default:
		errs.Add(prefix+".type", fmt.Sprintf("invalid pacing type: %s", pacing.Type))
	}
}

func validateRequests(c *TestConfig, errs *ValidationErrors) {
	requests := c.Scenario.Requests
	if len(requests) == 0 {
		errs.Add("scenario.requests", "at least one request is required")
		return
	}

	known := c.Vars()
	extracted := make(map[string]bool)
	for _, req := range requests {
		for _, x := range req.Extract {
			extracted[x.Name] = true
		}
	}

	for i, req := range requests {
		prefix := fmt.Sprintf("scenario.requests[%d]", i)

		method := strings.ToUpper(req.Method)
		if method == "" {
			errs.Add(prefix+".method", "method is required")
		} else if !validMethods[method] {
			errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", req.Method))
		}

		if req.URL == "" {
			errs.Add(prefix+".url", "url is required")
		} else {
			validateURL(prefix+".url", req.URL, known, extracted, errs)
		}

		if _, err := req.Timeout.Duration(); err != nil {
			errs.Add(prefix+".timeout", fmt.Sprintf("invalid timeout: %v", err))
		}
		if _, err := req.ThinkTime.Duration(); err != nil {
			errs.Add(prefix+".thinkTime", fmt.Sprintf("invalid thinkTime: %v", err))
		}
	}

	// Checks and extracts are compiled exactly as the run will compile them.
	// Unparseable durations were reported above.
	def, err := c.ScenarioDefinition()
	if err != nil {
		return
	}
	if err := httpscenario.Validate(def); err != nil {
		for _, e := range unjoin(err) {
			field, msg, found := strings.Cut(e.Error(), ": ")
			if !found {
				errs.Add("scenario.requests", e.Error())
				continue
			}
			if msg == "url is required" {
				continue
			}
			errs.Add("scenario."+field, msg)
		}
	}
}

// validateURL checks that url has a scheme and host once the variables the
// test defines are substituted. Placeholders filled from extracted values
// are only known at run time.
func validateURL(field, raw string, known map[string]string, extracted map[string]bool, errs *ValidationErrors) {
	resolved := ResolveVariables(raw, known)
	for _, name := range Placeholders(resolved) {
		if !extracted[name] {
			errs.Add(field, fmt.Sprintf("undefined variable {{%s}}", name))
			return
		}
		resolved = strings.ReplaceAll(resolved, "{{"+name+"}}", "placeholder")
	}

	u, err := url.Parse(resolved)
	if err != nil {
		errs.Add(field, fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme == "" || u.Host == "" {
		errs.Add(field, fmt.Sprintf("URL must be absolute: %s", raw))
	}
}

func validateMetrics(c *TestConfig, errs *ValidationErrors) {
	builtin := threshold.NewCatalog(metrics.CoreDefinitions()...)
	builtin.Add(metrics.HTTPDefinitions()...)

	for name, m := range c.Metrics {
		field := "metrics." + name
		if _, ok := builtin[name]; ok {
			errs.Add(field, "redeclares a built-in metric")
			continue
		}
		kind, err := metrics.ParseKind(m.Type)
		if err != nil {
			errs.Add(field+".type", err.Error())
			continue
		}
		if m.Time && kind != metrics.KindTrend {
			errs.Add(field+".time", "only trends can hold times")
		}
	}

	for i, req := range c.Scenario.Requests {
		prefix := fmt.Sprintf("scenario.requests[%d]", i)
		if req.Trend != "" {
			if m, ok := c.Metrics[req.Trend]; ok && m.Type != "trend" {
				errs.Add(prefix+".trend", fmt.Sprintf("metric %s is declared as %s", req.Trend, m.Type))
			}
		}
		if req.Rate != nil && req.Rate.Metric != "" {
			if m, ok := c.Metrics[req.Rate.Metric]; ok && m.Type != "rate" {
				errs.Add(prefix+".rate.metric", fmt.Sprintf("metric %s is declared as %s", req.Rate.Metric, m.Type))
			}
		}
	}
}

func validateThresholds(c *TestConfig, errs *ValidationErrors) {
	for name, list := range c.Thresholds {
		for i, th := range list {
			if _, err := th.DelayAbortEval.Duration(); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d].delayAbortEval", name, i), err.Error())
			}
		}
	}

	specs, err := c.ThresholdSpecs()
	if err != nil {
		return
	}
	catalog := threshold.NewCatalog(metrics.CoreDefinitions()...)
	catalog.Add(metrics.HTTPDefinitions()...)
	catalog.Add(c.MetricDefinitions()...)

	if _, err := threshold.ParseAll(specs, catalog); err != nil {
		for _, e := range unjoin(err) {
			var pe *threshold.ParseError
			if errors.As(e, &pe) && pe.Metric != "" {
				errs.Add("thresholds."+pe.Metric, e.Error())
				continue
			}
			errs.Add("thresholds", e.Error())
		}
	}
}

func validateSummary(s *SummaryConfig, errs *ValidationErrors) {
	for i, out := range s.Outputs {
		prefix := fmt.Sprintf("summary.outputs[%d]", i)
		if !validFormats[out.Format] {
			errs.Add(prefix+".format", fmt.Sprintf("unknown format: %s", out.Format))
		}
		if out.Format == "html" && (out.Path == "stdout" || out.Path == "stderr") {
			errs.Add(prefix+".path", "html output must be written to a file")
		}
	}
}

// unjoin splits an errors.Join result into its parts.
func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
