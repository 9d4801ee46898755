// Package httpscenario turns a declarative list of HTTP requests into a
// vu.Scenario. Each iteration sends the requests in order, records the
// http_req_* metrics, evaluates checks and stores extracted values in the
// virtual user's scope for later requests.
package httpscenario

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	httpclient "github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/ratelimit"
	"github.com/wesleyorama2/stampede/internal/vu"
)

// Definition is a named sequence of requests.
type Definition struct {
	Name string

	// Variables are substituted into {{name}} placeholders after the
	// virtual user's own values.
	Variables map[string]string

	// Headers are sent with every request unless the request sets them.
	Headers   map[string]string
	UserAgent string

	// MaxRPS caps the requests per second sent by all virtual users
	// together. Zero means no cap.
	MaxRPS float64

	Requests []Request
}

// Request is one step of an iteration.
type Request struct {
	Name    string
	Method  string
	URL     string
	Headers map[string]string
	Body    string

	// Timeout overrides the client timeout when positive.
	Timeout time.Duration

	// ThinkTime is slept after the request unless it is the last one.
	ThinkTime time.Duration

	// Trend names a time trend that receives the request duration.
	Trend string

	// Rate names a rate that receives status == ExpectStatus.
	Rate *RateMetric

	Checks  []Check
	Extract []Extract
}

// RateMetric adds one observation per request to a custom rate.
type RateMetric struct {
	Metric       string
	ExpectStatus int
}

// label names the request in errors and logs.
func (r Request) label() string {
	if r.Name != "" {
		return r.Name
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return strings.ToUpper(method) + " " + r.URL
}

// Options configures the shared transport.
type Options struct {
	Client httpclient.ClientConfig

	// HTTPClient replaces the pooled client built from Client.
	HTTPClient *http.Client

	Logger *zap.Logger

	// Trace, when set, sees every request sent and what came back. It is
	// called from VU goroutines.
	Trace TraceFunc
}

// TraceFunc observes one request. resp is nil when nothing was sent.
type TraceFunc func(req *httpclient.Request, resp *httpclient.Response, err error)

// Scenario runs a Definition. It is safe for concurrent use by every
// virtual user of a run.
type Scenario struct {
	name     string
	vars     map[string]string
	client   *httpclient.Client
	requests []*compiledRequest
	logger   *zap.Logger
	trace    TraceFunc
	limiter  *ratelimit.LeakyBucket
}

type compiledRequest struct {
	Request
	checks   []*compiledCheck
	extracts []*compiledExtract
}

// New compiles def. Every invalid check or extract is reported.
func New(def Definition, opts Options) (*Scenario, error) {
	requests, err := compile(def)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var clientOpts []httpclient.ClientOption
	for key, value := range def.Headers {
		clientOpts = append(clientOpts, httpclient.WithHeader(key, value))
	}
	if def.UserAgent != "" {
		clientOpts = append(clientOpts, httpclient.WithUserAgent(def.UserAgent))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, httpclient.WithHTTPClient(opts.HTTPClient))
	}

	s := &Scenario{
		name:     def.Name,
		vars:     def.Variables,
		client:   httpclient.NewClient(opts.Client, clientOpts...),
		requests: requests,
		logger:   opts.Logger,
		trace:    opts.Trace,
	}
	if def.MaxRPS > 0 {
		s.limiter = ratelimit.NewLeakyBucket(def.MaxRPS)
	}
	return s, nil
}

// Validate reports every problem New would reject def for, without
// building a client.
func Validate(def Definition) error {
	_, err := compile(def)
	return err
}

func compile(def Definition) ([]*compiledRequest, error) {
	if len(def.Requests) == 0 {
		return nil, errors.New("scenario has no requests")
	}
	if def.MaxRPS < 0 {
		return nil, fmt.Errorf("maxRPS must not be negative, got %g", def.MaxRPS)
	}

	var errs []error
	requests := make([]*compiledRequest, 0, len(def.Requests))
	for i, req := range def.Requests {
		cr := &compiledRequest{Request: req}
		if strings.TrimSpace(req.URL) == "" {
			errs = append(errs, fmt.Errorf("requests[%d]: url is required", i))
		}
		if req.Rate != nil && req.Rate.Metric == "" {
			errs = append(errs, fmt.Errorf("requests[%d].rate: metric is required", i))
		}
		for j, c := range req.Checks {
			cc, err := compileCheck(c)
			if err != nil {
				errs = append(errs, fmt.Errorf("requests[%d].checks[%d]: %w", i, j, err))
				continue
			}
			cr.checks = append(cr.checks, cc)
		}
		for j, x := range req.Extract {
			cx, err := compileExtract(x)
			if err != nil {
				errs = append(errs, fmt.Errorf("requests[%d].extract[%d]: %w", i, j, err))
				continue
			}
			cr.extracts = append(cr.extracts, cx)
		}
		requests = append(requests, cr)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return requests, nil
}

// Name returns the definition name.
func (s *Scenario) Name() string {
	return s.name
}

// Close releases idle pooled connections.
func (s *Scenario) Close() {
	s.client.CloseIdleConnections()
}

// MetricDefinitions returns the HTTP metrics plus the custom trends and
// rates the requests record into.
func (s *Scenario) MetricDefinitions() []metrics.Definition {
	defs := metrics.HTTPDefinitions()
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		seen[d.Name] = true
	}
	for _, req := range s.requests {
		if req.Trend != "" && !seen[req.Trend] {
			seen[req.Trend] = true
			defs = append(defs, metrics.Definition{Name: req.Trend, Kind: metrics.KindTrend, ValueType: metrics.Time})
		}
		if req.Rate != nil && !seen[req.Rate.Metric] {
			seen[req.Rate.Metric] = true
			defs = append(defs, metrics.Definition{Name: req.Rate.Metric, Kind: metrics.KindRate})
		}
	}
	return defs
}

// Run executes one iteration. A transport error ends the iteration after
// its metrics are recorded; failed checks do not.
func (s *Scenario) Run(ctx context.Context, st *vu.State) error {
	for i, req := range s.requests {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.do(ctx, st, req); err != nil {
			return err
		}
		if req.ThinkTime > 0 && i < len(s.requests)-1 {
			if err := sleep(ctx, req.ThinkTime); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scenario) do(ctx context.Context, st *vu.State, req *compiledRequest) error {
	vars := st.Vars()
	hreq := httpclient.NewRequest(req.Method, s.resolve(req.URL, vars))
	for key, value := range req.Headers {
		hreq.WithHeader(key, s.resolve(value, vars))
	}
	if req.Body != "" {
		hreq.WithBody(s.resolve(req.Body, vars))
	}
	hreq.Timeout = req.Timeout

	// The wait for a slot is not part of the request timings.
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := s.client.Do(ctx, hreq)
	if s.trace != nil {
		s.trace(hreq, resp, err)
	}
	if resp == nil {
		return fmt.Errorf("request %s: %w", req.label(), err)
	}
	record(st.Metrics, req, resp, err)
	if err != nil {
		s.logger.Debug("request failed",
			zap.String("request", req.label()),
			zap.Int("vu", st.VUID),
			zap.Error(err))
		return fmt.Errorf("request %s: %w", req.label(), err)
	}

	for _, c := range req.checks {
		st.Check(c.name, c.eval(resp))
	}
	for _, x := range req.extracts {
		if value, ok := x.apply(resp); ok {
			st.Set(x.Name, value)
		}
	}
	return nil
}

func record(c *metrics.Collector, req *compiledRequest, resp *httpclient.Response, err error) {
	t := resp.Timing
	failed := err != nil || resp.Failed()

	c.Record(metrics.HTTPReqs, metrics.KindCounter, 1)
	c.Record(metrics.HTTPReqFailed, metrics.KindRate, boolValue(failed))
	if req.Rate != nil {
		c.Record(req.Rate.Metric, metrics.KindRate, boolValue(err == nil && resp.StatusCode == req.Rate.ExpectStatus))
	}
	if err != nil {
		return
	}

	c.Record(metrics.HTTPReqDuration, metrics.KindTrend, metrics.DurationMillis(t.Duration()))
	c.Record(metrics.HTTPReqBlocked, metrics.KindTrend, metrics.DurationMillis(t.Blocked))
	c.Record(metrics.HTTPReqConnecting, metrics.KindTrend, metrics.DurationMillis(t.Connecting))
	c.Record(metrics.HTTPReqTLSHandshaking, metrics.KindTrend, metrics.DurationMillis(t.TLSHandshaking))
	c.Record(metrics.HTTPReqSending, metrics.KindTrend, metrics.DurationMillis(t.Sending))
	c.Record(metrics.HTTPReqWaiting, metrics.KindTrend, metrics.DurationMillis(t.Waiting))
	c.Record(metrics.HTTPReqReceiving, metrics.KindTrend, metrics.DurationMillis(t.Receiving))
	c.Record(metrics.DataReceived, metrics.KindCounter, float64(resp.Size()))
	if req.Trend != "" {
		c.Record(req.Trend, metrics.KindTrend, metrics.DurationMillis(t.Duration()))
	}
}

func boolValue(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// resolve replaces {{name}} with the virtual user's value, then the
// scenario variable. Unknown placeholders are left in place.
func (s *Scenario) resolve(input string, vars map[string]any) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	return placeholder.ReplaceAllStringFunc(input, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return fmt.Sprint(v)
		}
		if v, ok := s.vars[name]; ok {
			return v
		}
		return m
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
