// Package http is the load-generating HTTP transport: one pooled client
// shared by every virtual user, with per-request phase timings captured
// through net/http/httptrace.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// ClientConfig configures the shared connection pool.
type ClientConfig struct {
	// Timeout bounds a whole request, body included.
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits total connections per host. Zero means no
	// limit.
	MaxConnsPerHost int

	IdleConnTimeout    time.Duration
	DisableKeepAlives  bool
	DisableCompression bool
	InsecureSkipVerify bool

	// MaxBodyBytes caps how much of a response body is kept. Zero keeps
	// everything.
	MaxBodyBytes int64
}

// DefaultClientConfig returns pool settings sized for load generation.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Client sends requests through a shared transport.
type Client struct {
	httpClient *http.Client
	config     ClientConfig
	headers    map[string]string
	userAgent  string
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a client with its own transport.
func NewClient(cfg ClientConfig, options ...ClientOption) *Client {
	def := DefaultClientConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableCompression:  cfg.DisableCompression,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config:  cfg,
		headers: make(map[string]string),
	}

	for _, option := range options {
		option(client)
	}
	return client
}

// WithHeader adds a header sent with every request unless the request
// sets it.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithUserAgent sets the default User-Agent.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient replaces the underlying client, e.g. an httptest
// server's client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Do sends req and reads the whole response body. A non-nil error means
// no response was received; the returned Response still carries the
// timings observed before the failure.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := req.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}
	if c.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	tr := newTracer()
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), tr.trace()))

	resp := &Response{}
	tr.start = time.Now()

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		resp.Timing = tr.finish(time.Now())
		return resp, err
	}
	defer httpResp.Body.Close()

	var body io.Reader = httpResp.Body
	if c.config.MaxBodyBytes > 0 {
		body = io.LimitReader(body, c.config.MaxBodyBytes)
	}
	raw, readErr := io.ReadAll(body)
	end := time.Now()

	resp.StatusCode = httpResp.StatusCode
	resp.Status = httpResp.Status
	resp.Headers = httpResp.Header
	resp.Proto = httpResp.Proto
	resp.body = raw
	resp.Timing = tr.finish(end)

	if readErr != nil {
		return resp, fmt.Errorf("failed to read response body: %w", readErr)
	}
	return resp, nil
}
