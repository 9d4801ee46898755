package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request represents an HTTP request
type Request struct {
	Method  string
	URL     string
	Headers map[string]string

	// Body is a string, []byte, io.Reader or a value encoded as JSON.
	Body any

	// Timeout overrides the client timeout when positive.
	Timeout time.Duration
}

// NewRequest creates a new HTTP request
func NewRequest(method, rawURL string) *Request {
	return &Request{
		Method:  method,
		URL:     rawURL,
		Headers: make(map[string]string),
	}
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// WithBody sets the body of the request
func (r *Request) WithBody(body any) *Request {
	r.Body = body
	return r
}

// Build constructs an http.Request bound to ctx.
func (r *Request) Build(ctx context.Context) (*http.Request, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", r.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host are required", r.URL)
	}

	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	contentType := ""
	switch body := r.Body.(type) {
	case nil:
	case string:
		if body != "" {
			bodyReader = strings.NewReader(body)
		}
	case []byte:
		bodyReader = bytes.NewReader(body)
	case io.Reader:
		bodyReader = body
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}
