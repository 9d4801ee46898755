package http

import (
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Proto      string
	Headers    http.Header
	Timing     TimingInfo

	body []byte
}

// NewResponse builds a response from parts, mainly for tests.
func NewResponse(status int, headers http.Header, body []byte) *Response {
	if headers == nil {
		headers = http.Header{}
	}
	return &Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Headers:    headers,
		body:       body,
	}
}

// Body returns the response body.
func (r *Response) Body() []byte {
	return r.body
}

// Size returns the number of body bytes received.
func (r *Response) Size() int64 {
	return int64(len(r.body))
}

// BodyAsJSON unmarshals the body into v.
func (r *Response) BodyAsJSON(v any) error {
	return json.Unmarshal(r.body, v)
}

// JSON looks up a gjson path in the body. It returns a result whose
// Exists is false when the body is not JSON or the path is absent.
func (r *Response) JSON(path string) gjson.Result {
	if !gjson.ValidBytes(r.body) {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.body, path)
}

// Header returns the value of the specified header
func (r *Response) Header(key string) string {
	return r.Headers.Get(key)
}

// IsSuccess returns true if the response status code is in the 2xx range
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Failed reports whether the status counts as a failed request (>= 400).
func (r *Response) Failed() bool {
	return r.StatusCode >= 400
}
