package http

import (
	"crypto/tls"
	"net/http/httptrace"
	"sync"
	"time"
)

// TimingInfo breaks a request into phases.
//
//	Blocked        waiting for a connection from the pool (includes DNS,
//	               connect and TLS for a new connection)
//	Connecting     TCP connect
//	TLSHandshaking TLS handshake
//	Sending        writing the request
//	Waiting        time to first response byte after the request was written
//	Receiving      reading the response body
//
// Duration is Sending+Waiting+Receiving, the time the server was involved.
type TimingInfo struct {
	Start time.Time
	End   time.Time

	Blocked        time.Duration
	DNSLookup      time.Duration
	Connecting     time.Duration
	TLSHandshaking time.Duration
	Sending        time.Duration
	Waiting        time.Duration
	Receiving      time.Duration

	ConnReused bool
}

// Duration returns the request time excluding connection setup.
func (t TimingInfo) Duration() time.Duration {
	return t.Sending + t.Waiting + t.Receiving
}

// Total returns the wall time of the whole request.
func (t TimingInfo) Total() time.Duration {
	if t.End.IsZero() {
		return 0
	}
	return t.End.Sub(t.Start)
}

// tracer collects httptrace callbacks. Callbacks may arrive from transport
// goroutines, so every field is guarded.
type tracer struct {
	mu sync.Mutex

	start        time.Time
	getConn      time.Time
	gotConn      time.Time
	dnsStart     time.Time
	dnsDone      time.Time
	connectStart time.Time
	connectDone  time.Time
	tlsStart     time.Time
	tlsDone      time.Time
	wroteRequest time.Time
	firstByte    time.Time
	reused       bool
}

func newTracer() *tracer {
	return &tracer{}
}

func (t *tracer) set(dst *time.Time) {
	now := time.Now()
	t.mu.Lock()
	if dst.IsZero() {
		*dst = now
	}
	t.mu.Unlock()
}

func (t *tracer) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) { t.set(&t.getConn) },
		GotConn: func(info httptrace.GotConnInfo) {
			t.set(&t.gotConn)
			t.mu.Lock()
			t.reused = info.Reused
			t.mu.Unlock()
		},
		DNSStart:     func(httptrace.DNSStartInfo) { t.set(&t.dnsStart) },
		DNSDone:      func(httptrace.DNSDoneInfo) { t.set(&t.dnsDone) },
		ConnectStart: func(string, string) { t.set(&t.connectStart) },
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				t.set(&t.connectDone)
			}
		},
		TLSHandshakeStart: func() { t.set(&t.tlsStart) },
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				t.set(&t.tlsDone)
			}
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.set(&t.wroteRequest) },
		GotFirstResponseByte: func() { t.set(&t.firstByte) },
	}
}

func span(from, to time.Time) time.Duration {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return 0
	}
	return to.Sub(from)
}

// finish converts the recorded points into phases. Missing points leave
// their phases at zero.
func (t *tracer) finish(end time.Time) TimingInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	ti := TimingInfo{
		Start:          t.start,
		End:            end,
		DNSLookup:      span(t.dnsStart, t.dnsDone),
		Connecting:     span(t.connectStart, t.connectDone),
		TLSHandshaking: span(t.tlsStart, t.tlsDone),
		ConnReused:     t.reused,
	}

	ti.Blocked = span(t.start, t.gotConn)
	ti.Sending = span(t.gotConn, t.wroteRequest)
	ti.Waiting = span(t.wroteRequest, t.firstByte)
	if !t.firstByte.IsZero() {
		ti.Receiving = span(t.firstByte, end)
	}
	return ti
}
