package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	httpclient "github.com/wesleyorama2/stampede/internal/http"
)

// HTTPDebug dumps every request and response of a run. Its Trace method
// fits httpscenario.Options.Trace.
type HTTPDebug struct {
	// Full adds timings and bodies to the dump.
	Full bool

	mu     sync.Mutex
	w      io.Writer
	colors *ColorScheme
}

// NewHTTPDebug writes dumps to w.
func NewHTTPDebug(w io.Writer, full, noColor bool) *HTTPDebug {
	colors := DefaultColorScheme()
	if noColor || !isTerminal(w) || !supportsColors() {
		colors = NoColorScheme()
	}
	return &HTTPDebug{Full: full, w: w, colors: colors}
}

// Trace writes one exchange. Concurrent exchanges are never interleaved.
func (d *HTTPDebug) Trace(req *httpclient.Request, resp *httpclient.Response, err error) {
	var buf strings.Builder
	d.formatRequest(&buf, req)
	if err != nil {
		fmt.Fprintf(&buf, "%s ERROR: %v\n", d.colors.Error.Sprint("◀"), err)
	}
	if resp != nil && resp.StatusCode != 0 {
		d.formatResponse(&buf, resp)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	io.WriteString(d.w, buf.String())
}

func (d *HTTPDebug) formatRequest(buf *strings.Builder, req *httpclient.Request) {
	fmt.Fprintf(buf, "▶ REQUEST: %s %s\n", d.colors.Method.Sprint(req.Method), req.URL)
	d.formatHeaders(buf, req.Headers)

	if req.Body == nil || !d.Full {
		return
	}
	buf.WriteString("  Body: ")
	switch body := req.Body.(type) {
	case string:
		buf.WriteString(formatJSONString(body))
	case []byte:
		buf.WriteString(formatJSONString(string(body)))
	case io.Reader:
		buf.WriteString("<stream>")
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintf(buf, "%v", body)
		} else {
			buf.WriteString(formatJSONString(string(encoded)))
		}
	}
	buf.WriteString("\n")
}

func (d *HTTPDebug) formatResponse(buf *strings.Builder, resp *httpclient.Response) {
	t := resp.Timing
	fmt.Fprintf(buf, "◀ RESPONSE: %s %s (%s)\n",
		resp.Proto,
		d.colors.Status(resp.StatusCode).Sprint(resp.Status),
		formatDuration(t.Duration()))

	if d.Full {
		buf.WriteString("  Timing:\n")
		for _, row := range []struct {
			label string
			value time.Duration
		}{
			{"Blocked", t.Blocked},
			{"DNS Lookup", t.DNSLookup},
			{"TCP Connection", t.Connecting},
			{"TLS Handshake", t.TLSHandshaking},
			{"Sending", t.Sending},
			{"Waiting", t.Waiting},
			{"Receiving", t.Receiving},
			{"Total", t.Total()},
		} {
			fmt.Fprintf(buf, "    %-16s%s\n", row.label+":", formatDuration(row.value))
		}
	}

	flat := make(map[string]string, len(resp.Headers))
	for key, values := range resp.Headers {
		flat[key] = strings.Join(values, ", ")
	}
	d.formatHeaders(buf, flat)

	if d.Full && resp.Size() > 0 {
		buf.WriteString("  Body:\n")
		buf.WriteString(formatJSONString(string(resp.Body())))
		buf.WriteString("\n")
	}
}

func (d *HTTPDebug) formatHeaders(buf *strings.Builder, headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	buf.WriteString("  Headers:\n")
	for _, key := range keys {
		fmt.Fprintf(buf, "    %s: %s\n", d.colors.HeaderKey.Sprint(key), headers[key])
	}
}

// formatJSONString attempts to pretty-print a JSON string
func formatJSONString(s string) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(s), "  ", "  "); err != nil {
		return s
	}
	return pretty.String()
}
