package httpscenario

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "github.com/wesleyorama2/stampede/internal/http"
)

func TestCheck_Eval(t *testing.T) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json; charset=utf-8")
	headers.Set("X-Ratelimit-Remaining", "42")
	body := []byte(`{"bitcoin":{"usd":64000.5},"ethereum":{"usd":null},"tags":["spot","perp"]}`)

	resp := httpclient.NewResponse(200, headers, body)
	resp.Timing.Waiting = 120 * time.Millisecond

	tests := []struct {
		name  string
		check Check
		want  bool
	}{
		{"status default eq", Check{Type: "status", Value: "200"}, true},
		{"status ne", Check{Type: "status", Condition: "ne", Value: "200"}, false},
		{"status lt", Check{Type: "status", Condition: "lt", Value: "400"}, true},
		{"header exists", Check{Type: "header", Path: "Content-Type"}, true},
		{"header missing", Check{Type: "header", Path: "X-Missing"}, false},
		{"header missing ne", Check{Type: "header", Path: "X-Missing", Condition: "ne", Value: "x"}, true},
		{"header contains", Check{Type: "header", Path: "content-type", Condition: "contains", Value: "json"}, true},
		{"header numeric gte", Check{Type: "header", Path: "X-Ratelimit-Remaining", Condition: "gte", Value: "10"}, true},
		{"header matches", Check{Type: "header", Path: "Content-Type", Condition: "matches", Value: `^application/\w+`}, true},
		{"body default contains", Check{Type: "body", Value: "bitcoin"}, true},
		{"body contains miss", Check{Type: "body", Value: "dogecoin"}, false},
		{"body exists", Check{Type: "body", Condition: "exists"}, true},
		{"json exists", Check{Type: "json", Path: "bitcoin.usd"}, true},
		{"jsonpath exists", Check{Type: "json", Path: "$.bitcoin.usd"}, true},
		{"json null exists", Check{Type: "json", Path: "ethereum.usd"}, true},
		{"json absent", Check{Type: "json", Path: "dogecoin.usd"}, false},
		{"json gt", Check{Type: "json", Path: "bitcoin.usd", Condition: "gt", Value: "1000"}, true},
		{"json eq number", Check{Type: "json", Path: "bitcoin.usd", Value: "64000.50"}, true},
		{"json eq string", Check{Type: "json", Path: "tags.0", Value: "spot"}, true},
		{"json gt on string", Check{Type: "json", Path: "tags.0", Condition: "gt", Value: "1"}, false},
		{"json absent ne", Check{Type: "json", Path: "nope", Condition: "ne", Value: "1"}, true},
		{"duration default lt", Check{Type: "duration", Value: "500ms"}, true},
		{"duration bare millis", Check{Type: "duration", Condition: "gt", Value: "100"}, true},
		{"duration too slow", Check{Type: "duration", Value: "0.1s"}, false},
		{"schema", Check{Type: "schema", Schema: `{"type":"object","required":["bitcoin"]}`}, true},
		{"schema miss", Check{Type: "schema", Schema: `{"type":"object","required":["dogecoin"]}`}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, err := compileCheck(tt.check)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cc.eval(resp))
		})
	}
}

func TestCheck_JSONOnNonJSONBody(t *testing.T) {
	cc, err := compileCheck(Check{Type: "json", Path: "bitcoin"})
	require.NoError(t, err)
	assert.False(t, cc.eval(httpclient.NewResponse(200, nil, []byte("<html>"))))

	cc, err = compileCheck(Check{Type: "schema", Schema: `{"type":"object"}`})
	require.NoError(t, err)
	assert.False(t, cc.eval(httpclient.NewResponse(200, nil, []byte("<html>"))))
}

func TestCheck_DefaultNames(t *testing.T) {
	tests := []struct {
		check Check
		want  string
	}{
		{Check{Type: "status", Value: "200"}, "status is 200"},
		{Check{Type: "json", Path: "bitcoin.usd"}, "bitcoin.usd exists"},
		{Check{Type: "header", Path: "ETag", Condition: "ne", Value: "x"}, "header ETag is not x"},
		{Check{Type: "duration", Value: "1s"}, "duration < 1s"},
		{Check{Type: "schema", Schema: `{}`}, "body matches schema"},
		{Check{Name: "custom", Type: "body", Value: "ok"}, "custom"},
	}

	for _, tt := range tests {
		cc, err := compileCheck(tt.check)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cc.name)
	}
}

func TestCompileCheck_Errors(t *testing.T) {
	tests := []struct {
		name  string
		check Check
		want  string
	}{
		{"missing type", Check{}, "check type is required"},
		{"unknown condition", Check{Type: "status", Condition: "approx", Value: "200"}, "unknown condition"},
		{"exists on status", Check{Type: "status", Condition: "exists"}, "does not apply"},
		{"missing value", Check{Type: "status"}, "requires a value"},
		{"bad duration", Check{Type: "duration", Value: "fast"}, "invalid duration"},
		{"empty schema", Check{Type: "schema"}, "requires a schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileCheck(tt.check)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtract_Apply(t *testing.T) {
	headers := http.Header{}
	headers.Set("Location", "/orders/981")
	resp := httpclient.NewResponse(201, headers, []byte(`{"order":{"id":981,"items":[{"sku":"A1"}]}}`))

	tests := []struct {
		name   string
		x      Extract
		want   string
		wantOK bool
	}{
		{"status", Extract{Name: "s", Source: "status"}, "201", true},
		{"header", Extract{Name: "h", Source: "header", Path: "Location"}, "/orders/981", true},
		{"header regex group", Extract{Name: "h", Source: "header", Path: "Location", Regex: `/orders/(\d+)`}, "981", true},
		{"json", Extract{Name: "j", Source: "json", Path: "$.order.items[0].sku"}, "A1", true},
		{"json missing", Extract{Name: "j", Source: "json", Path: "$.order.total"}, "", false},
		{"body regex whole match", Extract{Name: "b", Source: "body", Regex: `"sku":"\w+"`}, `"sku":"A1"`, true},
		{"body regex miss", Extract{Name: "b", Source: "body", Regex: `token=\w+`}, "", false},
		{"missing header", Extract{Name: "h", Source: "header", Path: "ETag"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cx, err := compileExtract(tt.x)
			require.NoError(t, err)
			got, ok := cx.apply(resp)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
