package httpscenario

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	httpclient "github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/pkg/jsonpath"
	"github.com/wesleyorama2/stampede/pkg/jsonschema"
)

// Check types.
const (
	CheckStatus   = "status"
	CheckHeader   = "header"
	CheckBody     = "body"
	CheckJSON     = "json"
	CheckDuration = "duration"
	CheckSchema   = "schema"
)

// Check conditions.
const (
	CondExists   = "exists"
	CondEq       = "eq"
	CondNe       = "ne"
	CondGt       = "gt"
	CondLt       = "lt"
	CondGte      = "gte"
	CondLte      = "lte"
	CondContains = "contains"
	CondMatches  = "matches"
)

// Check is a named assertion on a response. Failed checks are recorded in
// the checks rate and never fail the iteration.
//
// Path is the header name for header checks and a JSONPath or gjson path
// for json checks. Value is compared as a number when both sides parse as
// one. Duration values take a unit ("500ms") or are milliseconds.
type Check struct {
	Name      string
	Type      string
	Condition string
	Value     string
	Path      string

	// Schema is a JSON Schema document the body must satisfy.
	Schema string
}

type compiledCheck struct {
	Check
	name   string
	num    float64
	isNum  bool
	re     *regexp.Regexp
	schema *jsonschema.Schema
}

var conditionWords = map[string]string{
	CondExists:   "exists",
	CondEq:       "is",
	CondNe:       "is not",
	CondGt:       ">",
	CondLt:       "<",
	CondGte:      ">=",
	CondLte:      "<=",
	CondContains: "contains",
	CondMatches:  "matches",
}

func numericCondition(cond string) bool {
	switch cond {
	case CondGt, CondLt, CondGte, CondLte:
		return true
	}
	return false
}

func defaultCondition(typ, value string) string {
	switch typ {
	case CheckBody:
		return CondContains
	case CheckDuration:
		return CondLt
	case CheckHeader, CheckJSON:
		if value == "" {
			return CondExists
		}
	}
	return CondEq
}

func compileCheck(c Check) (*compiledCheck, error) {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	c.Condition = strings.ToLower(strings.TrimSpace(c.Condition))
	if c.Condition == "" {
		c.Condition = defaultCondition(c.Type, c.Value)
	}
	cc := &compiledCheck{Check: c}

	switch c.Type {
	case CheckStatus, CheckBody:
	case CheckHeader, CheckJSON:
		if c.Path == "" {
			return nil, fmt.Errorf("%s check requires a path", c.Type)
		}
	case CheckDuration:
		ms, err := parseMillis(c.Value)
		if err != nil {
			return nil, fmt.Errorf("duration check: %w", err)
		}
		cc.num, cc.isNum = ms, true
	case CheckSchema:
		if strings.TrimSpace(c.Schema) == "" {
			return nil, fmt.Errorf("schema check requires a schema")
		}
		s, err := jsonschema.Compile("check.json", []byte(c.Schema))
		if err != nil {
			return nil, err
		}
		cc.schema = s
		cc.name = c.Name
		if cc.name == "" {
			cc.name = "body matches schema"
		}
		return cc, nil
	case "":
		return nil, fmt.Errorf("check type is required")
	default:
		return nil, fmt.Errorf("unknown check type %q", c.Type)
	}

	if _, ok := conditionWords[c.Condition]; !ok {
		return nil, fmt.Errorf("unknown condition %q", c.Condition)
	}
	if c.Condition == CondExists && (c.Type == CheckStatus || c.Type == CheckDuration) {
		return nil, fmt.Errorf("condition exists does not apply to %s checks", c.Type)
	}
	if c.Condition != CondExists && c.Value == "" && c.Type != CheckBody {
		return nil, fmt.Errorf("condition %s requires a value", c.Condition)
	}

	if c.Type != CheckDuration {
		if f, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64); err == nil {
			cc.num, cc.isNum = f, true
		}
	}
	if numericCondition(c.Condition) && !cc.isNum {
		return nil, fmt.Errorf("condition %s requires a numeric value, got %q", c.Condition, c.Value)
	}
	if c.Condition == CondMatches {
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", c.Value, err)
		}
		cc.re = re
	}

	cc.name = c.Name
	if cc.name == "" {
		cc.name = cc.defaultName()
	}
	return cc, nil
}

// defaultName reads like the assertion, e.g. "status is 200" or
// "bitcoin.usd exists".
func (c *compiledCheck) defaultName() string {
	var subject string
	switch c.Type {
	case CheckHeader:
		subject = "header " + c.Path
	case CheckJSON:
		subject = c.Path
	default:
		subject = c.Type
	}
	if c.Condition == CondExists {
		return subject + " exists"
	}
	return subject + " " + conditionWords[c.Condition] + " " + c.Value
}

// eval applies the check to resp.
func (c *compiledCheck) eval(resp *httpclient.Response) bool {
	switch c.Type {
	case CheckStatus:
		return c.compare(strconv.Itoa(resp.StatusCode), float64(resp.StatusCode), true)

	case CheckHeader:
		values := resp.Headers.Values(c.Path)
		if c.Condition == CondExists {
			return len(values) > 0
		}
		if len(values) == 0 {
			return c.Condition == CondNe
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(values[0]), 64)
		return c.compare(values[0], f, err == nil)

	case CheckBody:
		body := string(resp.Body())
		if c.Condition == CondExists {
			return body != ""
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(body), 64)
		return c.compare(body, f, err == nil)

	case CheckJSON:
		if !gjson.ValidBytes(resp.Body()) {
			return false
		}
		r := jsonpath.Lookup(resp.Body(), c.Path)
		if c.Condition == CondExists {
			return r.Exists()
		}
		if !r.Exists() {
			return c.Condition == CondNe
		}
		return c.compare(r.String(), r.Float(), r.Type == gjson.Number)

	case CheckDuration:
		ms := metrics.DurationMillis(resp.Timing.Duration())
		return c.compare(strconv.FormatFloat(ms, 'f', -1, 64), ms, true)

	case CheckSchema:
		return c.schema.ValidateJSON(resp.Body()) == nil
	}
	return false
}

// compare applies the condition to an actual value. Numeric comparison is
// used when both sides are numbers.
func (c *compiledCheck) compare(actual string, actualNum float64, actualIsNum bool) bool {
	numeric := actualIsNum && c.isNum
	switch c.Condition {
	case CondEq:
		if numeric {
			return actualNum == c.num
		}
		return actual == c.Value
	case CondNe:
		if numeric {
			return actualNum != c.num
		}
		return actual != c.Value
	case CondGt:
		return numeric && actualNum > c.num
	case CondLt:
		return numeric && actualNum < c.num
	case CondGte:
		return numeric && actualNum >= c.num
	case CondLte:
		return numeric && actualNum <= c.num
	case CondContains:
		return strings.Contains(actual, c.Value)
	case CondMatches:
		return c.re.MatchString(actual)
	}
	return false
}

// parseMillis reads "250ms", "1.5s" or a bare number of milliseconds.
func parseMillis(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("value is required")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return metrics.DurationMillis(d), nil
}
