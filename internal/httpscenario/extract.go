package httpscenario

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	httpclient "github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/pkg/jsonpath"
)

// Extract stores part of a response in the virtual user's scope under
// Name, where later requests can reference it as {{Name}}.
//
//	source: status        the status code
//	source: header        the header named by Path
//	source: json          the JSONPath or gjson Path in the body
//	source: body          the body, or the first group of Regex
type Extract struct {
	Name   string
	Source string
	Path   string
	Regex  string
}

type compiledExtract struct {
	Extract
	re *regexp.Regexp
}

func compileExtract(x Extract) (*compiledExtract, error) {
	if x.Name == "" {
		return nil, fmt.Errorf("extract name is required")
	}
	x.Source = strings.ToLower(strings.TrimSpace(x.Source))
	cx := &compiledExtract{Extract: x}

	switch x.Source {
	case "status":
	case "header", "json":
		if x.Path == "" {
			return nil, fmt.Errorf("%s extract requires a path", x.Source)
		}
	case "body":
	default:
		return nil, fmt.Errorf("unknown extract source %q", x.Source)
	}

	if x.Regex != "" {
		re, err := regexp.Compile(x.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", x.Regex, err)
		}
		cx.re = re
	}
	return cx, nil
}

// apply returns the extracted value. Empty values are not stored.
func (x *compiledExtract) apply(resp *httpclient.Response) (string, bool) {
	var value string
	switch x.Source {
	case "status":
		value = strconv.Itoa(resp.StatusCode)
	case "header":
		value = resp.Header(x.Path)
	case "json":
		v, err := jsonpath.Extract(resp.Body(), x.Path)
		if err != nil {
			return "", false
		}
		value = v
	case "body":
		value = string(resp.Body())
	}

	if x.re != nil {
		m := x.re.FindStringSubmatch(value)
		switch {
		case m == nil:
			return "", false
		case len(m) > 1:
			value = m[1]
		default:
			value = m[0]
		}
	}
	return value, value != ""
}
