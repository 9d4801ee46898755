package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// ParseError reports a threshold that cannot be used. It is a configuration
// error and is always returned before a run starts.
type ParseError struct {
	Metric     string
	Expression string
	Reason     string
}

func (e *ParseError) Error() string {
	if e.Metric == "" {
		return fmt.Sprintf("invalid threshold %q: %s", e.Expression, e.Reason)
	}
	return fmt.Sprintf("invalid threshold %q on metric %q: %s", e.Expression, e.Metric, e.Reason)
}

// Spec is a threshold as declared in configuration.
type Spec struct {
	Expression     string
	AbortOnFail    bool
	DelayAbortEval time.Duration
	OnlyIfPresent  bool
}

// Threshold is a validated, parsed threshold bound to one metric.
type Threshold struct {
	Metric         string
	Source         string
	Expr           Expression
	AbortOnFail    bool
	DelayAbortEval time.Duration
	OnlyIfPresent  bool
}

// Catalog lists the metrics thresholds may reference.
type Catalog map[string]metrics.Definition

// NewCatalog builds a catalog from definitions.
func NewCatalog(defs ...metrics.Definition) Catalog {
	c := make(Catalog, len(defs))
	c.Add(defs...)
	return c
}

// Add registers definitions, replacing existing entries of the same name.
func (c Catalog) Add(defs ...metrics.Definition) {
	for _, d := range defs {
		c[d.Name] = d
	}
}

var submetricRe = regexp.MustCompile(`^checks\{\s*(.+?)\s*\}$`)

// lookup resolves a metric name. Per-check rates may be written as
// "checks{name}" and resolve to the per-check series.
func (c Catalog) lookup(name string) (metrics.Definition, bool) {
	if m := submetricRe.FindStringSubmatch(name); m != nil {
		return metrics.Definition{Name: metrics.CheckMetricName(m[1]), Kind: metrics.KindRate}, true
	}
	d, ok := c[name]
	return d, ok
}

// New parses spec and validates it against the catalog.
func New(metric string, spec Spec, catalog Catalog) (Threshold, error) {
	def, ok := catalog.lookup(metric)
	if !ok {
		return Threshold{}, &ParseError{Metric: metric, Expression: spec.Expression, Reason: "unknown metric"}
	}

	expr, err := Parse(spec.Expression)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Metric = metric
		}
		return Threshold{}, err
	}

	if !expr.AppliesTo(def.Kind) {
		return Threshold{}, &ParseError{
			Metric:     metric,
			Expression: spec.Expression,
			Reason:     fmt.Sprintf("statistic %s does not apply to a %s metric", expr.StatLabel(), def.Kind),
		}
	}
	if expr.Unit != "" && def.ValueType != metrics.Time {
		return Threshold{}, &ParseError{
			Metric:     metric,
			Expression: spec.Expression,
			Reason:     fmt.Sprintf("duration unit %q used on a metric that does not hold times", expr.Unit),
		}
	}
	if spec.DelayAbortEval < 0 {
		return Threshold{}, &ParseError{Metric: metric, Expression: spec.Expression, Reason: "delayAbortEval cannot be negative"}
	}

	return Threshold{
		Metric:         def.Name,
		Source:         spec.Expression,
		Expr:           expr,
		AbortOnFail:    spec.AbortOnFail,
		DelayAbortEval: spec.DelayAbortEval,
		OnlyIfPresent:  spec.OnlyIfPresent,
	}, nil
}

// ParseAll builds every threshold, joining all errors so configuration
// problems are reported in one pass. Thresholds are ordered by metric name
// and then by declaration order.
func ParseAll(specs map[string][]Spec, catalog Catalog) ([]Threshold, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		out  []Threshold
		errs []error
	)
	for _, name := range names {
		for _, spec := range specs[name] {
			th, err := New(name, spec, catalog)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, th)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Metrics returns the distinct metric names referenced by thresholds.
func Metrics(ths []Threshold) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, th := range ths {
		if _, ok := seen[th.Metric]; ok {
			continue
		}
		seen[th.Metric] = struct{}{}
		names = append(names, th.Metric)
	}
	return names
}
