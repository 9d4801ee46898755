// Package threshold parses and evaluates pass/fail expressions over
// aggregated metrics, such as "p(95)<5700" or "rate>0.88".
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// Statistic selects which aggregate of a series an expression reads.
type Statistic int

const (
	StatAvg Statistic = iota + 1
	StatMin
	StatMax
	StatMed
	StatCount
	StatRate
	StatValue
	StatPercentile
)

var statNames = map[Statistic]string{
	StatAvg:   "avg",
	StatMin:   "min",
	StatMax:   "max",
	StatMed:   "med",
	StatCount: "count",
	StatRate:  "rate",
	StatValue: "value",
}

func (s Statistic) String() string {
	if s == StatPercentile {
		return "p(N)"
	}
	if name, ok := statNames[s]; ok {
		return name
	}
	return "unknown"
}

// Comparator is a comparison operator.
type Comparator int

const (
	OpLess Comparator = iota + 1
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpEqual
	OpStrictEqual
	OpNotEqual
)

var opSymbols = map[Comparator]string{
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
	OpEqual:        "==",
	OpStrictEqual:  "===",
	OpNotEqual:     "!=",
}

func (o Comparator) String() string {
	return opSymbols[o]
}

func parseComparator(s string) (Comparator, bool) {
	for op, sym := range opSymbols {
		if sym == s {
			return op, true
		}
	}
	return 0, false
}

// Compare applies the operator as "actual op literal".
func (o Comparator) Compare(actual, literal float64) bool {
	switch o {
	case OpLess:
		return actual < literal
	case OpLessEqual:
		return actual <= literal
	case OpGreater:
		return actual > literal
	case OpGreaterEqual:
		return actual >= literal
	case OpEqual, OpStrictEqual:
		return actual == literal
	case OpNotEqual:
		return actual != literal
	default:
		return false
	}
}

// Expression is a parsed threshold: Stat Op Literal. Percentile is only set
// when Stat is StatPercentile. Literal is in milliseconds when Unit is set.
type Expression struct {
	Stat       Statistic
	Percentile float64
	Op         Comparator
	Literal    float64
	Unit       string
}

var expressionRe = regexp.MustCompile(
	`^\s*(avg|min|max|med|count|rate|value|p\(\s*[0-9.]+\s*\)|p[0-9.]+)\s*(===|==|!=|<=|>=|<|>)\s*([+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)\s*(ms|us|µs|s|m|h)?\s*$`,
)

var unitToMillis = map[string]float64{
	"us": 0.001,
	"µs": 0.001,
	"ms": 1,
	"s":  1000,
	"m":  60 * 1000,
	"h":  60 * 60 * 1000,
}

// Parse parses an expression such as "p(95) < 5700", "p99<=1.5s" or
// "rate>0.88". Errors are *ParseError.
func Parse(expr string) (Expression, error) {
	m := expressionRe.FindStringSubmatch(expr)
	if m == nil {
		return Expression{}, &ParseError{Expression: expr, Reason: "expected <stat> <op> <value>, e.g. p(95)<500"}
	}

	var e Expression
	stat := m[1]
	if strings.HasPrefix(stat, "p") {
		raw := strings.TrimPrefix(stat, "p")
		raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")"))
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p < 0 || p > 100 {
			return Expression{}, &ParseError{Expression: expr, Reason: fmt.Sprintf("invalid percentile %q, must be between 0 and 100", raw)}
		}
		e.Stat = StatPercentile
		e.Percentile = p
	} else {
		for s, name := range statNames {
			if name == stat {
				e.Stat = s
				break
			}
		}
	}

	op, ok := parseComparator(m[2])
	if !ok {
		return Expression{}, &ParseError{Expression: expr, Reason: fmt.Sprintf("unknown operator %q", m[2])}
	}
	e.Op = op

	lit, err := strconv.ParseFloat(m[3], 64)
	if err != nil || math.IsNaN(lit) || math.IsInf(lit, 0) {
		return Expression{}, &ParseError{Expression: expr, Reason: fmt.Sprintf("invalid value %q", m[3])}
	}
	if unit := m[4]; unit != "" {
		lit *= unitToMillis[unit]
		e.Unit = unit
	}
	e.Literal = lit

	return e, nil
}

// MustParse is like Parse but panics on error.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the canonical form of the expression.
func (e Expression) String() string {
	return e.StatLabel() + e.Op.String() + strconv.FormatFloat(e.Literal, 'f', -1, 64)
}

// StatLabel names the statistic as written in summaries, e.g. "p(95)".
func (e Expression) StatLabel() string {
	if e.Stat == StatPercentile {
		return "p(" + strconv.FormatFloat(e.Percentile, 'f', -1, 64) + ")"
	}
	return e.Stat.String()
}

// AppliesTo reports whether the statistic is defined for a metric kind.
func (e Expression) AppliesTo(kind metrics.Kind) bool {
	switch kind {
	case metrics.KindTrend:
		switch e.Stat {
		case StatAvg, StatMin, StatMax, StatMed, StatCount, StatPercentile:
			return true
		}
	case metrics.KindRate:
		return e.Stat == StatRate
	case metrics.KindCounter:
		return e.Stat == StatCount || e.Stat == StatRate
	case metrics.KindGauge:
		return e.Stat == StatValue || e.Stat == StatMin || e.Stat == StatMax
	}
	return false
}

// Value reads the statistic from a series snapshot.
func (e Expression) Value(s *metrics.SeriesSnapshot) float64 {
	switch e.Stat {
	case StatAvg:
		return s.Avg
	case StatMin:
		return s.Min
	case StatMax:
		return s.Max
	case StatMed:
		return s.Med
	case StatCount:
		if s.Kind == metrics.KindCounter {
			return s.Sum
		}
		return float64(s.Count)
	case StatRate:
		return s.Rate
	case StatValue:
		return s.Value
	case StatPercentile:
		return s.Percentile(e.Percentile)
	default:
		return 0
	}
}
