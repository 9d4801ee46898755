package threshold

import (
	"errors"
	"strconv"
	"testing"

	"pgregory.net/rapid"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr       string
		stat       Statistic
		percentile float64
		op         Comparator
		literal    float64
	}{
		{"p(95)<5700", StatPercentile, 95, OpLess, 5700},
		{"p(95) < 5700", StatPercentile, 95, OpLess, 5700},
		{"p( 99.9 )<=100", StatPercentile, 99.9, OpLessEqual, 100},
		{"p95<500ms", StatPercentile, 95, OpLess, 500},
		{"p99 < 1.5s", StatPercentile, 99, OpLess, 1500},
		{"rate>0.88", StatRate, 0, OpGreater, 0.88},
		{"rate >= .5", StatRate, 0, OpGreaterEqual, 0.5},
		{"avg<200", StatAvg, 0, OpLess, 200},
		{"med<200us", StatMed, 0, OpLess, 0.2},
		{"min>=1µs", StatMin, 0, OpGreaterEqual, 0.001},
		{"max<2m", StatMax, 0, OpLess, 120000},
		{"count>1000", StatCount, 0, OpGreater, 1000},
		{"count==10", StatCount, 0, OpEqual, 10},
		{"count===10", StatCount, 0, OpStrictEqual, 10},
		{"value!=0", StatValue, 0, OpNotEqual, 0},
		{"  rate  <  1e-2  ", StatRate, 0, OpLess, 0.01},
		{"p(0)>=0", StatPercentile, 0, OpGreaterEqual, 0},
		{"p(100)<-1", StatPercentile, 100, OpLess, -1},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.expr, err)
			}
			if e.Stat != tt.stat {
				t.Errorf("Stat = %v, want %v", e.Stat, tt.stat)
			}
			if e.Percentile != tt.percentile {
				t.Errorf("Percentile = %v, want %v", e.Percentile, tt.percentile)
			}
			if e.Op != tt.op {
				t.Errorf("Op = %v, want %v", e.Op, tt.op)
			}
			if diff := e.Literal - tt.literal; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Literal = %v, want %v", e.Literal, tt.literal)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"p95",
		"p(95)<",
		"<500",
		"p(101)<5",
		"p(95)<abc",
		"rate=>0.5",
		"rate <> 0.5",
		"median<5",
		"p(95)<500 ms extra",
		"rate>0.5%",
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", expr)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error %T is not *ParseError", err)
			}
		})
	}
}

func TestExpression_String(t *testing.T) {
	tests := map[string]string{
		"p(95) < 5700":  "p(95)<5700",
		"p99.9<=1s":     "p(99.9)<=1000",
		"rate > 0.88":   "rate>0.88",
		"count === 3":   "count===3",
		"value != 1.25": "value!=1.25",
	}
	for in, want := range tests {
		if got := MustParse(in).String(); got != want {
			t.Errorf("Parse(%q).String() = %q, want %q", in, got, want)
		}
	}
}

func TestComparator_Compare(t *testing.T) {
	tests := []struct {
		op     Comparator
		actual float64
		lit    float64
		want   bool
	}{
		{OpLess, 1, 2, true},
		{OpLess, 2, 2, false},
		{OpLessEqual, 2, 2, true},
		{OpGreater, 3, 2, true},
		{OpGreaterEqual, 2, 2, true},
		{OpEqual, 2, 2, true},
		{OpStrictEqual, 2, 3, false},
		{OpNotEqual, 2, 3, true},
		{Comparator(0), 1, 1, false},
	}
	for _, tt := range tests {
		if got := tt.op.Compare(tt.actual, tt.lit); got != tt.want {
			t.Errorf("%v.Compare(%v, %v) = %v, want %v", tt.op, tt.actual, tt.lit, got, tt.want)
		}
	}
}

func TestExpression_AppliesTo(t *testing.T) {
	tests := []struct {
		expr string
		kind metrics.Kind
		want bool
	}{
		{"p(95)<1", metrics.KindTrend, true},
		{"avg<1", metrics.KindTrend, true},
		{"count>1", metrics.KindTrend, true},
		{"rate>1", metrics.KindTrend, false},
		{"rate>1", metrics.KindRate, true},
		{"avg<1", metrics.KindRate, false},
		{"count>1", metrics.KindCounter, true},
		{"rate>1", metrics.KindCounter, true},
		{"p(95)<1", metrics.KindCounter, false},
		{"value>1", metrics.KindGauge, true},
		{"max>1", metrics.KindGauge, true},
		{"avg>1", metrics.KindGauge, false},
	}
	for _, tt := range tests {
		if got := MustParse(tt.expr).AppliesTo(tt.kind); got != tt.want {
			t.Errorf("%q.AppliesTo(%v) = %v, want %v", tt.expr, tt.kind, got, tt.want)
		}
	}
}

// Every canonical expression parses back to itself.
func TestParseRoundTripProperty(t *testing.T) {
	stats := []string{"avg", "min", "max", "med", "count", "rate", "value"}
	ops := []string{"<", "<=", ">", ">=", "==", "===", "!="}

	rapid.Check(t, func(t *rapid.T) {
		var stat string
		if rapid.Bool().Draw(t, "percentile") {
			p := rapid.IntRange(0, 1000).Draw(t, "p")
			stat = "p(" + strconv.FormatFloat(float64(p)/10, 'f', -1, 64) + ")"
		} else {
			stat = rapid.SampledFrom(stats).Draw(t, "stat")
		}
		op := rapid.SampledFrom(ops).Draw(t, "op")
		lit := rapid.IntRange(-100000, 100000).Draw(t, "literal")
		src := stat + op + strconv.FormatFloat(float64(lit)/100, 'f', -1, 64)

		e, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		if e.String() != src {
			t.Fatalf("String() = %q, want %q", e.String(), src)
		}
		again, err := Parse(e.String())
		if err != nil || again != e {
			t.Fatalf("re-parse of %q = %+v, %v", e.String(), again, err)
		}
	})
}
