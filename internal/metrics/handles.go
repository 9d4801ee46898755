package metrics

import "time"

// Counter is a handle to a counter series.
type Counter struct {
	c    *Collector
	name string
}

// Counter declares a counter and returns a handle to it.
func (c *Collector) Counter(name string) Counter {
	c.Declare(Definition{Name: name, Kind: KindCounter})
	return Counter{c: c, name: name}
}

// Add adds v to the counter.
func (m Counter) Add(v float64) { m.c.Record(m.name, KindCounter, v) }

// Inc adds one.
func (m Counter) Inc() { m.Add(1) }

// Gauge is a handle to a gauge series.
type Gauge struct {
	c    *Collector
	name string
}

// Gauge declares a gauge and returns a handle to it.
func (c *Collector) Gauge(name string) Gauge {
	c.Declare(Definition{Name: name, Kind: KindGauge})
	return Gauge{c: c, name: name}
}

// Set stores v as the gauge's current value.
func (m Gauge) Set(v float64) { m.c.Record(m.name, KindGauge, v) }

// Rate is a handle to a rate series.
type Rate struct {
	c    *Collector
	name string
}

// Rate declares a rate and returns a handle to it.
func (c *Collector) Rate(name string) Rate {
	c.Declare(Definition{Name: name, Kind: KindRate})
	return Rate{c: c, name: name}
}

// Add records one observation.
func (m Rate) Add(ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	m.c.Record(m.name, KindRate, v)
}

// Trend is a handle to a trend series.
type Trend struct {
	c    *Collector
	name string
}

// Trend declares a trend and returns a handle to it. When isTime is set the
// values are milliseconds.
func (c *Collector) Trend(name string, isTime bool) Trend {
	vt := Default
	if isTime {
		vt = Time
	}
	c.Declare(Definition{Name: name, Kind: KindTrend, ValueType: vt})
	return Trend{c: c, name: name}
}

// Add records v.
func (m Trend) Add(v float64) { m.c.Record(m.name, KindTrend, v) }

// AddDuration records d in milliseconds.
func (m Trend) AddDuration(d time.Duration) { m.Add(DurationMillis(d)) }

// DurationMillis converts d to fractional milliseconds.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
