package metrics

import (
	"strconv"
	"testing"
)

func BenchmarkCollector_RecordTrend(b *testing.B) {
	c := NewCollector()
	defer c.Freeze()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Record(IterationDuration, KindTrend, float64(i%5000))
	}
}

func BenchmarkCollector_RecordParallel(b *testing.B) {
	c := NewCollector()
	defer c.Freeze()

	names := make([]string, 32)
	for i := range names {
		names[i] = "metric_" + strconv.Itoa(i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Record(names[i%len(names)], KindTrend, float64(i%1000))
			i++
		}
	})
}

func BenchmarkCollector_Snapshot(b *testing.B) {
	c := NewCollector()
	defer c.Freeze()

	for _, def := range append(CoreDefinitions(), HTTPDefinitions()...) {
		c.Declare(def)
		c.Record(def.Name, def.Kind, 1)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Snapshot()
	}
}
