// Command generate-sample-report renders the summary of a synthetic
// crypto-price run, for working on the report templates without running
// a load test.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/wesleyorama2/stampede/internal/engine"
	"github.com/wesleyorama2/stampede/internal/executor"
	"github.com/wesleyorama2/stampede/internal/metrics"
	"github.com/wesleyorama2/stampede/internal/summary"
	"github.com/wesleyorama2/stampede/internal/threshold"
)

func main() {
	outputPath := "sample-report.html"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	result, err := createSampleResult()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	handler := summary.Handler([]summary.OutputSpec{
		{Path: outputPath, Renderer: summary.HTML{}},
		{Path: replaceExt(outputPath, ".json"), Renderer: summary.JSON{}},
		{Path: summary.Stdout, Renderer: summary.Text{Indent: " "}},
	})
	outputs, err := handler(result)
	if err == nil {
		err = summary.WriteOutputs(outputs, os.Stdout, os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sample report generated: %s\n", outputPath)
}

func replaceExt(path, ext string) string {
	return path[:len(path)-len(filepath.Ext(path))] + ext
}

// stages of the sample plan: ramp to 10, hold at 300, ramp down.
var stages = []executor.Stage{
	{Duration: time.Minute, Target: 10},
	{Duration: 3 * time.Minute, Target: 300, Name: "peak"},
	{Duration: time.Minute, Target: 0},
}

func createSampleResult() (*engine.RunResult, error) {
	rng := rand.New(rand.NewSource(42))
	start := time.Now().Add(-5 * time.Minute).Truncate(time.Second)

	custom := []metrics.Definition{
		{Name: "get_crypto_price_duration", Kind: metrics.KindTrend, ValueType: metrics.Time},
		{Name: "success_rate", Kind: metrics.KindRate},
	}
	catalog := threshold.NewCatalog(metrics.CoreDefinitions()...)
	catalog.Add(metrics.HTTPDefinitions()...)
	catalog.Add(custom...)

	c := metrics.NewCollector()
	for _, def := range catalog {
		c.Declare(def)
	}

	var buckets []*metrics.TimeBucket
	var iterations, errs int64
	var total time.Duration
	for _, st := range stages {
		total += st.Duration
	}

	for sec := 1; sec <= int(total.Seconds()); sec++ {
		elapsed := time.Duration(sec) * time.Second
		vus, _ := executor.TargetAt(0, stages, elapsed)
		n := int64(vus) * 2

		var intervalErrs int64
		for i := int64(0); i < n; i++ {
			latency := 80 + rng.ExpFloat64()*120
			if vus > 200 && rng.Float64() < 0.08 {
				latency += 4000 + rng.Float64()*3000
			}
			ok := latency < 5000
			if !ok {
				intervalErrs++
			}

			c.Record(metrics.HTTPReqs, metrics.KindCounter, 1)
			c.Record(metrics.HTTPReqDuration, metrics.KindTrend, latency)
			c.Record(metrics.HTTPReqFailed, metrics.KindRate, boolValue(!ok))
			c.Record(metrics.DataReceived, metrics.KindCounter, 1450)
			c.Record("get_crypto_price_duration", metrics.KindTrend, latency)
			c.Record("success_rate", metrics.KindRate, boolValue(ok))
			c.Record(metrics.Checks, metrics.KindRate, boolValue(ok))
			c.Record(metrics.CheckMetricName("status is 200"), metrics.KindRate, boolValue(ok))
			c.Record(metrics.Checks, metrics.KindRate, 1)
			c.Record(metrics.CheckMetricName("response has bitcoin.usd"), metrics.KindRate, 1)
			c.Record(metrics.Iterations, metrics.KindCounter, 1)
			c.Record(metrics.IterationDuration, metrics.KindTrend, latency+1)
		}
		c.SetActiveVUs(vus)

		iterations += n
		errs += intervalErrs
		errRate := 0.0
		if n > 0 {
			errRate = float64(intervalErrs) / float64(n)
		}
		buckets = append(buckets, &metrics.TimeBucket{
			Timestamp:          start.Add(elapsed),
			Elapsed:            elapsed,
			Iterations:         iterations,
			IterationErrors:    errs,
			IntervalIterations: n,
			IntervalRate:       float64(n),
			IntervalErrorRate:  errRate,
			ActiveVUs:          vus,
			Phase:              phaseAt(elapsed),
		})
	}
	c.Freeze()
	snap := c.Snapshot()

	// The samples above were recorded in a few milliseconds; rates are
	// restated over the simulated duration.
	snap.StartTime = start
	snap.Elapsed = total
	for _, s := range snap.Series {
		if s.Kind == metrics.KindCounter {
			s.Rate = s.Sum / total.Seconds()
		}
	}
	var steady, steadyBuckets float64
	for _, b := range buckets {
		b.IterationP95 = snap.Get(metrics.IterationDuration).P95
		if b.Phase == metrics.PhaseSteady {
			steady += b.IntervalRate
			steadyBuckets++
		}
	}
	if steadyBuckets > 0 {
		snap.SteadyStateRate = steady / steadyBuckets
	}

	ths, err := threshold.ParseAll(map[string][]threshold.Spec{
		"get_crypto_price_duration": {{Expression: "p(95)<5700"}},
		"success_rate":              {{Expression: "rate>0.88"}},
		metrics.HTTPReqFailed:       {{Expression: "rate<0.01"}},
	}, catalog)
	if err != nil {
		return nil, err
	}
	outcomes := threshold.Evaluate(snap, ths)

	var stageResults []executor.StageResult
	at := start
	for i, st := range stages {
		stageResults = append(stageResults, executor.StageResult{
			Index:       i,
			Name:        st.Name,
			Target:      st.Target,
			ActiveAtEnd: st.Target,
			Start:       at,
			End:         at.Add(st.Duration),
			Duration:    st.Duration,
			Status:      executor.StageCompleted,
		})
		at = at.Add(st.Duration)
	}

	return &engine.RunResult{
		ID:         "sample",
		Name:       "crypto-price",
		StartTime:  start,
		EndTime:    start.Add(total),
		Duration:   total,
		Metrics:    snap,
		TimeSeries: buckets,
		Thresholds: outcomes,
		Passed:     threshold.Passed(outcomes),
		Stages:     stageResults,
	}, nil
}

func phaseAt(elapsed time.Duration) metrics.Phase {
	switch {
	case elapsed <= stages[0].Duration:
		return metrics.PhaseRampUp
	case elapsed <= stages[0].Duration+stages[1].Duration:
		return metrics.PhaseSteady
	default:
		return metrics.PhaseRampDown
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
