// Package metrics records what a mongobridge run did using Prometheus
// metrics on a private registry.
//
// # Overview
//
// A run records:
//   - records loaded into the document store, by detected format
//   - rows migrated into the relational table, by status
//   - the duration of every pipeline stage
//   - the outcome and wall time of the run itself
//
// The CLI is a one-shot process, so metrics are not served; they are
// written once as a node_exporter textfile when a path is configured.
//
// # Basic Usage
//
//	m := metrics.NewCollector()
//	timer := metrics.NewTimer("load")
//	result, err := loader.Load(ctx, content, det)
//	m.ObserveStage("load", timer.Stop())
//	m.RecordLoaded(string(det.Format), result.Inserted)
//	_ = m.WriteTextfile("/var/lib/node_exporter/mongobridge.prom")
package metrics

import (
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mongobridge"

// Row statuses for RowsMigrated
const (
	StatusMigrated = "migrated"
	StatusFailed   = "failed"
)

// Collector holds the metrics of one process on its own registry.
type Collector struct {
	registry *prometheus.Registry

	recordsLoaded *prometheus.CounterVec   // Records inserted, by format
	rowsMigrated  *prometheus.CounterVec   // Rows committed or rejected
	stageDuration *prometheus.HistogramVec // Seconds per pipeline stage
	runs          *prometheus.CounterVec   // Runs by outcome
	runDuration   *prometheus.HistogramVec // Wall seconds per run, by operation
	sourceBytes   *prometheus.GaugeVec     // Size of the last resolved source
}

// NewCollector creates a collector with a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		recordsLoaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_loaded_total",
				Help:      "Records inserted into the document store",
			},
			[]string{"format"},
		),
		rowsMigrated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_migrated_total",
				Help:      "Documents handled by the relational migration",
			},
			[]string{"status"},
		),
		// Buckets span a local file read up to a slow remote migration
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"stage"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of a run from start to report",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"operation"},
		),
		sourceBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "source_bytes",
				Help:      "Size of the last resolved source content",
			},
			[]string{"kind"},
		),
	}
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordLoaded adds n inserted records of format
func (c *Collector) RecordLoaded(format string, n int) {
	c.recordsLoaded.WithLabelValues(format).Add(float64(n))
}

// RecordMigrated adds migrated and failed row counts
func (c *Collector) RecordMigrated(migrated, failed int) {
	c.rowsMigrated.WithLabelValues(StatusMigrated).Add(float64(migrated))
	c.rowsMigrated.WithLabelValues(StatusFailed).Add(float64(failed))
}

// ObserveStage records how long a stage took
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSource sets the size of the resolved source
func (c *Collector) RecordSource(kind string, size int) {
	c.sourceBytes.WithLabelValues(kind).Set(float64(size))
}

// RecordRun counts a finished run. A nil error counts as "success";
// otherwise the error type is the outcome.
func (c *Collector) RecordRun(err error) {
	outcome := "success"
	if err != nil {
		outcome = string(errors.TypeOf(err))
	}
	c.runs.WithLabelValues(outcome).Inc()
}

// ObserveRun records the wall time of one run of operation
func (c *Collector) ObserveRun(operation string, d time.Duration) {
	c.runDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// WriteTextfile writes every metric in the text exposition format,
// atomically replacing path.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write metrics textfile").WithDetail("path", path)
	}
	return nil
}

// Timer provides a simple timing mechanism for measuring stage durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the stage the timer measures
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
