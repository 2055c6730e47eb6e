// ============================================================================
// frtrace Metrics - Prometheus pipeline counters
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Function: Count what one conversion saw and write it in the Prometheus
//           text format, for node_exporter's textfile collector or CI.
//
// Metric families:
//
//   1. Counters:
//      - frtrace_bytes_total: capture bytes read
//      - frtrace_frames_total: frames handed to the decoder
//      - frtrace_frames_degenerate_total: frames of length 0 or 1
//      - frtrace_events_total{kind}: decoded events per kind
//      - frtrace_events_invalid_total: records that did not decode
//      - frtrace_diagnostics_total: interpreter diagnostics
//      - frtrace_events_dropped_total: events the device reported lost
//
//   2. Histogram:
//      - frtrace_stage_duration_seconds{stage}: load, split, decode,
//        replay, emit
//
//   3. Gauge:
//      - frtrace_decode_workers: workers used by the last run
//
// Registry:
//   Every Collector owns its registry, so several pipelines (and tests) can
//   run in one process.
//
// ============================================================================

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "frtrace"

// Collector holds the metrics of one or more pipeline runs.
type Collector struct {
	registry *prometheus.Registry

	bytes       prometheus.Counter
	frames      prometheus.Counter
	degenerate  prometheus.Counter
	events      *prometheus.CounterVec
	invalid     prometheus.Counter
	diagnostics prometheus.Counter
	dropped     prometheus.Counter

	stageDuration *prometheus.HistogramVec
	workers       prometheus.Gauge
}

// NewCollector creates a collector with a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Total number of capture bytes read",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of frames handed to the decoder",
		}),
		degenerate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_degenerate_total",
			Help:      "Total number of frames of length 0 or 1 dropped by the splitter",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of decoded events by kind",
		}, []string{"kind"}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_invalid_total",
			Help:      "Total number of records that could not be decoded",
		}),
		diagnostics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Total number of interpreter diagnostics",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of events reported lost by the device",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"stage"}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "decode_workers",
			Help:      "Number of decode workers used by the last run",
		}),
	}

	c.registry.MustRegister(
		c.bytes,
		c.frames,
		c.degenerate,
		c.events,
		c.invalid,
		c.diagnostics,
		c.dropped,
		c.stageDuration,
		c.workers,
	)
	return c
}

// Registry exposes the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordCapture records the size and split result of a capture.
func (c *Collector) RecordCapture(bytes, frames, degenerate int) {
	c.bytes.Add(float64(bytes))
	c.frames.Add(float64(frames))
	c.degenerate.Add(float64(degenerate))
}

// RecordEvent counts one decoded event.
func (c *Collector) RecordEvent(kind string) {
	c.events.WithLabelValues(kind).Inc()
}

// RecordInvalid counts one record that did not decode.
func (c *Collector) RecordInvalid() {
	c.invalid.Inc()
}

// RecordReplay records the interpreter outcome.
func (c *Collector) RecordReplay(diagnostics int, dropped uint64) {
	c.diagnostics.Add(float64(diagnostics))
	c.dropped.Add(float64(dropped))
}

// ObserveStage records how long a stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetWorkers records the decode worker count.
func (c *Collector) SetWorkers(n int) {
	c.workers.Set(float64(n))
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
