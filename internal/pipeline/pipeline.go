// ============================================================================
// frtrace Pipeline - capture to trace conversion
// ============================================================================
//
// Package: internal/pipeline
// File: pipeline.go
// Purpose: Run the conversion stages in order and account for what each
//          stage saw
//
// Stages:
//   load    read and de-encode the capture file           (RunFile only)
//   split   cut the capture on the zero delimiter
//   decode  de-stuff and parse every frame                 (worker.Pool)
//   replay  rebuild scheduler state from the event stream  (interp)
//   emit    project the state into a trace document        (emit)
//
//   ┌──────┐   ┌───────┐   ┌────────┐   ┌────────┐   ┌──────┐
//   │ load │──▶│ split │──▶│ decode │──▶│ replay │──▶│ emit │
//   └──────┘   └───────┘   └────────┘   └────────┘   └──────┘
//                              │ N workers, results re-ordered
//                              ▼ by frame index
//                        schema.Decoder (in order)
//
// Determinism:
//   Only decode runs concurrently. Each frame decodes independently and the
//   results are put back in frame order before the stateful Decoder sees
//   them, so the output never depends on the worker count.
//
// Errors:
//   Damaged input is data, not failure: broken frames and bad records turn
//   into Invalid events and surface as diagnostics. Run only fails on I/O
//   errors and cancellation.
//
// ============================================================================

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ChuLiYu/frtrace/internal/emit"
	"github.com/ChuLiYu/frtrace/internal/interp"
	"github.com/ChuLiYu/frtrace/internal/metrics"
	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/internal/storage/capture"
	"github.com/ChuLiYu/frtrace/internal/telemetry"
	"github.com/ChuLiYu/frtrace/internal/worker"
)

// Stage names, also used as span names and metric labels.
const (
	StageLoad   = "load"
	StageSplit  = "split"
	StageDecode = "decode"
	StageReplay = "replay"
	StageEmit   = "emit"
)

// Config configures a Pipeline.
type Config struct {
	Workers    int              // Decode workers, <= 1 decodes inline
	BufferSize int              // Pool channel capacity
	Encoding   capture.Encoding // Capture file encoding for RunFile
	IncludeRaw bool             // Emit the raw event lane
	Logger     zerolog.Logger
	Metrics    *metrics.Collector // Optional
}

// Stats counts what one run saw.
type Stats struct {
	Bytes       int           `json:"bytes" yaml:"bytes"`
	Frames      int           `json:"frames" yaml:"frames"`
	Degenerate  int           `json:"degenerate_frames" yaml:"degenerate_frames"`
	Events      int           `json:"events" yaml:"events"`
	Invalid     int           `json:"invalid_events" yaml:"invalid_events"`
	Diagnostics int           `json:"diagnostics" yaml:"diagnostics"`
	Dropped     uint64        `json:"dropped_events" yaml:"dropped_events"`
	Workers     int           `json:"workers" yaml:"workers"`
	Stages      []StageTiming `json:"stages" yaml:"stages"`
}

// StageTiming is the wall time of one stage.
type StageTiming struct {
	Name     string        `json:"name" yaml:"name"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Result is the outcome of one run.
type Result struct {
	Events   []schema.Event
	State    *interp.State
	Document *emit.Document
	Stats    Stats
}

// Pipeline converts captures into trace documents. It holds no per-run
// state and may be reused.
type Pipeline struct {
	cfg    Config
	log    zerolog.Logger
	tracer trace.Tracer
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 256
	}
	if cfg.Encoding == "" {
		cfg.Encoding = capture.EncodingHex
	}
	return &Pipeline{
		cfg:    cfg,
		log:    cfg.Logger.With().Str("component", "pipeline").Logger(),
		tracer: telemetry.Tracer(),
	}
}

// RunFile loads the capture at path and converts it.
func (p *Pipeline) RunFile(ctx context.Context, path string) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "convert", trace.WithAttributes(attribute.String("capture.path", path)))
	defer span.End()

	var c *capture.Capture
	load, err := p.stage(ctx, StageLoad, func(context.Context) error {
		var err error
		c, err = capture.Load(path, p.cfg.Encoding)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	res, err := p.run(ctx, c)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Stats.Stages = append([]StageTiming{load}, res.Stats.Stages...)
	return res, nil
}

// Run converts an already loaded capture.
func (p *Pipeline) Run(ctx context.Context, c *capture.Capture) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "convert")
	defer span.End()

	res, err := p.run(ctx, c)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, c *capture.Capture) (*Result, error) {
	res := &Result{}
	st := &res.Stats
	st.Bytes = len(c.Bytes())
	st.Workers = p.workers()

	var tasks []worker.Task
	timing, err := p.stage(ctx, StageSplit, func(ctx context.Context) error {
		split, err := c.Each(func(f capture.Frame) error {
			tasks = append(tasks, worker.Task{Index: f.Index, Frame: f})
			return ctx.Err()
		})
		if err != nil {
			return err
		}
		st.Frames = split.Frames
		st.Degenerate = split.Degenerate
		if split.Degenerate > 0 {
			p.log.Debug().Int("degenerate", split.Degenerate).Msg("dropped degenerate frames")
		}
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("frames", split.Frames),
			attribute.Int("frames.degenerate", split.Degenerate),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	st.Stages = append(st.Stages, timing)

	timing, err = p.stage(ctx, StageDecode, func(ctx context.Context) error {
		var err error
		res.Events, err = p.decode(ctx, tasks)
		return err
	})
	if err != nil {
		return nil, err
	}
	st.Stages = append(st.Stages, timing)
	st.Events = len(res.Events)
	for _, ev := range res.Events {
		if ev.Kind == schema.KindInvalid {
			st.Invalid++
		}
	}

	timing, err = p.stage(ctx, StageReplay, func(ctx context.Context) error {
		res.State = interp.New(p.cfg.Logger).Replay(res.Events)
		return nil
	})
	if err != nil {
		return nil, err
	}
	st.Stages = append(st.Stages, timing)
	st.Diagnostics = len(res.State.Diagnostics)
	st.Dropped = res.State.Dropped

	timing, err = p.stage(ctx, StageEmit, func(ctx context.Context) error {
		res.Document = emit.Build(res.State, res.Events, emit.Options{IncludeRaw: p.cfg.IncludeRaw})
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("trace.events", len(res.Document.TraceEvents)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	st.Stages = append(st.Stages, timing)

	p.record(res)

	p.log.Info().
		Int("frames", st.Frames).
		Int("events", st.Events).
		Int("invalid", st.Invalid).
		Int("diagnostics", st.Diagnostics).
		Uint64("dropped", st.Dropped).
		Msg("trace converted")

	return res, nil
}

// stage runs fn inside a span and times it. A cancelled context stops the
// pipeline before the stage starts.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) (StageTiming, error) {
	if err := ctx.Err(); err != nil {
		return StageTiming{Name: name}, err
	}

	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ObserveStage(name, d)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.Error().Err(err).Str("stage", name).Msg("stage failed")
		return StageTiming{Name: name, Duration: d}, err
	}

	p.log.Debug().Str("stage", name).Dur("duration", d).Msg("stage done")
	return StageTiming{Name: name, Duration: d}, nil
}

func (p *Pipeline) workers() int {
	if p.cfg.Workers < 1 {
		return 1
	}
	return p.cfg.Workers
}

// decode turns split tasks into the ordered event stream.
func (p *Pipeline) decode(ctx context.Context, tasks []worker.Task) ([]schema.Event, error) {
	var results []worker.Result
	if p.workers() == 1 || len(tasks) < 2 {
		results = make([]worker.Result, len(tasks))
		for i, t := range tasks {
			results[i] = worker.Decode(t)
		}
	} else {
		pool := worker.NewPool(p.cfg.BufferSize, nil)
		if err := pool.Start(p.workers()); err != nil {
			return nil, fmt.Errorf("pipeline: start decode pool: %w", err)
		}
		var err error
		results, err = worker.Collect(ctx, pool, tasks)
		if err != nil {
			return nil, fmt.Errorf("pipeline: decode: %w", err)
		}
		p.log.Debug().Ints("frames_per_worker", pool.Handled()).Msg("decode pool stopped")
	}

	var dec schema.Decoder
	events := make([]schema.Event, len(results))
	for i, r := range results {
		events[i] = dec.Resolve(r.Event, r.Err)
		if r.Err != nil {
			p.log.Debug().Err(r.Err).Int("frame", i).Msg("undecodable frame")
		}
	}
	return events, nil
}

func (p *Pipeline) record(res *Result) {
	m := p.cfg.Metrics
	if m == nil {
		return
	}
	st := res.Stats
	m.SetWorkers(st.Workers)
	m.RecordCapture(st.Bytes, st.Frames, st.Degenerate)
	for _, ev := range res.Events {
		if ev.Kind == schema.KindInvalid {
			m.RecordInvalid()
			continue
		}
		m.RecordEvent(ev.Kind.String())
	}
	m.RecordReplay(st.Diagnostics, st.Dropped)
}
