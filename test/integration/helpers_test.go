// ============================================================================
// frtrace integration test helpers
// ============================================================================
//
// Package: test/integration
// File: helpers_test.go
//
// The integration suite drives whole captures through the pipeline, the
// report builder and the CLI, and checks properties of the resulting
// trace rather than individual events.
//
// ============================================================================

package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/frtrace/internal/emit"
	"github.com/ChuLiYu/frtrace/internal/pipeline"
	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/internal/storage/capture"
	"github.com/ChuLiYu/frtrace/internal/synth"
)

// scenarioEvents generates a scripted run with the given step count.
func scenarioEvents(tb testing.TB, steps int, seed int64) []schema.Event {
	tb.Helper()
	cfg := synth.Default()
	cfg.Tasks = 5
	cfg.Queues = 3
	cfg.ISRs = 2
	cfg.Steps = steps
	cfg.Seed = seed
	events, err := synth.Generate(cfg)
	require.NoError(tb, err)
	return events
}

// writeCapture stores events with damaged frames mixed in and returns the path.
func writeCapture(tb testing.TB, dir string, enc capture.Encoding, events []schema.Event, damaged int) string {
	tb.Helper()
	path := filepath.Join(dir, "capture."+string(enc))

	var buf bytes.Buffer
	require.NoError(tb, synth.Write(&buf, enc, events, damaged))
	require.NoError(tb, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func convert(tb testing.TB, path string, enc capture.Encoding, workers int) *pipeline.Result {
	tb.Helper()
	p := pipeline.New(pipeline.Config{
		Workers:    workers,
		BufferSize: 64,
		Encoding:   enc,
		IncludeRaw: true,
		Logger:     zerolog.Nop(),
	})
	res, err := p.RunFile(context.Background(), path)
	require.NoError(tb, err)
	return res
}

func encode(tb testing.TB, doc *emit.Document) []byte {
	tb.Helper()
	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(tb, err)
	return buf.Bytes()
}

type thread struct {
	pid int
	tid uint64
}

// requireBalanced checks that every thread's B/E pairs nest and close.
func requireBalanced(tb testing.TB, doc *emit.Document) {
	tb.Helper()
	depth := map[thread]int{}
	for i, e := range doc.TraceEvents {
		if e.TID == nil {
			continue
		}
		th := thread{e.PID, *e.TID}
		switch e.Phase {
		case emit.PhaseBegin:
			depth[th]++
		case emit.PhaseEnd:
			depth[th]--
			require.GreaterOrEqual(tb, depth[th], 0, "event %d: end without begin on %v", i, th)
		}
	}
	for th, d := range depth {
		require.Zero(tb, d, "thread %v left open", th)
	}
}

type interval struct {
	start, end uint64
	tid        uint64
}

// runningIntervals pairs the overview lane's begins and ends per task.
func runningIntervals(doc *emit.Document) []interval {
	open := map[uint64]uint64{}
	var out []interval
	for _, e := range doc.TraceEvents {
		if e.PID != emit.PIDOverview || e.TID == nil {
			continue
		}
		switch e.Phase {
		case emit.PhaseBegin:
			open[*e.TID] = e.TS
		case emit.PhaseEnd:
			out = append(out, interval{start: open[*e.TID], end: e.TS, tid: *e.TID})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].start != out[j].start {
			return out[i].start < out[j].start
		}
		return out[i].end < out[j].end
	})
	return out
}
