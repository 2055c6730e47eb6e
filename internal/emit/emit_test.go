package emit

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/frtrace/internal/interp"
	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/pkg/types"
)

func ev(kind schema.Kind, ts types.Timestamp, args ...uint64) schema.Event {
	return schema.Make(kind, ts, args...)
}

func build(t *testing.T, opts Options, events ...schema.Event) *Document {
	t.Helper()
	s := interp.New(zerolog.Nop()).Replay(events)
	return Build(s, events, opts)
}

func lane(doc *Document, pid int, ph Phase) []Event {
	var out []Event
	for _, e := range doc.TraceEvents {
		if e.PID == pid && e.Phase == ph {
			out = append(out, e)
		}
	}
	return out
}

func threadNames(doc *Document, pid int) []string {
	var out []string
	for _, e := range lane(doc, pid, PhaseMetadata) {
		if e.Name == "thread_name" {
			out = append(out, e.Args["name"].(string))
		}
	}
	return out
}

func TestBuild_EmptyTrace(t *testing.T) {
	doc := build(t, Options{IncludeRaw: true})

	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "{\"traceEvents\":[]}\n", buf.String())
}

func TestWriteTo_NilEventsEncodeAsEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	_, err := (&Document{}).WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "{\"traceEvents\":[]}\n", buf.String())
}

func TestBuild_ProcessNames(t *testing.T) {
	doc := build(t, Options{}, ev(schema.KindTaskSwitchedIn, 1, 1))

	names := map[int]string{}
	for _, e := range doc.TraceEvents {
		if e.Phase == PhaseMetadata && e.Name == "process_name" {
			names[e.PID] = e.Args["name"].(string)
		}
	}
	assert.Equal(t, map[int]string{
		PIDOverview:   "OVERVIEW: CURRENTLY RUNNING",
		PIDStates:     "TASK STATES",
		PIDPriorities: "TASK PRIORITIES",
		PIDInterrupts: "INTERRUPTS",
		PIDResources:  "QUEUES/SEMAPHORES/MUTEX",
		PIDMarkers:    "MARKERS",
	}, names)
}

func TestBuild_CounterGetsTrailingSample(t *testing.T) {
	doc := build(t, Options{},
		ev(schema.KindTaskCreated, 5, 1, 3).WithText("worker"),
		ev(schema.KindTaskSwitchedIn, 100, 1),
	)

	counters := lane(doc, PIDPriorities, PhaseCounter)
	require.Len(t, counters, 2)
	assert.Equal(t, uint64(5), counters[0].TS)
	assert.Equal(t, uint64(100), counters[1].TS)
	assert.Equal(t, "worker", counters[1].Name)
	assert.Equal(t, int64(3), counters[1].Args["priority"])
}

func TestBuild_OverviewAndStates(t *testing.T) {
	doc := build(t, Options{},
		ev(schema.KindTaskSwitchedIn, 0, 1),
		ev(schema.KindCurtaskDelay, 4, 10),
		ev(schema.KindTaskSwitchedIn, 5, 2),
		ev(schema.KindTaskSwitchedIn, 9, 1),
	)

	begins := lane(doc, PIDOverview, PhaseBegin)
	ends := lane(doc, PIDOverview, PhaseEnd)
	require.Len(t, begins, 3)
	require.Len(t, ends, 3)
	assert.Equal(t, uint64(0), begins[0].TS)
	assert.Equal(t, uint64(5), ends[0].TS)
	assert.Equal(t, "running", begins[0].Cat)

	var labels []string
	for _, e := range lane(doc, PIDStates, PhaseBegin) {
		if *e.TID == 1 {
			labels = append(labels, e.Name)
		}
	}
	assert.Equal(t, []string{"running", "blocked (delay 10 ticks)", "running"}, labels)
	assert.Equal(t, []string{"Task 1 State", "Task 2 State"}, threadNames(doc, PIDStates))
}

func TestBuild_LateNamingAppliesEverywhere(t *testing.T) {
	doc := build(t, Options{},
		ev(schema.KindTaskSwitchedIn, 0, 1),
		ev(schema.KindCurtaskBlockOnQueueReceive, 2, 9, 5),
		ev(schema.KindTaskSwitchedIn, 3, 2),
		ev(schema.KindQueueName, 0, 9).WithText("rx"),
		ev(schema.KindQueueKind, 0, 9, uint64(types.KindQueue)),
		ev(schema.KindTaskName, 0, 1).WithText("consumer"),
	)

	var blocked string
	for _, e := range lane(doc, PIDStates, PhaseBegin) {
		if e.Cat == string(types.StateBlocked) {
			blocked = e.Name
		}
	}
	assert.Equal(t, "blocked (receive from rx (queue), wait 5 ticks)", blocked)
	assert.Contains(t, threadNames(doc, PIDOverview), "consumer")
}

func TestBuild_MutexDurations(t *testing.T) {
	doc := build(t, Options{},
		ev(schema.KindQueueKind, 0, 4, uint64(types.KindMutex)),
		ev(schema.KindQueueSend, 1, 4, 1),
		ev(schema.KindQueueReceive, 6, 4, 0),
		ev(schema.KindQueueSend, 8, 4, 1),
	)

	begins := lane(doc, PIDResources, PhaseBegin)
	require.Len(t, begins, 3)
	assert.Equal(t, "unlocked", begins[0].Name)
	assert.Equal(t, "locked", begins[1].Name)
	assert.Equal(t, "mutex", begins[1].Cat)
	assert.Len(t, lane(doc, PIDResources, PhaseEnd), 3)
	assert.Empty(t, lane(doc, PIDResources, PhaseCounter))
	assert.Equal(t, []string{"4 (mutex)"}, threadNames(doc, PIDResources))
}

func TestBuild_QueueCounter(t *testing.T) {
	doc := build(t, Options{},
		ev(schema.KindQueueSend, 1, 2, 1),
		ev(schema.KindQueueSend, 2, 2, 2),
		ev(schema.KindTaskSwitchedIn, 7, 1),
	)

	counters := lane(doc, PIDResources, PhaseCounter)
	require.Len(t, counters, 3)
	assert.Equal(t, int64(2), counters[2].Args["state"])
	assert.Equal(t, uint64(7), counters[2].TS)
}

func TestBuild_InterruptsCloseAtTraceEnd(t *testing.T) {
	doc := build(t, Options{},
		ev(schema.KindISRName, 0, 3).WithText("uart"),
		ev(schema.KindISREnter, 1, 3),
		ev(schema.KindISRExit, 2, 3),
		ev(schema.KindISREnter, 5, 3),
		ev(schema.KindTaskSwitchedIn, 9, 1),
	)

	begins := lane(doc, PIDInterrupts, PhaseBegin)
	ends := lane(doc, PIDInterrupts, PhaseEnd)
	require.Len(t, begins, 2)
	require.Len(t, ends, 2)
	assert.Equal(t, "uart", begins[0].Name)
	assert.Equal(t, uint64(9), ends[1].TS)
}

func TestBuild_ResolutionScalesTimestamps(t *testing.T) {
	doc := build(t, Options{IncludeRaw: true},
		ev(schema.KindTSResolutionNS, 0, 1000),
		ev(schema.KindTaskSwitchedIn, 3, 1),
	)

	begins := lane(doc, PIDOverview, PhaseBegin)
	require.Len(t, begins, 1)
	assert.Equal(t, uint64(3000), begins[0].TS)

	raw := lane(doc, PIDRaw, PhaseInstant)
	require.Len(t, raw, 2)
	assert.Equal(t, uint64(3000), raw[1].TS)
	assert.Equal(t, ScopeGlobal, raw[1].Scope)
}

func TestBuild_ResolutionSaturates(t *testing.T) {
	doc := build(t, Options{},
		ev(schema.KindTSResolutionNS, 0, 1<<40),
		ev(schema.KindTaskSwitchedIn, 1, 1),
		ev(schema.KindTaskSwitchedIn, 1<<30, 2),
	)

	begins := lane(doc, PIDOverview, PhaseBegin)
	require.Len(t, begins, 2)
	assert.Equal(t, uint64(1<<40), begins[0].TS)
	assert.Equal(t, uint64(math.MaxUint64), begins[1].TS, "product does not wrap")
}

func TestBuild_RawLaneCarriesFields(t *testing.T) {
	bad := schema.Invalid(0, false, schema.ErrTruncated)
	doc := build(t, Options{IncludeRaw: true},
		ev(schema.KindTaskName, 0, 4).WithText("net"),
		ev(schema.KindTaskSwitchedIn, 2, 4),
		bad,
	)

	raw := lane(doc, PIDRaw, PhaseInstant)
	require.Len(t, raw, 4)
	assert.Equal(t, "metadata", raw[0].Cat)
	assert.Equal(t, map[string]any{"task_id": uint64(4), "name": "net"}, raw[0].Args)
	assert.Equal(t, "event", raw[1].Cat)
	assert.Equal(t, map[string]any{"task_id": uint64(4)}, raw[1].Args)
	assert.Equal(t, "invalid", raw[2].Cat)
	assert.Equal(t, "diagnostic", raw[3].Cat)
}

func TestBuild_DiagnosticsOnRawLane(t *testing.T) {
	doc := build(t, Options{},
		ev(schema.KindCurtaskDelay, 4, 1),
	)

	raw := lane(doc, PIDRaw, PhaseInstant)
	require.Len(t, raw, 1)
	assert.Equal(t, "diagnostic", raw[0].Cat)
	assert.Contains(t, raw[0].Name, "no current task")
}

func TestBuild_Markers(t *testing.T) {
	doc := build(t, Options{},
		ev(schema.KindTaskName, 0, 2).WithText("net"),
		ev(schema.KindEvtmarkerName, 0, 1).WithText("phase"),
		ev(schema.KindEvtmarkerBegin, 1, 1).WithText("init"),
		ev(schema.KindEvtmarker, 2, 1),
		ev(schema.KindValmarker, 3, 7, schema.Signed(-4)),
		ev(schema.KindTaskEvtmarkerName, 0, 5, 2).WithText("rx"),
		ev(schema.KindTaskEvtmarkerEnd, 6, 5),
	)

	assert.Equal(t, []string{"phase", "Value #7", "net: rx"}, threadNames(doc, PIDMarkers))

	begins := lane(doc, PIDMarkers, PhaseBegin)
	require.Len(t, begins, 1)
	assert.Equal(t, "init", begins[0].Name)

	ends := lane(doc, PIDMarkers, PhaseEnd)
	require.Len(t, ends, 1, "unmatched end is dropped, open begin closed at trace end")
	assert.Equal(t, uint64(6), ends[0].TS)

	instants := lane(doc, PIDMarkers, PhaseInstant)
	require.Len(t, instants, 1)
	assert.Equal(t, "phase", instants[0].Name)
	assert.Equal(t, ScopeThread, instants[0].Scope)

	values := lane(doc, PIDMarkers, PhaseCounter)
	require.Len(t, values, 2)
	assert.Equal(t, int64(-4), values[0].Args["value"])
}

func TestBuild_Deterministic(t *testing.T) {
	events := []schema.Event{
		ev(schema.KindTaskCreated, 0, 3, 1).WithText("a"),
		ev(schema.KindTaskCreated, 0, 1, 2).WithText("b"),
		ev(schema.KindTaskSwitchedIn, 1, 3),
		ev(schema.KindQueueSend, 2, 8, 1),
		ev(schema.KindTaskSwitchedIn, 3, 1),
	}

	encode := func() []byte {
		s := interp.New(zerolog.Nop()).Replay(events)
		var buf bytes.Buffer
		_, err := Build(s, events, Options{IncludeRaw: true}).WriteTo(&buf)
		require.NoError(t, err)
		return buf.Bytes()
	}

	first := encode()
	assert.Equal(t, first, encode())
	assert.True(t, json.Valid(first))
	assert.Equal(t, []string{"a", "b"}, threadNames(build(t, Options{}, events...), PIDOverview))
}

func TestWriteIndented(t *testing.T) {
	doc := build(t, Options{}, ev(schema.KindTaskSwitchedIn, 1, 1))

	var buf bytes.Buffer
	_, err := doc.WriteIndented(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "\n  \"traceEvents\": [")
}

func TestWriteFile(t *testing.T) {
	doc := build(t, Options{}, ev(schema.KindTaskSwitchedIn, 1, 1))
	path := filepath.Join(t.TempDir(), "trace.json")

	require.NoError(t, doc.WriteFile(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Len(t, back.TraceEvents, len(doc.TraceEvents))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary file left behind")
}

func TestWriteFile_MissingDir(t *testing.T) {
	doc := build(t, Options{})
	err := doc.WriteFile(filepath.Join(t.TempDir(), "nope", "trace.json"), false)
	assert.Error(t, err)
}
