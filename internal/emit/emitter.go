package emit

import (
	"fmt"

	"github.com/ChuLiYu/frtrace/internal/interp"
	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/pkg/types"
)

// Lane process ids.
const (
	PIDRaw        = 0
	PIDOverview   = 1
	PIDStates     = 2
	PIDPriorities = 3
	PIDInterrupts = 4
	PIDResources  = 5
	PIDMarkers    = 6
)

var laneNames = []struct {
	pid  int
	name string
}{
	{PIDOverview, "OVERVIEW: CURRENTLY RUNNING"},
	{PIDStates, "TASK STATES"},
	{PIDPriorities, "TASK PRIORITIES"},
	{PIDInterrupts, "INTERRUPTS"},
	{PIDResources, "QUEUES/SEMAPHORES/MUTEX"},
	{PIDMarkers, "MARKERS"},
}

// Options tune the document.
type Options struct {
	// IncludeRaw adds one global instant per decoded event on lane 0.
	IncludeRaw bool
}

type builder struct {
	s      *interp.State
	out    []Event
	lastTS uint64
}

// Build projects a replayed state into a trace document. events are the
// decoded events the state was replayed from and feed the raw lane only.
func Build(s *interp.State, events []schema.Event, opts Options) *Document {
	if s.Total() == 0 && len(events) == 0 {
		return &Document{TraceEvents: []Event{}}
	}

	b := &builder{s: s, lastTS: s.Nanos(s.LastTS)}

	if opts.IncludeRaw {
		b.raw(events)
	}
	b.diagnostics()

	for _, l := range laneNames {
		b.out = append(b.out, Event{
			Phase: PhaseMetadata,
			PID:   l.pid,
			Name:  "process_name",
			Args:  map[string]any{"name": l.name},
		})
	}

	b.overview()
	b.states()
	b.priorities()
	b.interrupts()
	b.resources()
	b.markers()

	return &Document{TraceEvents: b.out}
}

func (b *builder) ts(ts types.Timestamp) uint64 {
	return b.s.Nanos(ts)
}

func (b *builder) threadName(pid int, id uint32, name string) {
	b.out = append(b.out, Event{
		Phase: PhaseMetadata,
		PID:   pid,
		TID:   tid(id),
		Name:  "thread_name",
		Args:  map[string]any{"name": name},
	})
}

func (b *builder) begin(pid int, id uint32, ts uint64, name, cat string) {
	b.out = append(b.out, Event{Phase: PhaseBegin, PID: pid, TID: tid(id), TS: ts, Name: name, Cat: cat})
}

func (b *builder) end(pid int, id uint32, ts uint64) {
	b.out = append(b.out, Event{Phase: PhaseEnd, PID: pid, TID: tid(id), TS: ts})
}

// counter writes a series followed by a copy of its last value at the end
// of the trace.
func (b *builder) counter(pid int, id uint32, name, prop string, samples []interp.Sample) {
	for _, smp := range samples {
		b.out = append(b.out, Event{
			Phase: PhaseCounter,
			PID:   pid,
			TID:   tid(id),
			TS:    b.ts(smp.TS),
			Name:  name,
			Args:  map[string]any{prop: smp.Value},
		})
	}
	if len(samples) > 0 {
		b.out = append(b.out, Event{
			Phase: PhaseCounter,
			PID:   pid,
			TID:   tid(id),
			TS:    b.lastTS,
			Name:  name,
			Args:  map[string]any{prop: samples[len(samples)-1].Value},
		})
	}
}

// ============================================================================
// Lane 0
// ============================================================================

func (b *builder) raw(events []schema.Event) {
	var last types.Timestamp
	for _, ev := range events {
		ts := last
		if ev.HasTS {
			ts = ev.TS
			last = ev.TS
		}
		b.out = append(b.out, Event{
			Phase: PhaseInstant,
			PID:   PIDRaw,
			TS:    b.ts(ts),
			Name:  ev.String(),
			Cat:   rawCategory(ev),
			Args:  ev.Fields(),
			Scope: ScopeGlobal,
		})
	}
}

func rawCategory(ev schema.Event) string {
	switch {
	case ev.Kind == schema.KindInvalid:
		return "invalid"
	case ev.IsMeta():
		return "metadata"
	}
	return "event"
}

func (b *builder) diagnostics() {
	for _, d := range b.s.Diagnostics {
		b.out = append(b.out, Event{
			Phase: PhaseInstant,
			PID:   PIDRaw,
			TS:    b.ts(d.TS),
			Name:  "diagnostic: " + d.Message,
			Cat:   "diagnostic",
			Scope: ScopeGlobal,
		})
	}
}

// ============================================================================
// Tasks
// ============================================================================

func (b *builder) taskLabel(t *interp.Task) string {
	name := b.s.TaskName(t.ID)
	switch {
	case t.Idle:
		return name + " [idle]"
	case t.Timer:
		return name + " [timer]"
	}
	return name
}

func (b *builder) overview() {
	for id, t := range b.s.Tasks.All() {
		b.threadName(PIDOverview, uint32(id), b.taskLabel(t))

		open := false
		for _, e := range t.States {
			running := e.State == types.StateRunning
			switch {
			case running && !open:
				b.begin(PIDOverview, uint32(id), b.ts(e.TS), "running", "running")
				open = true
			case !running && open:
				b.end(PIDOverview, uint32(id), b.ts(e.TS))
				open = false
			}
		}
		if open {
			b.end(PIDOverview, uint32(id), b.lastTS)
		}
	}
}

func (b *builder) states() {
	for id, t := range b.s.Tasks.All() {
		b.threadName(PIDStates, uint32(id), b.taskLabel(t)+" State")

		for i, e := range t.States {
			ts := b.ts(e.TS)
			if i > 0 {
				b.end(PIDStates, uint32(id), ts)
			}
			b.begin(PIDStates, uint32(id), ts, b.s.Label(e), string(e.State))
		}
		if len(t.States) > 0 {
			b.end(PIDStates, uint32(id), b.lastTS)
		}
	}
}

func (b *builder) priorities() {
	for id, t := range b.s.Tasks.All() {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("Task #%d", id)
		}
		b.threadName(PIDPriorities, uint32(id), name)
		b.counter(PIDPriorities, uint32(id), name, "priority", t.Priorities)
	}
}

// ============================================================================
// Interrupts and resources
// ============================================================================

func (b *builder) interrupts() {
	for id, isr := range b.s.Interrupts.All() {
		name := isr.Name
		if name == "" {
			name = fmt.Sprintf("ISR #%d", id)
		}
		b.threadName(PIDInterrupts, uint32(id), name)

		open := false
		for _, a := range isr.Activity {
			if a.Enter {
				b.begin(PIDInterrupts, uint32(id), b.ts(a.TS), name, name)
				open = true
			} else if open {
				b.end(PIDInterrupts, uint32(id), b.ts(a.TS))
				open = false
			}
		}
		if open {
			b.end(PIDInterrupts, uint32(id), b.lastTS)
		}
	}
}

func (b *builder) resources() {
	for id, r := range b.s.Resources.All() {
		name := b.s.ResourceName(id)
		b.threadName(PIDResources, uint32(id), name)

		if !r.IsMutex() {
			b.counter(PIDResources, uint32(id), name, "state", r.Occupancy)
			continue
		}

		for i, smp := range r.Occupancy {
			ts := b.ts(smp.TS)
			if i > 0 {
				b.end(PIDResources, uint32(id), ts)
			}
			label := "unlocked"
			if smp.Value == 0 {
				label = "locked"
			}
			b.begin(PIDResources, uint32(id), ts, label, "mutex")
		}
		if len(r.Occupancy) > 0 {
			b.end(PIDResources, uint32(id), b.lastTS)
		}
	}
}

// ============================================================================
// Markers
// ============================================================================

func (b *builder) markers() {
	var next uint32

	lane := func(m *interp.Marker, fallback string) uint32 {
		next++
		name := b.markerName(m, fallback)
		if m.HasTask {
			name = b.s.TaskName(m.Task) + ": " + name
		}
		b.threadName(PIDMarkers, next, name)
		return next
	}

	for _, m := range b.s.EventMarkers.All() {
		b.markerEvents(lane(m, "Marker"), m)
	}
	for _, m := range b.s.ValueMarkers.All() {
		id := lane(m, "Value")
		b.counter(PIDMarkers, id, b.markerName(m, "Value"), "value", m.Values)
	}
	for _, m := range b.s.TaskEventMarkers.All() {
		b.markerEvents(lane(m, "Marker"), m)
	}
	for _, m := range b.s.TaskValueMarkers.All() {
		id := lane(m, "Value")
		b.counter(PIDMarkers, id, b.markerName(m, "Value"), "value", m.Values)
	}
}

func (b *builder) markerName(m *interp.Marker, fallback string) string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("%s #%d", fallback, m.ID)
}

func (b *builder) markerEvents(id uint32, m *interp.Marker) {
	depth := 0
	for _, e := range m.Events {
		ts := b.ts(e.TS)
		msg := e.Msg
		if msg == "" {
			msg = b.markerName(m, "Marker")
		}
		switch e.Phase {
		case interp.MarkerInstant:
			b.out = append(b.out, Event{
				Phase: PhaseInstant,
				PID:   PIDMarkers,
				TID:   tid(id),
				TS:    ts,
				Name:  msg,
				Cat:   "marker",
				Scope: ScopeThread,
			})
		case interp.MarkerBegin:
			b.begin(PIDMarkers, id, ts, msg, "marker")
			depth++
		case interp.MarkerEnd:
			if depth == 0 {
				continue
			}
			b.end(PIDMarkers, id, ts)
			depth--
		}
	}
	for ; depth > 0; depth-- {
		b.end(PIDMarkers, id, b.lastTS)
	}
}
