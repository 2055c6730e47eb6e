// ============================================================================
// frtrace State Interpreter - scheduler state reconstruction
// ============================================================================
//
// Package: internal/interp
// File: interp.go
// Purpose: Replay decoded events in capture order and rebuild the task,
//          interrupt and resource histories of the traced system
//
// Deferred transitions:
//   The kernel reports why a task will stop running (delay, block, suspend,
//   delete) before the context switch happens. The reason is kept as the
//   task's Pending transition and is committed with the timestamp of the
//   next task_switched_in:
//
//     ts=0   task_switched_in(1)     task 1: running@0, pending=ready
//     ts=10  curtask_block_on_...(9) task 1: pending=blocked(receive from 9)
//     ts=10  task_switched_in(2)     task 1: blocked@10   task 2: running@10
//
// Interrupts:
//   Single slot. Only one ISR is active at a time; entering another ISR
//   closes the active one at the same timestamp and records a diagnostic.
//
// Resources:
//   Occupancy is a running counter, +1 on send, -1 on receive. It is not
//   bounded; going below zero is kept and reported as a diagnostic.
//
// Ownership:
//   The State belongs to the Interpreter for the whole replay and is only
//   read once replay is over. Nothing here is safe for concurrent use.
//
// ============================================================================

package interp

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/pkg/types"
)

// dropCounterWidth is the bit width of the device drop counter.
const dropCounterWidth = 32

// Interpreter replays events into a State.
type Interpreter struct {
	state *State
	log   zerolog.Logger

	current    types.TaskID // Running task, valid when hasCurrent
	hasCurrent bool
	activeISR  types.IsrID // Active interrupt, valid when hasISR
	hasISR     bool

	dropCount uint32 // Last reported drop counter
	lastTS    types.Timestamp
	hasTS     bool
	cores     map[uint32]bool // Non-zero core ids already reported
}

// New creates an interpreter with an empty state.
func New(logger zerolog.Logger) *Interpreter {
	return &Interpreter{
		state: newState(),
		log:   logger.With().Str("component", "interp").Logger(),
		cores: make(map[uint32]bool),
	}
}

// Replay handles events in order and returns the final state.
func (in *Interpreter) Replay(events []schema.Event) *State {
	for _, ev := range events {
		in.Handle(ev)
	}
	return in.State()
}

// State returns the state built so far.
func (in *Interpreter) State() *State {
	for i, d := range in.state.Diagnostics {
		if !d.note.IsZero() {
			in.state.Diagnostics[i].Message = in.state.Render(d.note)
		}
	}
	in.state.LastTS = in.lastTS
	in.state.HasTS = in.hasTS
	return in.state
}

// Handle applies one event.
func (in *Interpreter) Handle(ev schema.Event) {
	in.state.Events[ev.Kind]++

	if ev.Kind == schema.KindInvalid {
		in.diag(ev.TS, "invalid event: %v", ev.Err)
		return
	}

	ts := in.observe(ev)

	switch ev.Kind {
	case schema.KindCoreID:
		in.coreID(ts, ev.U32(0))
	case schema.KindDroppedEvtCnt:
		in.dropped(ts, ev.U32(0))
	case schema.KindTSResolutionNS:
		in.resolution(ev.Args[0])

	case schema.KindTaskSwitchedIn:
		in.switchedIn(ts, types.TaskID(ev.U32(0)))
	case schema.KindTaskToRdyState, schema.KindTaskResumed, schema.KindTaskResumedFromISR:
		in.appendState(in.task(ev), ts, types.StateReady, Note{})
	case schema.KindTaskSuspended:
		in.leave(ts, types.TaskID(ev.U32(0)), types.StateSuspended)
	case schema.KindTaskDeleted:
		in.leave(ts, types.TaskID(ev.U32(0)), types.StateDeleted)
	case schema.KindCurtaskDelay:
		in.block(ts, ev.Kind, Note{Prefix: fmt.Sprintf("delay %d ticks", ev.U32(0))})
	case schema.KindCurtaskDelayUntil:
		in.block(ts, ev.Kind, Note{Prefix: fmt.Sprintf("delay until %d", ev.U32(0))})
	case schema.KindCurtaskBlockOnQueuePeek:
		in.block(ts, ev.Kind, blockNote("peek from ", ev))
	case schema.KindCurtaskBlockOnQueueSend:
		in.block(ts, ev.Kind, blockNote("send to ", ev))
	case schema.KindCurtaskBlockOnQueueReceive:
		in.block(ts, ev.Kind, blockNote("receive from ", ev))
	case schema.KindTaskPrioritySet, schema.KindTaskPriorityInherit, schema.KindTaskPriorityDisinherit:
		t := in.task(ev)
		t.Priorities = append(t.Priorities, Sample{TS: ts, Value: int64(ev.U32(1))})
	case schema.KindTaskCreated:
		t := in.task(ev)
		if ev.Str != "" {
			t.Name = ev.Str
		}
		t.Priorities = append(t.Priorities, Sample{TS: ts, Value: int64(ev.U32(1))})
	case schema.KindTaskName:
		in.task(ev).Name = ev.Str
	case schema.KindTaskIsIdleTask:
		in.task(ev).Idle = true
		in.coreID(ts, ev.U32(1))
	case schema.KindTaskIsTimerTask:
		in.task(ev).Timer = true

	case schema.KindISRName:
		in.state.Interrupts.Ensure(types.IsrID(ev.U32(0))).Name = ev.Str
	case schema.KindISREnter:
		in.isrEnter(ts, types.IsrID(ev.U32(0)))
	case schema.KindISRExit:
		in.isrExit(ts, types.IsrID(ev.U32(0)))

	case schema.KindQueueCreated:
		r := in.resource(ev)
		r.Capacity = ev.U32(1)
		r.HasCapacity = true
	case schema.KindQueueName:
		in.resource(ev).Name = ev.Str
	case schema.KindQueueKind:
		in.queueKind(ts, in.resource(ev), types.ResourceKind(ev.Args[1]))
	case schema.KindQueueSend, schema.KindQueueSendFromISR:
		r := in.resource(ev)
		in.setLevel(ts, r, r.Level()+1)
	case schema.KindQueueReceive, schema.KindQueueReceiveFromISR:
		r := in.resource(ev)
		in.setLevel(ts, r, r.Level()-1)
	case schema.KindQueueOverwrite, schema.KindQueueOverwriteFromISR:
		in.setLevel(ts, in.resource(ev), 1)
	case schema.KindQueueReset:
		in.setLevel(ts, in.resource(ev), 0)

	case schema.KindEvtmarkerName, schema.KindValmarkerName:
		in.markers(ev.Kind).Ensure(types.MarkerID(ev.U32(0))).Name = ev.Str
	case schema.KindTaskEvtmarkerName, schema.KindTaskValmarkerName:
		m := in.markers(ev.Kind).Ensure(types.MarkerID(ev.U32(0)))
		m.Name = ev.Str
		m.Task = types.TaskID(ev.U32(1))
		m.HasTask = true
	case schema.KindEvtmarker, schema.KindTaskEvtmarker:
		in.mark(ts, ev, MarkerInstant)
	case schema.KindEvtmarkerBegin, schema.KindTaskEvtmarkerBegin:
		in.mark(ts, ev, MarkerBegin)
	case schema.KindEvtmarkerEnd, schema.KindTaskEvtmarkerEnd:
		in.mark(ts, ev, MarkerEnd)
	case schema.KindValmarker, schema.KindTaskValmarker:
		m := in.markers(ev.Kind).Ensure(types.MarkerID(ev.U32(0)))
		m.Values = append(m.Values, Sample{TS: ts, Value: ev.S64(1)})

	case schema.KindEmpty:
		in.log.Warn().Uint64("ts", uint64(ts)).Msg("empty record")
		in.diag(ts, "empty record")

	default:
		in.diag(ts, "unhandled event kind %s", ev.Kind)
	}
}

// observe returns the timestamp to apply ev at. Timestamps never go
// backwards in the rebuilt histories.
func (in *Interpreter) observe(ev schema.Event) types.Timestamp {
	if !ev.HasTS {
		return in.lastTS
	}
	if in.hasTS && ev.TS < in.lastTS {
		in.diag(in.lastTS, "timestamp went backwards: %s at %d after %d", ev.Kind, ev.TS, in.lastTS)
		return in.lastTS
	}
	in.lastTS = ev.TS
	in.hasTS = true
	return ev.TS
}

func (in *Interpreter) diag(ts types.Timestamp, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	in.state.Diagnostics = append(in.state.Diagnostics, Diagnostic{TS: ts, Message: msg})
	in.log.Debug().Uint64("ts", uint64(ts)).Msg(msg)
}

// diagNote records a diagnostic whose text names entities. It is rendered
// again when the state is read, so late names apply.
func (in *Interpreter) diagNote(ts types.Timestamp, note Note) {
	msg := in.state.Render(note)
	in.state.Diagnostics = append(in.state.Diagnostics, Diagnostic{TS: ts, Message: msg, note: note})
	in.log.Debug().Uint64("ts", uint64(ts)).Msg(msg)
}

func (in *Interpreter) task(ev schema.Event) *Task {
	return in.state.Tasks.Ensure(types.TaskID(ev.U32(0)))
}

func (in *Interpreter) resource(ev schema.Event) *Resource {
	return in.state.Resources.Ensure(types.ResourceID(ev.U32(0)))
}

func (in *Interpreter) appendState(t *Task, ts types.Timestamp, state types.TaskState, note Note) {
	t.States = append(t.States, StateEntry{TS: ts, State: state, Note: note})
}

// ============================================================================
// Tasks
// ============================================================================

func (in *Interpreter) switchedIn(ts types.Timestamp, id types.TaskID) {
	if in.hasCurrent {
		prev := in.state.Tasks.Ensure(in.current)
		in.appendState(prev, ts, prev.Pending.State, prev.Pending.Note)
	}

	t := in.state.Tasks.Ensure(id)
	in.appendState(t, ts, types.StateRunning, Note{})
	t.Pending = Transition{State: types.StateReady}

	in.current = id
	in.hasCurrent = true
}

// leave handles suspend and delete. The running task only declares its next
// state; any other task changes state immediately.
func (in *Interpreter) leave(ts types.Timestamp, id types.TaskID, state types.TaskState) {
	var note Note
	if in.hasCurrent {
		note = Note{Prefix: "by ", Ref: TaskRef(in.current)}
	}

	t := in.state.Tasks.Ensure(id)
	if in.hasCurrent && id == in.current {
		t.Pending = Transition{State: state, Note: note}
		return
	}
	in.appendState(t, ts, state, note)
}

func (in *Interpreter) block(ts types.Timestamp, kind schema.Kind, note Note) {
	if !in.hasCurrent {
		in.diag(ts, "%s: current task event with no current task", kind)
		return
	}
	t := in.state.Tasks.Ensure(in.current)
	t.Pending = Transition{State: types.StateBlocked, Note: note}
}

func blockNote(prefix string, ev schema.Event) Note {
	return Note{
		Prefix: prefix,
		Ref:    ResourceRef(types.ResourceID(ev.U32(0))),
		Suffix: fmt.Sprintf(", wait %d ticks", ev.U32(1)),
	}
}

// ============================================================================
// Interrupts
// ============================================================================

func (in *Interpreter) isrEnter(ts types.Timestamp, id types.IsrID) {
	isr := in.state.Interrupts.Ensure(id)

	if in.hasISR {
		if in.activeISR == id {
			in.log.Debug().Uint32("isr", uint32(id)).Msg("duplicate isr_enter ignored")
			return
		}
		prev := in.state.Interrupts.Ensure(in.activeISR)
		prev.Activity = append(prev.Activity, Activity{TS: ts})
		in.diag(ts, "nested interrupt: isr %d entered while isr %d active", id, in.activeISR)
	}

	isr.Activity = append(isr.Activity, Activity{TS: ts, Enter: true})
	in.activeISR = id
	in.hasISR = true
}

func (in *Interpreter) isrExit(ts types.Timestamp, id types.IsrID) {
	if !in.hasISR || in.activeISR != id {
		return
	}
	isr, ok := in.state.Interrupts.Get(id)
	if !ok {
		return
	}
	isr.Activity = append(isr.Activity, Activity{TS: ts})
	in.hasISR = false
}

// ============================================================================
// Resources
// ============================================================================

func (in *Interpreter) setLevel(ts types.Timestamp, r *Resource, level int64) {
	if level < 0 {
		in.diagNote(ts, Note{
			Prefix: "occupancy of ",
			Ref:    ResourceRef(r.ID),
			Suffix: fmt.Sprintf(" went negative (%d)", level),
		})
	}
	r.Occupancy = append(r.Occupancy, Sample{TS: ts, Value: level})
}

func (in *Interpreter) queueKind(ts types.Timestamp, r *Resource, kind types.ResourceKind) {
	if !kind.Valid() {
		in.diag(ts, "queue %d: unknown kind %d", r.ID, uint8(kind))
		return
	}
	r.Kind = kind
	r.HasKind = true
}

// ============================================================================
// Markers
// ============================================================================

func (in *Interpreter) markers(kind schema.Kind) *Table[types.MarkerID, Marker] {
	switch kind {
	case schema.KindEvtmarkerName, schema.KindEvtmarker, schema.KindEvtmarkerBegin, schema.KindEvtmarkerEnd:
		return in.state.EventMarkers
	case schema.KindValmarkerName, schema.KindValmarker:
		return in.state.ValueMarkers
	case schema.KindTaskValmarkerName, schema.KindTaskValmarker:
		return in.state.TaskValueMarkers
	default:
		return in.state.TaskEventMarkers
	}
}

func (in *Interpreter) mark(ts types.Timestamp, ev schema.Event, phase MarkerPhase) {
	m := in.markers(ev.Kind).Ensure(types.MarkerID(ev.U32(0)))
	m.Events = append(m.Events, MarkerEvent{TS: ts, Phase: phase, Msg: ev.Str})
}

// ============================================================================
// Trace bookkeeping
// ============================================================================

// dropped applies a drop counter report. The counter is free running and
// wraps at 2^32.
func (in *Interpreter) dropped(ts types.Timestamp, count uint32) {
	delta := DropDelta(in.dropCount, count)
	if delta == 0 {
		return
	}
	in.dropCount = count
	in.state.Dropped += delta
	in.diag(ts, "%d events dropped", delta)
}

// DropDelta returns how many events were lost between two counter reports.
func DropDelta(prev, next uint32) uint64 {
	if next >= prev {
		return uint64(next - prev)
	}
	return uint64(next) + (1 << dropCounterWidth) - uint64(prev)
}

func (in *Interpreter) coreID(ts types.Timestamp, core uint32) {
	if core == 0 || in.cores[core] {
		return
	}
	in.cores[core] = true
	in.diag(ts, "events from core %d are merged into a single-core view", core)
}

func (in *Interpreter) resolution(nsPerTS uint64) {
	if nsPerTS == 0 {
		in.diag(in.lastTS, "ignoring zero timestamp resolution")
		return
	}
	if in.state.Resolution != 1 && in.state.Resolution != nsPerTS {
		in.log.Warn().
			Uint64("old", in.state.Resolution).
			Uint64("new", nsPerTS).
			Msg("timestamp resolution redeclared")
	}
	in.state.Resolution = nsPerTS
}
