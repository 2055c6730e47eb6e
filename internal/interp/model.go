package interp

import (
	"math"
	"math/bits"

	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/pkg/types"
)

// Transition is a state a task will enter at a time not yet known.
type Transition struct {
	State types.TaskState
	Note  Note
}

// StateEntry is one committed step of a task history.
type StateEntry struct {
	TS    types.Timestamp
	State types.TaskState
	Note  Note
}

// Sample is one point of a numeric series.
type Sample struct {
	TS    types.Timestamp
	Value int64
}

// Task is the reconstructed record of one FreeRTOS task.
type Task struct {
	ID    types.TaskID
	Name  string
	Idle  bool
	Timer bool

	States     []StateEntry
	Priorities []Sample

	// Pending is committed by the next task switch.
	Pending Transition
}

func newTask(id types.TaskID) *Task {
	return &Task{ID: id, Pending: Transition{State: types.StateReady}}
}

// LastState returns the last committed state.
func (t *Task) LastState() (types.TaskState, bool) {
	if len(t.States) == 0 {
		return "", false
	}
	return t.States[len(t.States)-1].State, true
}

// Activity is one ISR enter or exit.
type Activity struct {
	TS    types.Timestamp
	Enter bool
}

// Interrupt is the record of one interrupt source.
type Interrupt struct {
	ID       types.IsrID
	Name     string
	Activity []Activity
}

func newInterrupt(id types.IsrID) *Interrupt {
	return &Interrupt{ID: id}
}

// Resource is the record of a queue, semaphore or mutex.
type Resource struct {
	ID          types.ResourceID
	Name        string
	Kind        types.ResourceKind
	HasKind     bool
	Capacity    uint32
	HasCapacity bool
	Occupancy   []Sample
}

func newResource(id types.ResourceID) *Resource {
	return &Resource{ID: id}
}

// Level returns the current occupancy, 0 before the first sample.
func (r *Resource) Level() int64 {
	if len(r.Occupancy) == 0 {
		return 0
	}
	return r.Occupancy[len(r.Occupancy)-1].Value
}

// IsMutex reports whether occupancy reads as a lock state.
func (r *Resource) IsMutex() bool {
	return r.HasKind && r.Kind.IsMutex()
}

// MarkerPhase is the shape of one event marker occurrence.
type MarkerPhase uint8

const (
	MarkerInstant MarkerPhase = iota
	MarkerBegin
	MarkerEnd
)

// MarkerEvent is one occurrence of an event marker.
type MarkerEvent struct {
	TS    types.Timestamp
	Phase MarkerPhase
	Msg   string
}

// Marker is a user event or value marker. Task markers belong to the task
// named in their declaration.
type Marker struct {
	ID      types.MarkerID
	Name    string
	Task    types.TaskID
	HasTask bool

	Events []MarkerEvent
	Values []Sample
}

func newMarker(id types.MarkerID) *Marker {
	return &Marker{ID: id}
}

// Diagnostic is a recoverable anomaly found during replay.
type Diagnostic struct {
	TS      types.Timestamp
	Message string

	note Note // Set when Message names entities
}

// State is the result of a replay. It is owned by the Interpreter until
// replay ends and is read-only afterwards.
type State struct {
	Tasks      *Table[types.TaskID, Task]
	Interrupts *Table[types.IsrID, Interrupt]
	Resources  *Table[types.ResourceID, Resource]

	EventMarkers     *Table[types.MarkerID, Marker]
	ValueMarkers     *Table[types.MarkerID, Marker]
	TaskEventMarkers *Table[types.MarkerID, Marker]
	TaskValueMarkers *Table[types.MarkerID, Marker]

	Diagnostics []Diagnostic

	// Resolution is the number of nanoseconds per timestamp unit.
	Resolution uint64

	// LastTS is the latest timestamp of the trace; HasTS is false when no
	// timed event was seen.
	LastTS types.Timestamp
	HasTS  bool

	// Events counts handled events per kind, Invalid included.
	Events [256]int

	// Dropped is the total of reported dropped events.
	Dropped uint64
}

func newState() *State {
	return &State{
		Tasks:            NewTable(newTask),
		Interrupts:       NewTable(newInterrupt),
		Resources:        NewTable(newResource),
		EventMarkers:     NewTable(newMarker),
		ValueMarkers:     NewTable(newMarker),
		TaskEventMarkers: NewTable(newMarker),
		TaskValueMarkers: NewTable(newMarker),
		Resolution:       1,
	}
}

// Nanos converts device time units to nanoseconds. The product saturates
// at math.MaxUint64 instead of wrapping.
func (s *State) Nanos(ts types.Timestamp) uint64 {
	hi, lo := bits.Mul64(uint64(ts), s.Resolution)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// Count returns how many events of kind were handled.
func (s *State) Count(kind schema.Kind) int {
	return s.Events[kind]
}

// Total returns the number of handled events.
func (s *State) Total() int {
	n := 0
	for _, c := range s.Events {
		n += c
	}
	return n
}
