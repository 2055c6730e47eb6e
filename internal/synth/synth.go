// ============================================================================
// frtrace Synthesiser - scripted FreeRTOS captures
// ============================================================================
//
// Package: internal/synth
// File: synth.go
// Purpose: Produce realistic, reproducible captures for demos, tests and
//          benchmarks without a target board
//
// A scenario declares its tasks, queues, one mutex, interrupts and markers,
// then runs a seeded random walk over the scheduler: context switches,
// delays, queue traffic that blocks when a queue is full or empty, ISRs that
// wake tasks, priority changes and marker ranges. The same Config always
// yields the same event stream.
//
// ============================================================================

package synth

import (
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/internal/storage/capture"
	"github.com/ChuLiYu/frtrace/pkg/types"
)

// ErrInvalidScenario reports a Config that cannot be generated
var ErrInvalidScenario = errors.New("synth: invalid scenario")

// Id bases keep the entity kinds apart in a capture dump.
const (
	queueBase = 100
	mutexID   = 200
)

// damagedFrame is a stuffed frame whose chain runs past its end.
var damagedFrame = []byte{0x7e, 0x11, 0x22, capture.Delimiter}

var taskNames = []string{"sensor", "control", "logger", "net", "ui", "storage", "radio", "shell"}

// Config describes a scenario.
type Config struct {
	Tasks      int    // Application tasks, the idle task is added
	Queues     int    // Message queues
	ISRs       int    // Interrupt sources
	Steps      int    // Scheduler steps
	Seed       int64  // Random walk seed
	Resolution uint64 // Nanoseconds per timestamp unit, 0 omits the record
	Corrupt    int    // Damaged frames spread over the capture
}

// Default returns a small scenario.
func Default() Config {
	return Config{
		Tasks:      3,
		Queues:     2,
		ISRs:       1,
		Steps:      200,
		Seed:       1,
		Resolution: 1000,
	}
}

// Validate checks the scenario bounds.
func (c Config) Validate() error {
	switch {
	case c.Tasks < 1 || c.Tasks > len(taskNames):
		return fmt.Errorf("%w: tasks must be between 1 and %d", ErrInvalidScenario, len(taskNames))
	case c.Queues < 0 || c.ISRs < 0 || c.Steps < 0 || c.Corrupt < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidScenario)
	}
	return nil
}

type queue struct {
	id       types.ResourceID
	capacity int
	level    int
}

type generator struct {
	cfg    Config
	rng    *rand.Rand
	ts     types.Timestamp
	out    []schema.Event
	tasks  []types.TaskID // Application tasks, then idle
	cur    types.TaskID
	queues []*queue
	locked bool
	inMark bool
}

// Generate runs the scenario and returns its events in capture order.
func Generate(cfg Config) ([]schema.Event, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
	g.declare()
	for i := 0; i < cfg.Steps; i++ {
		g.step()
	}
	return g.out, nil
}

func (g *generator) emit(kind schema.Kind, args ...uint64) {
	g.out = append(g.out, schema.Make(kind, g.ts, args...))
}

func (g *generator) emitText(kind schema.Kind, text string, args ...uint64) {
	g.out = append(g.out, schema.Make(kind, g.ts, args...).WithText(text))
}

func (g *generator) tick() {
	g.ts += types.Timestamp(1 + g.rng.Intn(40))
}

func (g *generator) declare() {
	if g.cfg.Resolution > 0 {
		g.emit(schema.KindTSResolutionNS, g.cfg.Resolution)
	}
	g.emit(schema.KindCoreID, 0)

	for i := 0; i < g.cfg.Tasks; i++ {
		id := types.TaskID(i + 1)
		g.tasks = append(g.tasks, id)
		g.emitText(schema.KindTaskCreated, taskNames[i], uint64(id), uint64(1+i%3))
	}
	idle := types.TaskID(g.cfg.Tasks + 1)
	g.tasks = append(g.tasks, idle)
	g.emitText(schema.KindTaskCreated, "IDLE", uint64(idle), 0)
	g.emit(schema.KindTaskIsIdleTask, uint64(idle), 0)

	for i := 0; i < g.cfg.Queues; i++ {
		q := &queue{id: types.ResourceID(queueBase + i), capacity: 2 + i*2}
		g.queues = append(g.queues, q)
		g.emit(schema.KindQueueCreated, uint64(q.id), uint64(q.capacity))
		g.emitText(schema.KindQueueName, fmt.Sprintf("q%d", i), uint64(q.id))
		g.emit(schema.KindQueueKind, uint64(q.id), uint64(types.KindQueue))
	}

	g.emit(schema.KindQueueCreated, mutexID, 1)
	g.emitText(schema.KindQueueName, "lock", mutexID)
	g.emit(schema.KindQueueKind, mutexID, uint64(types.KindMutex))
	g.emit(schema.KindQueueSend, mutexID, 1)

	for i := 0; i < g.cfg.ISRs; i++ {
		g.emitText(schema.KindISRName, fmt.Sprintf("irq%d", i), uint64(i+1))
	}

	g.emitText(schema.KindEvtmarkerName, "cycle", 1)
	g.emitText(schema.KindValmarkerName, "load", 1)

	g.cur = g.tasks[0]
	g.emit(schema.KindTaskSwitchedIn, uint64(g.cur))
}

// switchTo runs another task, never the current one.
func (g *generator) switchTo() {
	next := g.tasks[g.rng.Intn(len(g.tasks))]
	if next == g.cur {
		next = g.tasks[(g.rng.Intn(len(g.tasks)-1)+indexOf(g.tasks, g.cur)+1)%len(g.tasks)]
	}
	g.emit(schema.KindTaskSwitchedIn, uint64(next))
	g.cur = next
}

func indexOf(ids []types.TaskID, id types.TaskID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return 0
}

func (g *generator) step() {
	g.tick()

	switch g.rng.Intn(10) {
	case 0:
		g.emit(schema.KindCurtaskDelay, uint64(1+g.rng.Intn(50)))
		g.switchTo()
	case 1:
		g.send()
	case 2:
		g.receive()
	case 3:
		g.interrupt()
	case 4:
		g.mutex()
	case 5:
		id := g.tasks[g.rng.Intn(len(g.tasks)-1)]
		g.emit(schema.KindTaskPrioritySet, uint64(id), uint64(1+g.rng.Intn(5)))
	case 6:
		g.marker()
	default:
		g.switchTo()
	}
}

func (g *generator) pickQueue() *queue {
	if len(g.queues) == 0 {
		return nil
	}
	return g.queues[g.rng.Intn(len(g.queues))]
}

func (g *generator) send() {
	q := g.pickQueue()
	if q == nil {
		return
	}
	if q.level == q.capacity {
		g.emit(schema.KindCurtaskBlockOnQueueSend, uint64(q.id), uint64(10+g.rng.Intn(90)))
		g.switchTo()
		return
	}
	q.level++
	g.emit(schema.KindQueueSend, uint64(q.id), uint64(q.level))
}

func (g *generator) receive() {
	q := g.pickQueue()
	if q == nil {
		return
	}
	if q.level == 0 {
		g.emit(schema.KindCurtaskBlockOnQueueReceive, uint64(q.id), uint64(10+g.rng.Intn(90)))
		g.switchTo()
		return
	}
	q.level--
	g.emit(schema.KindQueueReceive, uint64(q.id), uint64(q.level))
}

func (g *generator) interrupt() {
	if g.cfg.ISRs == 0 {
		return
	}
	isr := uint64(1 + g.rng.Intn(g.cfg.ISRs))
	g.emit(schema.KindISREnter, isr)
	g.ts++
	if q := g.pickQueue(); q != nil && q.level < q.capacity {
		q.level++
		g.emit(schema.KindQueueSendFromISR, uint64(q.id), uint64(q.level))
	}
	g.emit(schema.KindTaskToRdyState, uint64(g.tasks[g.rng.Intn(len(g.tasks)-1)]))
	g.ts += types.Timestamp(1 + g.rng.Intn(3))
	g.emit(schema.KindISRExit, isr)
}

func (g *generator) mutex() {
	if g.locked {
		g.emit(schema.KindQueueSend, mutexID, 1)
	} else {
		g.emit(schema.KindQueueReceive, mutexID, 0)
	}
	g.locked = !g.locked
}

func (g *generator) marker() {
	if g.inMark {
		g.emit(schema.KindEvtmarkerEnd, 1)
	} else {
		g.emitText(schema.KindEvtmarkerBegin, fmt.Sprintf("cycle @%d", g.ts), 1)
	}
	g.inMark = !g.inMark
	g.emit(schema.KindValmarker, 1, schema.Signed(int64(g.rng.Intn(100))))
}

// Write encodes events as a capture. When damaged > 0 that many broken
// frames are spread evenly between the events.
func Write(w io.Writer, enc capture.Encoding, events []schema.Event, damaged int) error {
	cw, err := capture.NewWriter(w, enc, capture.DefaultLineWidth)
	if err != nil {
		return err
	}

	every := 0
	if damaged > 0 {
		every = len(events)/(damaged+1) + 1
	}

	written := 0
	for i, ev := range events {
		payload, err := schema.Marshal(ev)
		if err != nil {
			return fmt.Errorf("synth: event %d: %w", i, err)
		}
		if err := cw.WriteFrame(payload); err != nil {
			return err
		}
		if every > 0 && written < damaged && (i+1)%every == 0 {
			if err := cw.WriteRaw(damagedFrame); err != nil {
				return err
			}
			written++
		}
	}
	for ; written < damaged; written++ {
		if err := cw.WriteRaw(damagedFrame); err != nil {
			return err
		}
	}
	return cw.Close()
}

// Encode returns events as raw capture bytes.
func Encode(events []schema.Event) ([]byte, error) {
	var buf []byte
	for i, ev := range events {
		payload, err := schema.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("synth: event %d: %w", i, err)
		}
		buf, err = capture.AppendFrame(buf, payload)
		if err != nil {
			return nil, fmt.Errorf("synth: event %d: %w", i, err)
		}
	}
	return buf, nil
}
