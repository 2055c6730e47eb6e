// Package schema decodes FreeRTOS trace records.
//
// A record is one de-stuffed frame payload: a one byte kind tag, a varint
// timestamp for timed kinds, then the kind's fields in the order listed in
// its Spec. The table below must match the device-side encoder.
package schema

import "fmt"

// Kind is the wire tag of a record.
type Kind uint8

const (
	KindCoreID Kind = iota
	KindDroppedEvtCnt
	KindTSResolutionNS
	KindTaskSwitchedIn
	KindTaskToRdyState
	KindTaskResumed
	KindTaskResumedFromISR
	KindTaskSuspended
	KindCurtaskDelay
	KindCurtaskDelayUntil
	KindTaskPrioritySet
	KindTaskPriorityInherit
	KindTaskPriorityDisinherit
	KindTaskCreated
	KindTaskName
	KindTaskIsIdleTask
	KindTaskIsTimerTask
	KindTaskDeleted
	KindISRName
	KindISREnter
	KindISRExit
	KindQueueCreated
	KindQueueName
	KindQueueKind
	KindQueueSend
	KindQueueSendFromISR
	KindQueueOverwrite
	KindQueueOverwriteFromISR
	KindQueueReceive
	KindQueueReceiveFromISR
	KindQueueReset
	KindCurtaskBlockOnQueuePeek
	KindCurtaskBlockOnQueueSend
	KindCurtaskBlockOnQueueReceive
	KindEvtmarkerName
	KindEvtmarker
	KindEvtmarkerBegin
	KindEvtmarkerEnd
	KindValmarkerName
	KindValmarker
	KindTaskEvtmarkerName
	KindTaskEvtmarker
	KindTaskEvtmarkerBegin
	KindTaskEvtmarkerEnd
	KindTaskValmarkerName
	KindTaskValmarker

	// KindEmpty is a filler record with no fields.
	KindEmpty Kind = 0x7f

	// KindInvalid never appears on the wire. It marks a record that could
	// not be decoded.
	KindInvalid Kind = 0xff
)

// ArgType is the wire encoding of one field.
type ArgType uint8

const (
	ArgU8  ArgType = iota // single raw byte
	ArgU32                // varint, at most 5 bytes
	ArgU64                // varint, at most 10 bytes
	ArgS64                // sign-magnitude varint
	ArgStr                // varint length, then bytes
)

// Arg names one field of a record.
type Arg struct {
	Name string
	Type ArgType
}

// Spec describes the layout of one kind.
type Spec struct {
	// Name of the record, as written by the device-side generator.
	Name string

	// Args lists the fields that follow the timestamp. At most one of them
	// is ArgStr.
	Args []Arg

	// IsTimed is true for trace events and false for metadata records,
	// which carry no timestamp.
	IsTimed bool
}

// MaxArgs is the largest field count of any kind.
const MaxArgs = 3

func u32(name string) Arg { return Arg{Name: name, Type: ArgU32} }
func str(name string) Arg { return Arg{Name: name, Type: ArgStr} }

var (
	argTask     = []Arg{u32("task_id")}
	argTaskPrio = []Arg{u32("task_id"), u32("priority")}
	argISR      = []Arg{u32("isr_id")}
	argQueue    = []Arg{u32("queue_id")}
	argQueueLen = []Arg{u32("queue_id"), u32("len_after")}
	argQueueBlk = []Arg{u32("queue_id"), u32("ticks_to_wait")}
	argIDName   = []Arg{u32("id"), str("name")}
	argIDMsg    = []Arg{u32("id"), str("msg")}
	argID       = []Arg{u32("id")}
	argIDValue  = []Arg{u32("id"), {Name: "value", Type: ArgS64}}
	argIDTask   = []Arg{u32("id"), u32("task_id"), str("name")}
)

var specs = map[Kind]Spec{
	KindCoreID:                     {Name: "core_id", IsTimed: true, Args: []Arg{u32("core_id")}},
	KindDroppedEvtCnt:              {Name: "dropped_evt_cnt", IsTimed: true, Args: []Arg{u32("cnt")}},
	KindTSResolutionNS:             {Name: "ts_resolution_ns", Args: []Arg{{Name: "ns_per_ts", Type: ArgU64}}},
	KindTaskSwitchedIn:             {Name: "task_switched_in", IsTimed: true, Args: argTask},
	KindTaskToRdyState:             {Name: "task_to_rdy_state", IsTimed: true, Args: argTask},
	KindTaskResumed:                {Name: "task_resumed", IsTimed: true, Args: argTask},
	KindTaskResumedFromISR:         {Name: "task_resumed_from_isr", IsTimed: true, Args: argTask},
	KindTaskSuspended:              {Name: "task_suspended", IsTimed: true, Args: argTask},
	KindCurtaskDelay:               {Name: "curtask_delay", IsTimed: true, Args: []Arg{u32("ticks")}},
	KindCurtaskDelayUntil:          {Name: "curtask_delay_until", IsTimed: true, Args: []Arg{u32("time_to_wake")}},
	KindTaskPrioritySet:            {Name: "task_priority_set", IsTimed: true, Args: argTaskPrio},
	KindTaskPriorityInherit:        {Name: "task_priority_inherit", IsTimed: true, Args: argTaskPrio},
	KindTaskPriorityDisinherit:     {Name: "task_priority_disinherit", IsTimed: true, Args: argTaskPrio},
	KindTaskCreated:                {Name: "task_created", IsTimed: true, Args: []Arg{u32("task_id"), u32("priority"), str("name")}},
	KindTaskName:                   {Name: "task_name", Args: []Arg{u32("task_id"), str("name")}},
	KindTaskIsIdleTask:             {Name: "task_is_idle_task", Args: []Arg{u32("task_id"), u32("core_id")}},
	KindTaskIsTimerTask:            {Name: "task_is_timer_task", Args: argTask},
	KindTaskDeleted:                {Name: "task_deleted", IsTimed: true, Args: argTask},
	KindISRName:                    {Name: "isr_name", Args: []Arg{u32("isr_id"), str("name")}},
	KindISREnter:                   {Name: "isr_enter", IsTimed: true, Args: argISR},
	KindISRExit:                    {Name: "isr_exit", IsTimed: true, Args: argISR},
	KindQueueCreated:               {Name: "queue_created", IsTimed: true, Args: []Arg{u32("queue_id"), u32("capacity")}},
	KindQueueName:                  {Name: "queue_name", Args: []Arg{u32("queue_id"), str("name")}},
	KindQueueKind:                  {Name: "queue_kind", Args: []Arg{u32("queue_id"), {Name: "kind", Type: ArgU8}}},
	KindQueueSend:                  {Name: "queue_send", IsTimed: true, Args: argQueueLen},
	KindQueueSendFromISR:           {Name: "queue_send_from_isr", IsTimed: true, Args: argQueueLen},
	KindQueueOverwrite:             {Name: "queue_overwrite", IsTimed: true, Args: argQueueLen},
	KindQueueOverwriteFromISR:      {Name: "queue_overwrite_from_isr", IsTimed: true, Args: argQueueLen},
	KindQueueReceive:               {Name: "queue_receive", IsTimed: true, Args: argQueueLen},
	KindQueueReceiveFromISR:        {Name: "queue_receive_from_isr", IsTimed: true, Args: argQueueLen},
	KindQueueReset:                 {Name: "queue_reset", IsTimed: true, Args: argQueue},
	KindCurtaskBlockOnQueuePeek:    {Name: "curtask_block_on_queue_peek", IsTimed: true, Args: argQueueBlk},
	KindCurtaskBlockOnQueueSend:    {Name: "curtask_block_on_queue_send", IsTimed: true, Args: argQueueBlk},
	KindCurtaskBlockOnQueueReceive: {Name: "curtask_block_on_queue_receive", IsTimed: true, Args: argQueueBlk},
	KindEvtmarkerName:              {Name: "evtmarker_name", Args: argIDName},
	KindEvtmarker:                  {Name: "evtmarker", IsTimed: true, Args: argIDMsg},
	KindEvtmarkerBegin:             {Name: "evtmarker_begin", IsTimed: true, Args: argIDMsg},
	KindEvtmarkerEnd:               {Name: "evtmarker_end", IsTimed: true, Args: argID},
	KindValmarkerName:              {Name: "valmarker_name", Args: argIDName},
	KindValmarker:                  {Name: "valmarker", IsTimed: true, Args: argIDValue},
	KindTaskEvtmarkerName:          {Name: "task_evtmarker_name", Args: argIDTask},
	KindTaskEvtmarker:              {Name: "task_evtmarker", IsTimed: true, Args: argIDMsg},
	KindTaskEvtmarkerBegin:         {Name: "task_evtmarker_begin", IsTimed: true, Args: argIDMsg},
	KindTaskEvtmarkerEnd:           {Name: "task_evtmarker_end", IsTimed: true, Args: argID},
	KindTaskValmarkerName:          {Name: "task_valmarker_name", Args: argIDTask},
	KindTaskValmarker:              {Name: "task_valmarker", IsTimed: true, Args: argIDValue},
	KindEmpty:                      {Name: "empty"},
}

// Spec returns the layout of k. KindInvalid and unknown tags have none.
func (k Kind) Spec() (Spec, bool) {
	s, ok := specs[k]
	return s, ok
}

// IsTimed reports whether records of this kind carry a timestamp.
func (k Kind) IsTimed() bool {
	return specs[k].IsTimed
}

func (k Kind) String() string {
	if k == KindInvalid {
		return "invalid"
	}
	if s, ok := specs[k]; ok {
		return s.Name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Kinds returns every wire kind in tag order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(specs))
	for k := KindCoreID; k <= KindTaskValmarker; k++ {
		kinds = append(kinds, k)
	}
	return append(kinds, KindEmpty)
}
