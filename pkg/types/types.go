// Package types defines the core domain model shared by the frtrace packages.
package types

import "fmt"

// Timestamp is a raw device timestamp. It is in nanoseconds unless the
// capture declares a different resolution.
type Timestamp uint64

// TaskID identifies a FreeRTOS task for the lifetime of the capture.
type TaskID uint32

// IsrID identifies an interrupt source.
type IsrID uint32

// ResourceID identifies a queue, semaphore or mutex.
type ResourceID uint32

// MarkerID identifies a user event or value marker.
type MarkerID uint32

// TaskState is one state of a task history.
type TaskState string

const (
	StateRunning   TaskState = "running"   // task owns the CPU
	StateReady     TaskState = "ready"     // runnable, waiting for the scheduler
	StateBlocked   TaskState = "blocked"   // waiting on a delay or a resource
	StateSuspended TaskState = "suspended" // explicitly suspended
	StateDeleted   TaskState = "deleted"   // terminal
)

// ResourceKind is the kind of a queue-backed kernel object.
type ResourceKind uint8

// Wire values of the queue_kind metadata event.
const (
	KindQueue ResourceKind = iota
	KindCountingSemaphore
	KindBinarySemaphore
	KindMutex
	KindRecursiveMutex
	KindQueueSet
)

func (k ResourceKind) String() string {
	switch k {
	case KindQueue:
		return "queue"
	case KindCountingSemaphore:
		return "counting semaphore"
	case KindBinarySemaphore:
		return "binary semaphore"
	case KindMutex:
		return "mutex"
	case KindRecursiveMutex:
		return "recursive mutex"
	case KindQueueSet:
		return "queue set"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is a known wire value.
func (k ResourceKind) Valid() bool {
	return k <= KindQueueSet
}

// IsMutex reports whether occupancy of this kind reads as a lock state.
func (k ResourceKind) IsMutex() bool {
	return k == KindMutex || k == KindRecursiveMutex
}

// MarshalText lets kinds appear by name in YAML and JSON summaries.
func (k ResourceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
