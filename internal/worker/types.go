package worker

import (
	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/internal/storage/capture"
)

// Task is one frame waiting to be decoded.
type Task struct {
	Index int           // Position in the submission order
	Frame capture.Frame // Stuffed frame
}

// Result is the decode outcome of one Task.
type Result struct {
	Index int          // Index of the originating Task
	Event schema.Event // Decoded event, zero when Err is set
	Err   error        // *capture.FrameError or a schema decode error
}

// Handler turns a Task into a Result. It must be safe for concurrent use.
type Handler func(task Task) Result
