package capture

// ============================================================================
// Capture Error Definitions
// Purpose: Define all errors raised while loading and de-framing a capture
// ============================================================================

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrInvalidHex indicates the dump is not valid hex text. This is the only
	// fatal input error of a conversion.
	ErrInvalidHex = errors.New("capture: invalid hex dump")

	// ErrUnknownEncoding indicates an unsupported input encoding name
	ErrUnknownEncoding = errors.New("capture: unknown input encoding")

	// ErrZeroJump indicates a jump byte of zero inside a stuffed frame
	ErrZeroJump = errors.New("capture: zero jump in stuffed frame")

	// ErrBrokenChain indicates the jump chain does not end at the frame end
	ErrBrokenChain = errors.New("capture: jump chain overruns frame")

	// ErrRunTooLong indicates a payload run that cannot be stuffed
	ErrRunTooLong = errors.New("capture: non-zero run of 255 bytes or more")

	// ErrWriterClosed indicates the frame writer is closed
	ErrWriterClosed = errors.New("capture: writer already closed")
)

// FrameError describes a frame that could not be de-stuffed.
type FrameError struct {
	Index  int   // Position of the frame in the split sequence
	Offset int   // Byte offset of the frame in the capture
	Cause  error // Underlying error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("capture: unrecoverable frame #%d at offset %d: %v", e.Index, e.Offset, e.Cause)
}

func (e *FrameError) Unwrap() error {
	return e.Cause
}

// HexError locates the first bad character of a hex dump.
type HexError struct {
	Offset int    // Byte offset in the text, after whitespace removal
	Reason string // What is wrong at that offset
}

func (e *HexError) Error() string {
	return fmt.Sprintf("%v: %s at offset %d", ErrInvalidHex, e.Reason, e.Offset)
}

func (e *HexError) Unwrap() error {
	return ErrInvalidHex
}
