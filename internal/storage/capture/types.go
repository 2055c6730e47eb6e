package capture

// ============================================================================
// Capture Type Definitions
// Responsibility: Define core data structures of a captured trace
// ============================================================================

// Delimiter is the reserved frame delimiter byte.
const Delimiter byte = 0x00

// Encoding names how a capture file is stored on disk.
type Encoding string

const (
	EncodingHex    Encoding = "hex"    // Hex text dump, whitespace ignored
	EncodingBinary Encoding = "binary" // Raw bytes as read from the device
)

// Frame is one delimiter-bounded, still stuffed unit of the capture.
// Data aliases the capture buffer unless the frame was copied.
type Frame struct {
	Index  int    // Position among the non-degenerate frames
	Offset int    // Byte offset of the first frame byte in the capture
	Data   []byte // Stuffed bytes, delimiter excluded
}

// SplitStats summarises one split of a capture.
type SplitStats struct {
	Bytes      int // Capture size
	Frames     int // Frames handed to later stages
	Degenerate int // Frames of length 0 or 1 dropped by the splitter
}

// FrameHandler processes frames in capture order.
// Returning an error stops the iteration.
type FrameHandler func(frame Frame) error
