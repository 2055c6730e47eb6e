package capture

// ============================================================================
// Capture loader and frame splitter
// Responsibilities:
// 1. Read a captured dump (hex text or raw binary) into memory
// 2. Split the buffer on the zero delimiter, preserving order
// 3. Drop degenerate frames before they reach the decoder
// ============================================================================

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
)

// Capture is a complete, already captured trace buffer.
type Capture struct {
	path string // Source file, empty for in-memory captures
	buf  []byte // Raw, still stuffed bytes
}

// New wraps an in-memory buffer.
func New(buf []byte) *Capture {
	return &Capture{buf: buf}
}

// Load reads a capture file stored with the given encoding.
func Load(path string, enc Encoding) (*Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture: read %s: %w", path, err)
	}

	buf, err := Decode(data, enc)
	if err != nil {
		return nil, fmt.Errorf("capture: load %s: %w", path, err)
	}
	return &Capture{path: path, buf: buf}, nil
}

// Decode turns file contents into capture bytes.
func Decode(data []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingHex, "":
		return ParseHex(data)
	case EncodingBinary:
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}

// ParseHex decodes a hex text dump. All ASCII whitespace is ignored, so byte
// pairs may be separated by spaces or line breaks.
func ParseHex(text []byte) ([]byte, error) {
	compact := make([]byte, 0, len(text))
	for _, c := range text {
		switch c {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			continue
		}
		compact = append(compact, c)
	}

	if len(compact)%2 != 0 {
		return nil, &HexError{Offset: len(compact), Reason: "odd number of hex digits"}
	}

	out := make([]byte, len(compact)/2)
	n, err := hex.Decode(out, compact)
	if err != nil {
		return nil, &HexError{Offset: 2 * n, Reason: err.Error()}
	}
	return out, nil
}

// Bytes returns the raw capture buffer.
func (c *Capture) Bytes() []byte {
	return c.buf
}

// Path returns the source file, if any.
func (c *Capture) Path() string {
	return c.path
}

// Each calls handler for every non-degenerate frame in capture order and
// returns the split statistics. The first handler error stops the iteration
// and is returned.
func (c *Capture) Each(handler FrameHandler) (SplitStats, error) {
	frames, stats := Split(c.buf)
	for _, f := range frames {
		if err := handler(f); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Split cuts buf on the delimiter byte. Frames of length 0 or 1 cannot hold
// a stuffed payload and are only counted. The returned frames alias buf.
func Split(buf []byte) ([]Frame, SplitStats) {
	stats := SplitStats{Bytes: len(buf)}
	frames := make([]Frame, 0, bytes.Count(buf, []byte{Delimiter})+1)

	start := 0
	for start <= len(buf) {
		end := bytes.IndexByte(buf[start:], Delimiter)
		if end < 0 {
			end = len(buf)
		} else {
			end += start
		}

		if data := buf[start:end]; len(data) > 1 {
			frames = append(frames, Frame{Index: len(frames), Offset: start, Data: data})
		} else {
			stats.Degenerate++
		}
		start = end + 1
	}

	stats.Frames = len(frames)
	return frames, stats
}
