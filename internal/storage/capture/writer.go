package capture

// ============================================================================
// Frame Writer
// Purpose: Stuff payloads and write them as a capture, batched in memory
// ============================================================================

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

// DefaultLineWidth is the number of capture bytes per hex text line.
const DefaultLineWidth = 32

// Writer writes stuffed, delimited frames to an underlying writer.
//
// Frames accumulate in a buffer and go out on Flush, on Close, or whenever
// the buffer passes maxBuffered bytes.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	enc    Encoding
	buf    []byte // Pending raw capture bytes
	closed bool

	// Configuration
	lineWidth   int // Hex bytes per line
	maxBuffered int // Flush threshold
	col         int // Bytes already on the current hex line

	frames int // Frames written so far
}

// NewWriter creates a writer for the given encoding. lineWidth applies to hex
// output only; values below 1 select DefaultLineWidth.
func NewWriter(w io.Writer, enc Encoding, lineWidth int) (*Writer, error) {
	if enc == "" {
		enc = EncodingHex
	}
	if enc != EncodingHex && enc != EncodingBinary {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
	if lineWidth < 1 {
		lineWidth = DefaultLineWidth
	}
	return &Writer{
		w:           w,
		enc:         enc,
		buf:         make([]byte, 0, 4096),
		lineWidth:   lineWidth,
		maxBuffered: 4096,
	}, nil
}

// WriteFrame stuffs payload and appends it to the capture.
func (cw *Writer) WriteFrame(payload []byte) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return ErrWriterClosed
	}

	buf, err := AppendFrame(cw.buf, payload)
	if err != nil {
		return fmt.Errorf("capture: frame #%d: %w", cw.frames, err)
	}
	cw.buf = buf
	cw.frames++

	if len(cw.buf) >= cw.maxBuffered {
		return cw.flushLocked()
	}
	return nil
}

// WriteRaw appends bytes verbatim, which lets tests inject damaged frames.
func (cw *Writer) WriteRaw(raw []byte) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return ErrWriterClosed
	}
	cw.buf = append(cw.buf, raw...)
	return nil
}

// Frames returns the number of frames written.
func (cw *Writer) Frames() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.frames
}

// Flush writes all buffered bytes.
func (cw *Writer) Flush() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return ErrWriterClosed
	}
	return cw.flushLocked()
}

// Close flushes and terminates the last hex line. It does not close the
// underlying writer.
func (cw *Writer) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return nil
	}
	err := cw.flushLocked()
	if err == nil && cw.enc == EncodingHex && cw.col > 0 {
		_, err = io.WriteString(cw.w, "\n")
		cw.col = 0
	}
	cw.closed = true
	return err
}

func (cw *Writer) flushLocked() error {
	if len(cw.buf) == 0 {
		return nil
	}

	var out []byte
	if cw.enc == EncodingBinary {
		out = cw.buf
	} else {
		out = make([]byte, 0, len(cw.buf)*3)
		for _, b := range cw.buf {
			if cw.col > 0 {
				out = append(out, ' ')
			}
			out = hex.AppendEncode(out, []byte{b})
			cw.col++
			if cw.col == cw.lineWidth {
				out = append(out, '\n')
				cw.col = 0
			}
		}
	}

	if _, err := cw.w.Write(out); err != nil {
		return fmt.Errorf("capture: write: %w", err)
	}
	cw.buf = cw.buf[:0]
	return nil
}
