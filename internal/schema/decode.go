package schema

import (
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ChuLiYu/frtrace/pkg/types"
)

var (
	ErrEmptyRecord   = errors.New("schema: empty record")
	ErrUnknownTag    = errors.New("schema: unknown tag")
	ErrTruncated     = errors.New("schema: truncated field")
	ErrOverflow      = errors.New("schema: varint overflows field")
	ErrTrailingBytes = errors.New("schema: trailing bytes after record")
)

// maxU32Len is the longest varint encoding of a 32-bit value.
const maxU32Len = 5

// DecodeError locates a decode failure inside a record.
type DecodeError struct {
	Kind   Kind   // Tag of the record, if it was read
	Field  string // Field being decoded, empty for the tag itself
	Offset int    // Byte offset in the payload
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v (tag %d, offset %d)", e.Err, uint8(e.Kind), e.Offset)
	}
	return fmt.Sprintf("%v: %s.%s at offset %d", e.Err, e.Kind, e.Field, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Parse decodes one payload. It keeps no state and is safe to call from
// several goroutines.
func Parse(payload []byte) (Event, error) {
	if len(payload) == 0 {
		return Event{}, ErrEmptyRecord
	}

	kind := Kind(payload[0])
	spec, ok := kind.Spec()
	if !ok {
		return Event{}, &DecodeError{Kind: kind, Offset: 0, Err: ErrUnknownTag}
	}

	r := reader{buf: payload, off: 1}
	ev := Event{Kind: kind}

	if spec.IsTimed {
		ts, err := r.u64()
		if err != nil {
			return Event{}, &DecodeError{Kind: kind, Field: "ts", Offset: r.off, Err: err}
		}
		ev.TS = types.Timestamp(ts)
		ev.HasTS = true
	}

	for i, a := range spec.Args {
		start := r.off
		var err error
		switch a.Type {
		case ArgU8:
			ev.Args[i], err = r.u8()
		case ArgU32:
			ev.Args[i], err = r.u32()
		case ArgU64:
			ev.Args[i], err = r.u64()
		case ArgS64:
			var v int64
			v, err = r.s64()
			ev.Args[i] = Signed(v)
		case ArgStr:
			ev.Str, err = r.str()
		}
		if err != nil {
			return Event{}, &DecodeError{Kind: kind, Field: a.Name, Offset: start, Err: err}
		}
	}

	if r.off != len(payload) {
		return Event{}, &DecodeError{Kind: kind, Field: "", Offset: r.off, Err: ErrTrailingBytes}
	}
	return ev, nil
}

// Decoder turns parse results into the ordered event stream. Invalid events
// carry the last timestamp observed before them.
type Decoder struct {
	lastTS types.Timestamp
	hasTS  bool
}

// Resolve returns ev, or an Invalid placeholder when err is set.
func (d *Decoder) Resolve(ev Event, err error) Event {
	if err != nil {
		return Invalid(d.lastTS, d.hasTS, err)
	}
	if ev.HasTS {
		d.lastTS = ev.TS
		d.hasTS = true
	}
	return ev
}

// ============================================================================
// Field reader
// ============================================================================

type reader struct {
	buf []byte
	off int
}

func (r *reader) varint() (uint64, int, error) {
	v, n := protowire.ConsumeVarint(r.buf[r.off:])
	if n < 0 {
		if errors.Is(protowire.ParseError(n), io.ErrUnexpectedEOF) {
			return 0, 0, ErrTruncated
		}
		return 0, 0, ErrOverflow
	}
	r.off += n
	return v, n, nil
}

func (r *reader) u8() (uint64, error) {
	if r.off >= len(r.buf) {
		return 0, ErrTruncated
	}
	v := r.buf[r.off]
	r.off++
	return uint64(v), nil
}

func (r *reader) u32() (uint64, error) {
	v, n, err := r.varint()
	if err != nil {
		return 0, err
	}
	if n > maxU32Len || v > math.MaxUint32 {
		return 0, ErrOverflow
	}
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	v, _, err := r.varint()
	return v, err
}

// s64 is sign-magnitude: bit 0 is the sign. Negative zero stands for the
// one value the magnitude cannot hold.
func (r *reader) s64() (int64, error) {
	v, _, err := r.varint()
	if err != nil {
		return 0, err
	}
	if v == 1 {
		return math.MinInt64, nil
	}
	mag := int64(v >> 1)
	if v&1 != 0 {
		return -mag, nil
	}
	return mag, nil
}

func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if n > uint64(len(r.buf)-r.off) {
		return "", ErrTruncated
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}
