package schema

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Append encodes ev as a record payload and appends it to buf. It is the
// inverse of Parse and is used to synthesise captures.
func Append(buf []byte, ev Event) ([]byte, error) {
	spec, ok := ev.Kind.Spec()
	if !ok {
		return buf, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(ev.Kind))
	}

	buf = append(buf, byte(ev.Kind))
	if spec.IsTimed {
		buf = protowire.AppendVarint(buf, uint64(ev.TS))
	}

	for i, a := range spec.Args {
		v := ev.Args[i]
		switch a.Type {
		case ArgU8:
			if v > math.MaxUint8 {
				return buf, fmt.Errorf("%w: %s.%s=%d", ErrOverflow, ev.Kind, a.Name, v)
			}
			buf = append(buf, byte(v))
		case ArgU32:
			if v > math.MaxUint32 {
				return buf, fmt.Errorf("%w: %s.%s=%d", ErrOverflow, ev.Kind, a.Name, v)
			}
			buf = protowire.AppendVarint(buf, v)
		case ArgU64:
			buf = protowire.AppendVarint(buf, v)
		case ArgS64:
			buf = protowire.AppendVarint(buf, encodeS64(int64(v)))
		case ArgStr:
			buf = protowire.AppendVarint(buf, uint64(len(ev.Str)))
			buf = append(buf, ev.Str...)
		}
	}
	return buf, nil
}

// Marshal encodes ev into a new payload.
func Marshal(ev Event) ([]byte, error) {
	return Append(nil, ev)
}

func encodeS64(v int64) uint64 {
	switch {
	case v == math.MinInt64:
		return 1
	case v < 0:
		return uint64(-v)<<1 | 1
	default:
		return uint64(v) << 1
	}
}
