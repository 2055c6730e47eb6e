package schema

import (
	"fmt"
	"strings"

	"github.com/ChuLiYu/frtrace/pkg/types"
)

// Event is one decoded record. Kind selects the variant; the meaning of Args
// and Str follows the kind's Spec.
type Event struct {
	Kind Kind

	// TS is the record timestamp. For KindInvalid it is the last timestamp
	// seen in the stream before the bad record.
	TS    types.Timestamp
	HasTS bool

	// Args holds the numeric fields in Spec order. The slot of a text
	// field stays zero; its value is in Str.
	Args [MaxArgs]uint64
	Str  string

	// Err is the decode failure of a KindInvalid event.
	Err error
}

// Make builds a timed or metadata event from numeric field values in Spec
// order. Signed values are passed through Signed. Text goes in with WithText.
func Make(kind Kind, ts types.Timestamp, args ...uint64) Event {
	ev := Event{Kind: kind}
	if kind.IsTimed() {
		ev.TS = ts
		ev.HasTS = true
	}
	copy(ev.Args[:], args)
	return ev
}

// Invalid builds the placeholder of a record that could not be decoded.
func Invalid(ts types.Timestamp, hasTS bool, err error) Event {
	return Event{Kind: KindInvalid, TS: ts, HasTS: hasTS, Err: err}
}

// WithText returns a copy of e with its text field set.
func (e Event) WithText(s string) Event {
	e.Str = s
	return e
}

// Signed stores a signed field value in an Args slot.
func Signed(v int64) uint64 {
	return uint64(v)
}

// U32 returns field i as a 32-bit value.
func (e Event) U32(i int) uint32 {
	return uint32(e.Args[i])
}

// S64 returns field i as a signed value.
func (e Event) S64(i int) int64 {
	return int64(e.Args[i])
}

// IsMeta reports whether e is a metadata record.
func (e Event) IsMeta() bool {
	return e.Kind != KindInvalid && !e.Kind.IsTimed()
}

// Fields returns the named field values, for display.
func (e Event) Fields() map[string]any {
	spec, ok := e.Kind.Spec()
	if !ok {
		if e.Err != nil {
			return map[string]any{"error": e.Err.Error()}
		}
		return nil
	}

	fields := make(map[string]any, len(spec.Args))
	for i, a := range spec.Args {
		switch a.Type {
		case ArgStr:
			fields[a.Name] = e.Str
		case ArgS64:
			fields[a.Name] = e.S64(i)
		default:
			fields[a.Name] = e.Args[i]
		}
	}
	return fields
}

// String renders e on one line, e.g. "task_switched_in ts=10 task_id=3".
func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.HasTS {
		fmt.Fprintf(&b, " ts=%d", e.TS)
	}

	if e.Kind == KindInvalid {
		if e.Err != nil {
			fmt.Fprintf(&b, " err=%q", e.Err.Error())
		}
		return b.String()
	}

	spec, _ := e.Kind.Spec()
	for i, a := range spec.Args {
		switch a.Type {
		case ArgStr:
			fmt.Fprintf(&b, " %s=%q", a.Name, e.Str)
		case ArgS64:
			fmt.Fprintf(&b, " %s=%d", a.Name, e.S64(i))
		default:
			fmt.Fprintf(&b, " %s=%d", a.Name, e.Args[i])
		}
	}
	return b.String()
}
