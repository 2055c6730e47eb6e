package interp

import (
	"fmt"

	"github.com/ChuLiYu/frtrace/pkg/types"
)

// RefKind selects the table a Ref points into.
type RefKind uint8

const (
	RefNone RefKind = iota
	RefTask
	RefResource
)

// Ref names an entity whose display name is only known after replay.
type Ref struct {
	Kind RefKind
	ID   uint32
}

// TaskRef refers to a task.
func TaskRef(id types.TaskID) Ref {
	return Ref{Kind: RefTask, ID: uint32(id)}
}

// ResourceRef refers to a resource.
func ResourceRef(id types.ResourceID) Ref {
	return Ref{Kind: RefResource, ID: uint32(id)}
}

// Note annotates a state entry. It renders as Prefix, the referenced entity,
// then Suffix.
type Note struct {
	Prefix string
	Ref    Ref
	Suffix string
}

// IsZero reports whether the note is empty.
func (n Note) IsZero() bool {
	return n == Note{}
}

// TaskName returns the display name of a task: its name or "Task <id>".
func (s *State) TaskName(id types.TaskID) string {
	if t, ok := s.Tasks.Get(id); ok && t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("Task %d", id)
}

// ResourceName returns "<name or id> (<kind or unknown>)".
func (s *State) ResourceName(id types.ResourceID) string {
	name := fmt.Sprintf("%d", id)
	kind := "unknown"
	if r, ok := s.Resources.Get(id); ok {
		if r.Name != "" {
			name = r.Name
		}
		if r.HasKind {
			kind = r.Kind.String()
		}
	}
	return fmt.Sprintf("%s (%s)", name, kind)
}

// Describe renders a reference with the final names of the replay.
func (s *State) Describe(ref Ref) string {
	switch ref.Kind {
	case RefTask:
		return s.TaskName(types.TaskID(ref.ID))
	case RefResource:
		return s.ResourceName(types.ResourceID(ref.ID))
	default:
		return ""
	}
}

// Render turns a note into display text.
func (s *State) Render(n Note) string {
	return n.Prefix + s.Describe(n.Ref) + n.Suffix
}

// Label renders a state entry, e.g. "blocked (receive from rx (queue))".
func (s *State) Label(e StateEntry) string {
	if e.Note.IsZero() {
		return string(e.State)
	}
	return fmt.Sprintf("%s (%s)", e.State, s.Render(e.Note))
}
