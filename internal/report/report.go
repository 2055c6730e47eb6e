// ============================================================================
// frtrace Run Report
// ============================================================================
//
// Package: internal/report
// File: report.go
// Purpose: Summarise one conversion (pipeline counters, tasks, interrupts,
//          resources, diagnostics) as YAML or JSON
//
// File format:
//   schema_version: 1
//   run_id: 6f1c...
//   stats: {frames: 812, events: 812, invalid_events: 0, ...}
//   tasks:
//     - {id: 1, name: sensor, switches: 40, state_ns: {running: ..., ...}}
//   ...
//
// Writes are atomic: the report goes to a temporary file that is renamed
// over the target, so a reader never sees a partial report.
//
// ============================================================================

package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/frtrace/internal/interp"
	"github.com/ChuLiYu/frtrace/internal/pipeline"
	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/pkg/types"
)

// SchemaVersion is the current report layout.
const SchemaVersion = 1

// Formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

var (
	// ErrUnknownFormat indicates a format other than yaml or json
	ErrUnknownFormat = errors.New("report: unknown format")
	// ErrCorruptedReport indicates a report file that does not parse
	ErrCorruptedReport = errors.New("report: file is corrupted")
	// ErrIncompatibleVersion indicates a report written by another layout
	ErrIncompatibleVersion = errors.New("report: schema version is incompatible")
)

// Summary is the report of one run.
type Summary struct {
	SchemaVersion int            `json:"schema_version" yaml:"schema_version"`
	RunID         string         `json:"run_id" yaml:"run_id"`
	Input         string         `json:"input,omitempty" yaml:"input,omitempty"`
	Stats         pipeline.Stats `json:"stats" yaml:"stats"`
	Resolution    uint64         `json:"ns_per_ts" yaml:"ns_per_ts"`
	TraceNS       uint64         `json:"trace_ns" yaml:"trace_ns"`
	EventsByKind  map[string]int `json:"events_by_kind,omitempty" yaml:"events_by_kind,omitempty"`
	Tasks         []Task         `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Interrupts    []Interrupt    `json:"interrupts,omitempty" yaml:"interrupts,omitempty"`
	Resources     []Resource     `json:"resources,omitempty" yaml:"resources,omitempty"`
	Markers       int            `json:"markers" yaml:"markers"`
	Diagnostics   []Diagnostic   `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Task summarises one task.
type Task struct {
	ID       uint32            `json:"id" yaml:"id"`
	Name     string            `json:"name" yaml:"name"`
	Flags    []string          `json:"flags,omitempty" yaml:"flags,omitempty"`
	Switches int               `json:"switches" yaml:"switches"`
	Final    string            `json:"final_state,omitempty" yaml:"final_state,omitempty"`
	Priority int64             `json:"priority" yaml:"priority"`
	StateNS  map[string]uint64 `json:"state_ns,omitempty" yaml:"state_ns,omitempty"`
}

// Interrupt summarises one interrupt source.
type Interrupt struct {
	ID      uint32 `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Entries int    `json:"entries" yaml:"entries"`
	BusyNS  uint64 `json:"busy_ns" yaml:"busy_ns"`
}

// Resource summarises one queue, semaphore or mutex.
type Resource struct {
	ID       uint32 `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Kind     string `json:"kind" yaml:"kind"`
	Capacity uint32 `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Samples  int    `json:"samples" yaml:"samples"`
	Peak     int64  `json:"peak" yaml:"peak"`
}

// Diagnostic is one interpreter diagnostic, timestamp in nanoseconds.
type Diagnostic struct {
	TS      uint64 `json:"ts_ns" yaml:"ts_ns"`
	Message string `json:"message" yaml:"message"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Build summarises a pipeline result. input names the capture, if any.
func Build(runID, input string, res *pipeline.Result) *Summary {
	s := res.State
	sum := &Summary{
		SchemaVersion: SchemaVersion,
		RunID:         runID,
		Input:         input,
		Stats:         res.Stats,
		Resolution:    s.Resolution,
		TraceNS:       s.Nanos(s.LastTS),
		EventsByKind:  make(map[string]int),
		Markers: s.EventMarkers.Len() + s.ValueMarkers.Len() +
			s.TaskEventMarkers.Len() + s.TaskValueMarkers.Len(),
	}

	for _, k := range schema.Kinds() {
		if n := s.Count(k); n > 0 {
			sum.EventsByKind[k.String()] = n
		}
	}
	if n := s.Count(schema.KindInvalid); n > 0 {
		sum.EventsByKind[schema.KindInvalid.String()] = n
	}

	for id, t := range s.Tasks.All() {
		sum.Tasks = append(sum.Tasks, task(s, id, t))
	}
	for id, isr := range s.Interrupts.All() {
		sum.Interrupts = append(sum.Interrupts, interrupt(s, id, isr))
	}
	for id, r := range s.Resources.All() {
		sum.Resources = append(sum.Resources, resource(s, id, r))
	}
	for _, d := range s.Diagnostics {
		sum.Diagnostics = append(sum.Diagnostics, Diagnostic{
			TS:      s.Nanos(d.TS),
			Message: d.Message,
		})
	}
	return sum
}

func task(s *interp.State, id types.TaskID, t *interp.Task) Task {
	out := Task{
		ID:      uint32(id),
		Name:    s.TaskName(id),
		StateNS: make(map[string]uint64),
	}
	if t.Idle {
		out.Flags = append(out.Flags, "idle")
	}
	if t.Timer {
		out.Flags = append(out.Flags, "timer")
	}
	if n := len(t.Priorities); n > 0 {
		out.Priority = t.Priorities[n-1].Value
	}
	if state, ok := t.LastState(); ok {
		out.Final = string(state)
	}

	for i, e := range t.States {
		if e.State == types.StateRunning {
			out.Switches++
		}
		end := s.LastTS
		if i+1 < len(t.States) {
			end = t.States[i+1].TS
		}
		out.StateNS[string(e.State)] += s.Nanos(end - e.TS)
	}
	return out
}

func interrupt(s *interp.State, id types.IsrID, isr *interp.Interrupt) Interrupt {
	out := Interrupt{ID: uint32(id), Name: isr.Name}
	if out.Name == "" {
		out.Name = fmt.Sprintf("ISR #%d", id)
	}

	var (
		open  bool
		since types.Timestamp
	)
	for _, a := range isr.Activity {
		switch {
		case a.Enter:
			out.Entries++
			open, since = true, a.TS
		case open:
			out.BusyNS += s.Nanos(a.TS - since)
			open = false
		}
	}
	if open {
		out.BusyNS += s.Nanos(s.LastTS - since)
	}
	return out
}

func resource(s *interp.State, id types.ResourceID, r *interp.Resource) Resource {
	out := Resource{
		ID:      uint32(id),
		Name:    r.Name,
		Kind:    "unknown",
		Samples: len(r.Occupancy),
	}
	if out.Name == "" {
		out.Name = fmt.Sprintf("%d", id)
	}
	if r.HasKind {
		out.Kind = r.Kind.String()
	}
	if r.HasCapacity {
		out.Capacity = r.Capacity
	}
	for _, smp := range r.Occupancy {
		if smp.Value > out.Peak {
			out.Peak = smp.Value
		}
	}
	return out
}

// Encode writes the summary in the given format.
func (s *Summary) Encode(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("report: encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("report: encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteFile writes the summary to path atomically.
func (s *Summary) WriteFile(path, format string) error {
	var buf bytes.Buffer
	if err := s.Encode(&buf, format); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write temp report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename report: %w", err)
	}
	return nil
}

// Load reads a report written by WriteFile. Files ending in .json are read
// as JSON, anything else as YAML.
func Load(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var s Summary
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedReport, err)
	}

	if s.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, s.SchemaVersion, SchemaVersion)
	}
	return &s, nil
}
