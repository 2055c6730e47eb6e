// Package emit projects a replayed trace into the Chrome trace-event JSON
// format understood by Perfetto and chrome://tracing.
package emit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Phase is the "ph" field of a trace event.
type Phase string

const (
	PhaseBegin    Phase = "B"
	PhaseEnd      Phase = "E"
	PhaseInstant  Phase = "i"
	PhaseCounter  Phase = "C"
	PhaseMetadata Phase = "M"
)

// Instant scopes.
const (
	ScopeGlobal = "g"
	ScopeThread = "t"
)

// Event is one element of traceEvents.
type Event struct {
	Phase Phase          `json:"ph"`
	PID   int            `json:"pid"`
	TID   *uint64        `json:"tid,omitempty"`
	TS    uint64         `json:"ts"`
	Name  string         `json:"name,omitempty"`
	Cat   string         `json:"cat,omitempty"`
	Args  map[string]any `json:"args,omitempty"`
	Scope string         `json:"s,omitempty"`
}

// Document is a complete trace file.
type Document struct {
	TraceEvents []Event `json:"traceEvents"`
}

// WriteTo encodes the document as JSON followed by a newline.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	return d.write(w, false)
}

// WriteIndented encodes the document with two-space indentation.
func (d *Document) WriteIndented(w io.Writer) (int64, error) {
	return d.write(w, true)
}

func (d *Document) write(w io.Writer, indent bool) (int64, error) {
	doc := *d
	if doc.TraceEvents == nil {
		doc.TraceEvents = []Event{}
	}

	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, fmt.Errorf("emit: encode trace: %w", err)
	}

	n, err := w.Write(append(data, '\n'))
	if err != nil {
		return int64(n), fmt.Errorf("emit: write trace: %w", err)
	}
	return int64(n), nil
}

// WriteFile writes the document to path atomically: a temporary file in the
// same directory is written, synced and renamed over path.
func (d *Document) WriteFile(path string, indent bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("emit: create temp trace: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	if _, err := d.write(w, indent); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("emit: write trace: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("emit: sync trace: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("emit: close trace: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("emit: rename trace: %w", err)
	}
	return nil
}

func tid(v uint32) *uint64 {
	t := uint64(v)
	return &t
}
