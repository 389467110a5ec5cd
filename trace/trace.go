// Package trace records the sequence of build events a Builder emits
// while assembling one function — instruction encodings, label binds,
// and stack-slot reservations — and the aggregate statistics derived
// from them. It is driven by config.Config.Trace and is otherwise
// inert: a Builder works identically with no trace attached.
package trace

import (
	"fmt"
	"io"
	"strings"
)

// EventKind tags one BuildEvent.
type EventKind uint8

const (
	InstructionEmitted EventKind = iota
	LabelBound
	StackSlotReserved
)

func (k EventKind) String() string {
	switch k {
	case InstructionEmitted:
		return "INSTR"
	case LabelBound:
		return "LABEL"
	case StackSlotReserved:
		return "SLOT"
	default:
		return "?"
	}
}

// BuildEvent is one recorded step of a function build.
type BuildEvent struct {
	Sequence  uint64
	Function  string
	Kind      EventKind
	Mnemonic  string // set for InstructionEmitted
	Offset    uint32 // buffer offset the event occurred at
	Detail    string // e.g. "reg0:8, [reg5-8]" for an instruction or "8 bytes" for a slot
	Length    int    // encoded byte length, for InstructionEmitted
}

// Trace accumulates BuildEvents for one or more function builds and can
// flush them to a writer in text, JSON, or CSV form (config.Config.Trace.Format).
type Trace struct {
	Enabled bool
	Writer  io.Writer

	MaxEntries int

	entries []BuildEvent
	next    uint64
}

// New creates a Trace writing to w. Pass a nil writer to accumulate
// entries without flushing (useful for tests that inspect Entries()).
func New(w io.Writer) *Trace {
	return &Trace{
		Enabled:    true,
		Writer:     w,
		MaxEntries: 100000,
		entries:    make([]BuildEvent, 0, 256),
	}
}

// Record appends one event, dropping it once MaxEntries is reached.
func (t *Trace) Record(function string, kind EventKind, mnemonic string, offset uint32, detail string, length int) {
	if !t.Enabled {
		return
	}
	if t.MaxEntries > 0 && len(t.entries) >= t.MaxEntries {
		return
	}
	t.entries = append(t.entries, BuildEvent{
		Sequence: t.next,
		Function: function,
		Kind:     kind,
		Mnemonic: mnemonic,
		Offset:   offset,
		Detail:   detail,
		Length:   length,
	})
	t.next++
}

// Entries returns all recorded events.
func (t *Trace) Entries() []BuildEvent {
	return t.entries
}

// Clear discards all recorded events.
func (t *Trace) Clear() {
	t.entries = t.entries[:0]
}

// Flush writes all entries to Writer using the named format ("text",
// "json", or "csv"). An unrecognized format falls back to "text".
func (t *Trace) Flush(format string) error {
	if t.Writer == nil {
		return nil
	}
	switch format {
	case "json":
		return t.flushJSON()
	case "csv":
		return t.flushCSV()
	default:
		return t.flushText()
	}
}

func (t *Trace) flushText() error {
	for _, e := range t.entries {
		line := fmt.Sprintf("[%06d] %s 0x%04X %-5s %-6s %s\n",
			e.Sequence, e.Function, e.Offset, e.Kind, e.Mnemonic, e.Detail)
		if _, err := t.Writer.Write([]byte(line)); err != nil {
			return err
		}
	}
	return nil
}

// String renders the trace the way flushText would, for callers that
// want the text form without an io.Writer (e.g. test assertions).
func (t *Trace) String() string {
	var sb strings.Builder
	for _, e := range t.entries {
		fmt.Fprintf(&sb, "[%06d] %s 0x%04X %-5s %-6s %s\n",
			e.Sequence, e.Function, e.Offset, e.Kind, e.Mnemonic, e.Detail)
	}
	return sb.String()
}
