// Package arena provides the bump allocator that owns every descriptor,
// value, instruction record, label, and patch list created during one
// compilation (spec.md §5 Resource ownership, §9 design note: "raw pointer
// graphs -> arena + handles").
//
// Go already garbage-collects, so this arena does not reclaim memory by
// hand; its job is to express ownership and scoping — one arena per
// compilation, discarded as a unit when the compilation ends — the same
// role the teacher's per-VM MemorySegment slices play for emulated memory.
package arena

import "github.com/rns-lang/x64codegen/operand"

// Arena scopes the object graph for one compilation. It is not safe for
// concurrent use; spec.md §5 requires independent compilations to own
// disjoint arenas rather than share one under a lock.
type Arena struct {
	labels int
}

// New creates an empty arena.
func New() *Arena {
	return &Arena{}
}

// NewLabel allocates a label scoped to this arena. Labels are owned by the
// function builder that created them; cross-function label sharing is
// disallowed by spec.md §5 and callers must not stash a label from one
// arena into another builder's instruction stream.
func (a *Arena) NewLabel(size int) *operand.Label {
	a.labels++
	return operand.NewLabel(size)
}

// LabelCount reports how many labels this arena has allocated, useful for
// diagnostics and the trace package's build-event summaries.
func (a *Arena) LabelCount() int { return a.labels }
