package operand

import "fmt"

// PatchSite is one recorded location that needs a relative displacement
// written once its label is bound (spec.md §3 Label, §4.4).
type PatchSite struct {
	Location uint32 // offset into the execution buffer holding the displacement bytes
	From     uint32 // anchor: the offset immediately following the displacement field
	Size     int    // 1, 2, 4, or 8 bytes
}

// maxPatchSites caps the number of pending references per label (spec.md §3).
const maxPatchSites = 32

// Label is a symbolic code position: either bound (Target holds the offset
// it was bound at) or unbound (Sites accumulates pending patch locations
// until binding). A label may be bound at most once.
type Label struct {
	Size  int // declared displacement size in bytes: 1, 4, or 8
	bound bool
	target uint32
	sites  []PatchSite
}

// NewLabel allocates an unbound label with the given declared displacement
// size. Callers normally go through an arena-backed allocator (see package
// arena) rather than calling this directly inside a function builder.
func NewLabel(size int) *Label {
	return &Label{Size: size}
}

// Bound reports whether the label has been bound to a target offset.
func (l *Label) Bound() bool { return l.bound }

// Target returns the bound offset. Calling it on an unbound label panics;
// callers must check Bound first.
func (l *Label) Target() uint32 {
	if !l.bound {
		panic("operand: Target called on unbound label")
	}
	return l.target
}

// AddSite records a pending patch site for an unbound label reference. It
// panics if the label is already bound (callers resolve bound labels
// immediately instead) or if the per-label site cap is exceeded.
func (l *Label) AddSite(site PatchSite) {
	if l.bound {
		panic("operand: AddSite called on a bound label")
	}
	if len(l.sites) >= maxPatchSites {
		panic(fmt.Sprintf("operand: label exceeded %d pending patch sites", maxPatchSites))
	}
	l.sites = append(l.sites, site)
}

// Bind records target as this label's bound offset and returns the sites
// that were pending, so the caller (the encoder, which owns the execution
// buffer) can write each displacement. A label may only be bound once.
func (l *Label) Bind(target uint32) []PatchSite {
	if l.bound {
		panic("operand: label bound twice")
	}
	l.bound = true
	l.target = target
	sites := l.sites
	l.sites = nil
	return sites
}
