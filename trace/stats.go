package trace

import (
	"fmt"
	"sort"
	"strings"
)

// MnemonicStats tracks how often one mnemonic was emitted and the total
// bytes its encodings occupied.
type MnemonicStats struct {
	Mnemonic string
	Count    uint64
	Bytes    uint64
}

// FunctionStats tracks per-function build totals.
type FunctionStats struct {
	Name             string
	InstructionCount uint64
	ByteCount        uint64
	StackSlotCount   uint64
}

// Stats aggregates Trace entries into the counters a build-report would
// want: per-mnemonic frequency, per-function totals, and overall size.
type Stats struct {
	TotalInstructions uint64
	TotalBytes        uint64
	TotalStackSlots   uint64
	LabelBinds        uint64

	mnemonics map[string]*MnemonicStats
	functions map[string]*FunctionStats
}

// NewStats builds a Stats snapshot from a Trace's recorded entries.
func NewStats(t *Trace) *Stats {
	s := &Stats{
		mnemonics: make(map[string]*MnemonicStats),
		functions: make(map[string]*FunctionStats),
	}
	for _, e := range t.Entries() {
		fn, ok := s.functions[e.Function]
		if !ok {
			fn = &FunctionStats{Name: e.Function}
			s.functions[e.Function] = fn
		}
		switch e.Kind {
		case InstructionEmitted:
			s.TotalInstructions++
			s.TotalBytes += uint64(e.Length)
			fn.InstructionCount++
			fn.ByteCount += uint64(e.Length)

			m, ok := s.mnemonics[e.Mnemonic]
			if !ok {
				m = &MnemonicStats{Mnemonic: e.Mnemonic}
				s.mnemonics[e.Mnemonic] = m
			}
			m.Count++
			m.Bytes += uint64(e.Length)
		case LabelBound:
			s.LabelBinds++
		case StackSlotReserved:
			s.TotalStackSlots++
			fn.StackSlotCount++
		}
	}
	return s
}

// TopMnemonics returns the n most frequently emitted mnemonics, most
// frequent first. n<=0 returns all of them.
func (s *Stats) TopMnemonics(n int) []MnemonicStats {
	out := make([]MnemonicStats, 0, len(s.mnemonics))
	for _, m := range s.mnemonics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && n < len(out) {
		return out[:n]
	}
	return out
}

// Functions returns per-function totals sorted by instruction count,
// largest first.
func (s *Stats) Functions() []FunctionStats {
	out := make([]FunctionStats, 0, len(s.functions))
	for _, f := range s.functions {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstructionCount > out[j].InstructionCount })
	return out
}

// String renders a short human-readable summary.
func (s *Stats) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Build Statistics\n")
	fmt.Fprintf(&sb, "================\n\n")
	fmt.Fprintf(&sb, "Total instructions: %d\n", s.TotalInstructions)
	fmt.Fprintf(&sb, "Total bytes:        %d\n", s.TotalBytes)
	fmt.Fprintf(&sb, "Stack slots:        %d\n", s.TotalStackSlots)
	fmt.Fprintf(&sb, "Label binds:        %d\n\n", s.LabelBinds)

	fmt.Fprintf(&sb, "Top mnemonics:\n")
	for i, m := range s.TopMnemonics(10) {
		fmt.Fprintf(&sb, "  %2d. %-8s %8d (%d bytes)\n", i+1, m.Mnemonic, m.Count, m.Bytes)
	}
	return sb.String()
}
