package trace

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

func (t *Trace) flushJSON() error {
	enc := json.NewEncoder(t.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(t.entries)
}

func (t *Trace) flushCSV() error {
	w := csv.NewWriter(t.Writer)
	defer w.Flush()

	if err := w.Write([]string{"sequence", "function", "kind", "offset", "mnemonic", "detail", "length"}); err != nil {
		return err
	}
	for _, e := range t.entries {
		row := []string{
			fmt.Sprintf("%d", e.Sequence),
			e.Function,
			e.Kind.String(),
			fmt.Sprintf("0x%04X", e.Offset),
			e.Mnemonic,
			e.Detail,
			fmt.Sprintf("%d", e.Length),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

// ExportJSON writes entries as JSON directly to w, bypassing the
// Trace's own Writer (used by the CLI to write the -trace-file output
// without mutating trace state).
func (t *Trace) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(t.entries)
}
