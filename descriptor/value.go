package descriptor

import "github.com/rns-lang/x64codegen/operand"

// Value is a descriptor paired with an operand, the unit of exchange
// between the builder's public operations (spec.md §3 Value).
type Value struct {
	Type *Descriptor
	Op   operand.Operand
}

// IsLValue reports whether this value's operand denotes an addressable
// location (memory-indirect or RIP-relative).
func (v Value) IsLValue() bool { return v.Op.IsLValue() }

// BoolLike is the integer descriptor compare() results are described with
// (spec.md §4.5: "the result is of integer descriptor 'bool-like s64'").
var BoolLike = PrimitiveS64
