// Package descriptor implements the compile-time type model (spec.md §3
// Descriptor, §4.6 struct builder) and the value model that pairs a
// descriptor with an operand (spec.md §3 Value).
package descriptor

import "fmt"

// Kind tags which descriptor variant this is.
type Kind uint8

const (
	Void Kind = iota
	Integer
	Pointer
	FixedArray
	Function
	Struct
	TaggedUnion
)

// Field is one named, offset member of a Struct descriptor.
type Field struct {
	Name   string
	Type   *Descriptor
	Offset int
}

// Descriptor is the core's compile-time type record (spec.md §3). Variants
// are distinguished by Kind; only the fields relevant to that Kind are
// populated. Descriptors are arena-owned and compared structurally by
// Equal (see Primitive* below for the process-wide constants).
type Descriptor struct {
	Kind Kind

	// Integer
	Bits   int
	Signed bool

	// Pointer
	Pointee *Descriptor

	// FixedArray
	Elem   *Descriptor
	Length int

	// Function
	Args        []*Descriptor
	Return      *Descriptor
	Frozen      bool
	NextOverload *Descriptor

	// Struct
	Fields []Field

	// TaggedUnion
	Variants []*Descriptor // each a Struct descriptor

	// Name identifies this descriptor when it is a TaggedUnion variant
	// (cast_to_tag dispatches on it, spec.md §4.7); unused otherwise.
	Name string
}

// Size returns the descriptor's size in bytes (spec.md §3 table).
func (d *Descriptor) Size() int {
	switch d.Kind {
	case Void:
		return 0
	case Integer:
		return d.Bits / 8
	case Pointer:
		return 8
	case FixedArray:
		return d.Elem.Size() * d.Length
	case Function:
		return 8 // pointer width
	case Struct:
		return structSize(d.Fields)
	case TaggedUnion:
		max := 0
		for _, v := range d.Variants {
			if s := v.Size(); s > max {
				max = s
			}
		}
		return 8 + max // leading 8-byte tag
	default:
		panic(fmt.Sprintf("descriptor: unknown kind %d", d.Kind))
	}
}

// structSize applies spec.md §3's invariant:
// size(struct) = align_up(last_field.offset + size(last_field), max_field_size)
func structSize(fields []Field) int {
	if len(fields) == 0 {
		return 0
	}
	last := fields[len(fields)-1]
	end := last.Offset + last.Type.Size()
	maxField := 1
	for _, f := range fields {
		if s := f.Type.Size(); s > maxField {
			maxField = s
		}
	}
	return alignUp(end, maxField)
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// Process-wide primitive constants, interned once (spec.md §9 design note:
// expose descriptors as immutable constants rather than global mutable
// singletons per the shape the front end sees).
var (
	PrimitiveVoid = &Descriptor{Kind: Void}

	PrimitiveS8  = &Descriptor{Kind: Integer, Bits: 8, Signed: true}
	PrimitiveS16 = &Descriptor{Kind: Integer, Bits: 16, Signed: true}
	PrimitiveS32 = &Descriptor{Kind: Integer, Bits: 32, Signed: true}
	PrimitiveS64 = &Descriptor{Kind: Integer, Bits: 64, Signed: true}

	PrimitiveU8  = &Descriptor{Kind: Integer, Bits: 8, Signed: false}
	PrimitiveU16 = &Descriptor{Kind: Integer, Bits: 16, Signed: false}
	PrimitiveU32 = &Descriptor{Kind: Integer, Bits: 32, Signed: false}
	PrimitiveU64 = &Descriptor{Kind: Integer, Bits: 64, Signed: false}

	// PrimitivePointerSize is the pointer-width integer constant required
	// by spec.md §6 to be handed to the front end alongside void/integer.
	PrimitivePointerSize = PrimitiveU64
)

// NewPointer returns a pointer-to-pointee descriptor.
func NewPointer(pointee *Descriptor) *Descriptor {
	return &Descriptor{Kind: Pointer, Pointee: pointee}
}

// NewFixedArray returns a fixed-size array descriptor.
func NewFixedArray(elem *Descriptor, length int) *Descriptor {
	return &Descriptor{Kind: FixedArray, Elem: elem, Length: length}
}

// NewFunction returns a function-signature descriptor.
func NewFunction(args []*Descriptor, ret *Descriptor) *Descriptor {
	return &Descriptor{Kind: Function, Args: args, Return: ret}
}

// NewTaggedUnion returns a tagged-union descriptor over the given named
// struct variants, in declaration order (spec.md §4.7). The order fixes
// each variant's tag index.
func NewTaggedUnion(variants ...*Descriptor) *Descriptor {
	return &Descriptor{Kind: TaggedUnion, Variants: variants}
}

// Equal reports structural equality, used by move_value/call/fn_return
// typechecking (spec.md §7 Type errors).
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == other {
		return true
	}
	if d == nil || other == nil || d.Kind != other.Kind {
		return false
	}
	switch d.Kind {
	case Void:
		return true
	case Integer:
		return d.Bits == other.Bits && d.Signed == other.Signed
	case Pointer:
		return d.Pointee.Equal(other.Pointee)
	case FixedArray:
		return d.Length == other.Length && d.Elem.Equal(other.Elem)
	case Function:
		if !d.Return.Equal(other.Return) || len(d.Args) != len(other.Args) {
			return false
		}
		for i := range d.Args {
			if !d.Args[i].Equal(other.Args[i]) {
				return false
			}
		}
		return true
	case Struct:
		if len(d.Fields) != len(other.Fields) {
			return false
		}
		for i := range d.Fields {
			if d.Fields[i].Name != other.Fields[i].Name ||
				d.Fields[i].Offset != other.Fields[i].Offset ||
				!d.Fields[i].Type.Equal(other.Fields[i].Type) {
				return false
			}
		}
		return true
	case TaggedUnion:
		if len(d.Variants) != len(other.Variants) {
			return false
		}
		for i := range d.Variants {
			if !d.Variants[i].Equal(other.Variants[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
