package builder

import (
	"github.com/rns-lang/x64codegen/asm"
	"github.com/rns-lang/x64codegen/descriptor"
	"github.com/rns-lang/x64codegen/operand"
)

// StructGetField implements spec.md §4.6 struct_get_field: returns a
// value whose operand is value's operand with displacement increased by
// the field's offset and whose descriptor is the field's. The base value
// must already be memory-indirect or RIP-relative.
func (b *Builder) StructGetField(value descriptor.Value, name string) (descriptor.Value, error) {
	if value.Type.Kind != descriptor.Struct {
		return descriptor.Value{}, NewBuildError(b.Name, "struct_get_field: value is not a struct")
	}
	if !value.Op.IsLValue() {
		return descriptor.Value{}, NewBuildError(b.Name, "struct_get_field: base value must be memory-indirect or a dereferenced pointer")
	}
	field, ok := value.Type.FieldByName(name)
	if !ok {
		return descriptor.Value{}, NewBuildError(b.Name, "struct_get_field: no field named "+name)
	}
	op := value.Op
	op.Displacement += int32(field.Offset)
	op.Size = field.Type.Size()
	return descriptor.Value{Type: field.Type, Op: op}, nil
}

// DereferencePointer turns a pointer rvalue held in a register into an
// lvalue of the pointee type, the step struct_get_field's contract
// requires before accessing a field through a pointer.
func (b *Builder) DereferencePointer(ptr descriptor.Value) (descriptor.Value, error) {
	if ptr.Type.Kind != descriptor.Pointer {
		return descriptor.Value{}, NewBuildError(b.Name, "dereference: value is not a pointer")
	}
	pointeeSize := ptr.Type.Pointee.Size()
	if ptr.Op.Kind == operand.RegisterKind {
		return descriptor.Value{Type: ptr.Type.Pointee, Op: operand.Mem(ptr.Op.Reg, 0, pointeeSize)}, nil
	}
	scratch, err := b.StackReserve(descriptor.PrimitivePointerSize)
	if err != nil {
		return descriptor.Value{}, err
	}
	if err := b.MoveValue(scratch, ptr); err != nil {
		return descriptor.Value{}, err
	}
	b.emit(asm.MOV, operand.Reg(operand.A, 8), scratch.Op)
	return descriptor.Value{Type: ptr.Type.Pointee, Op: operand.Mem(operand.A, 0, pointeeSize)}, nil
}

// CastToTag implements spec.md §4.7 cast_to_tag: loads the tag, compares
// it against the named variant's index, and conditionally sets a result
// pointer to value+8 (past the tag); otherwise the result stays
// nullptr. The returned value has descriptor "pointer to the matched
// variant's struct".
func (b *Builder) CastToTag(value descriptor.Value, name string) (descriptor.Value, error) {
	if value.Type.Kind != descriptor.TaggedUnion {
		return descriptor.Value{}, NewBuildError(b.Name, "cast_to_tag: value is not a tagged union")
	}
	variantIndex, variant := findVariant(value.Type, name)
	if variant == nil {
		return descriptor.Value{}, NewBuildError(b.Name, "cast_to_tag: no variant named "+name)
	}
	if !value.Op.IsLValue() {
		return descriptor.Value{}, NewBuildError(b.Name, "cast_to_tag: value must be memory-indirect")
	}

	resultType := descriptor.NewPointer(variant)
	resultSlot, err := b.StackReserve(resultType)
	if err != nil {
		return descriptor.Value{}, err
	}
	b.emit(asm.MOV, resultSlot.Op, operand.Imm64(0, 8))

	tagOp := value.Op
	tagOp.Size = 8
	matches, err := b.Compare(Equal, descriptor.Value{Type: descriptor.PrimitiveS64, Op: tagOp}, descriptor.Value{Type: descriptor.PrimitiveS64, Op: operand.Imm64(int64(variantIndex), 8)})
	if err != nil {
		return descriptor.Value{}, err
	}
	end, err := b.IfBegin(matches)
	if err != nil {
		return descriptor.Value{}, err
	}
	payload := value.Op
	payload.Displacement += 8
	payload.Size = 8
	b.emit(asm.LEA, operand.Reg(operand.A, 8), payload)
	b.emit(asm.MOV, resultSlot.Op, operand.Reg(operand.A, 8))
	if err := b.IfEnd(end); err != nil {
		return descriptor.Value{}, err
	}

	return resultSlot, nil
}

func findVariant(t *descriptor.Descriptor, name string) (int, *descriptor.Descriptor) {
	for i, v := range t.Variants {
		if v.Name == name {
			return i, v
		}
	}
	return -1, nil
}
