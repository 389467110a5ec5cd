package builder

import (
	"github.com/rns-lang/x64codegen/asm"
	"github.com/rns-lang/x64codegen/descriptor"
	"github.com/rns-lang/x64codegen/operand"
)

// MoveValue implements spec.md §4.5 move_value: emits one or two mov
// instructions depending on the operand kinds involved, going through
// scratch register A whenever the source and destination can't be
// connected by a single mov (memory-to-memory, or a 64-bit immediate
// into memory).
func (b *Builder) MoveValue(dst, src descriptor.Value) error {
	if err := b.checkNotFrozen("move_value"); err != nil {
		return err
	}
	dstSize := dst.Type.Size()
	srcOp := src.Op
	widening := srcOp.Kind == operand.ImmediateKind && srcOp.Size == 4 && dstSize == 8

	if dst.Type.Size() != src.Type.Size() && !widening {
		return NewBuildError(b.Name, "move_value: size mismatch between source and destination")
	}

	if widening {
		// sign-extend a 32-bit immediate into a 64-bit destination
		// (spec.md §4.5's one documented size-mismatch exception).
		srcOp = operand.Imm64(srcOp.Imm, dstSize)
	}

	bothMemory := dst.Op.IsLValue() && srcOp.IsLValue()
	wideImmIntoMemory := dst.Op.IsLValue() && srcOp.Kind == operand.ImmediateKind && srcOp.Size == 8

	if bothMemory || wideImmIntoMemory {
		scratch := operand.Reg(operand.A, dstSize)
		b.emit(asm.MOV, scratch, srcOp)
		b.emit(asm.MOV, dst.Op, scratch)
		return nil
	}

	b.emit(asm.MOV, dst.Op, srcOp)
	return nil
}
