package builder

import (
	"github.com/rns-lang/x64codegen/asm"
	"github.com/rns-lang/x64codegen/descriptor"
	"github.com/rns-lang/x64codegen/operand"
)

// Callee is the value a call site invokes through: either a direct
// relative-to-label operand (a function defined in the same
// compilation) or an arbitrary register/memory operand holding a raw
// function pointer (an external C function, spec.md §6 "external
// library calls").
type Callee struct {
	Signature *descriptor.Descriptor
	Op        operand.Operand
}

// DirectCallee builds a Callee for a function builder's own entry label.
func DirectCallee(sig *descriptor.Descriptor, entry *operand.Label) Callee {
	return Callee{Signature: sig, Op: operand.RelativeToLabel(entry)}
}

// IndirectCallee builds a Callee for an external function known only by
// a raw pointer address, loaded into a value beforehand.
func IndirectCallee(sig *descriptor.Descriptor, addressOperand operand.Operand) Callee {
	return Callee{Signature: sig, Op: addressOperand}
}

// Call implements spec.md §4.5 call: typechecks arguments against the
// callee's signature, places each into its expected slot, updates the
// outgoing-argument high-water mark, emits the call, and returns a fresh
// stack slot holding the return value (using the hidden-pointer
// convention when the return descriptor is larger than 8 bytes).
func (b *Builder) Call(callee Callee, args []descriptor.Value) (descriptor.Value, error) {
	if err := b.checkNotFrozen("call"); err != nil {
		return descriptor.Value{}, err
	}
	if len(args) != len(callee.Signature.Args) {
		return descriptor.Value{}, NewBuildError(b.Name, "call: argument count mismatch")
	}
	for i, a := range args {
		if !a.Type.Equal(callee.Signature.Args[i]) {
			return descriptor.Value{}, NewBuildError(b.Name, "call: argument descriptor mismatch")
		}
	}

	b.noteCallParameterStackSize(len(args))

	returnSize := callee.Signature.Return.Size()
	largeReturn := returnSize > 8

	var hiddenReturnSlot descriptor.Value
	var err error
	if largeReturn {
		hiddenReturnSlot, err = b.StackReserve(callee.Signature.Return)
		if err != nil {
			return descriptor.Value{}, err
		}
	}

	regArgs := b.Policy.ArgRegisters
	argStart := 0
	if largeReturn {
		slotAddr := hiddenReturnSlot.Op
		slotAddr.Size = 8
		b.emit(asm.LEA, operand.Reg(b.Policy.HiddenReturnRegister, 8), slotAddr)
		argStart = 1
	}

	for i, a := range args {
		slotIndex := i + argStart
		if slotIndex < len(regArgs) {
			b.emit(asm.MOV, operand.Reg(regArgs[slotIndex], a.Type.Size()), a.Op)
			continue
		}
		stackIndex := slotIndex - len(regArgs)
		dest := operand.FrameSlot(b.frameBase(), int32(8*stackIndex), a.Type.Size())
		b.emit(asm.MOV, dest, a.Op)
	}

	b.emit(asm.CALL, callee.Op)

	if largeReturn {
		return hiddenReturnSlot, nil
	}

	resultSlot, err := b.StackReserve(callee.Signature.Return)
	if err != nil {
		return descriptor.Value{}, err
	}
	b.emit(asm.MOV, resultSlot.Op, operand.Reg(b.Policy.ReturnRegisters[0], returnSize))
	return resultSlot, nil
}

// FnReturn implements spec.md §4.5 fn_return: the first call fixes the
// function's return descriptor; later calls are typechecked against it.
// It moves value into the return register (or the caller-supplied hidden
// return slot for large returns) and jumps to the epilogue label.
func (b *Builder) FnReturn(value descriptor.Value) error {
	if err := b.checkNotFrozen("fn_return"); err != nil {
		return err
	}
	if !b.returnSet {
		b.returnDescriptor = value.Type
		b.returnSet = true
	} else if !b.returnDescriptor.Equal(value.Type) {
		return NewBuildError(b.Name, "fn_return: descriptor mismatch with earlier return")
	}

	size := value.Type.Size()
	if size > 8 {
		if !b.hasHiddenReturnSlot {
			return NewBuildError(b.Name, "fn_return: large return value but fn_begin was not given a large return type")
		}
		// large return: the hidden pointer was saved off its argument
		// register into hiddenReturnSlot at fn_begin, since the
		// register itself isn't preserved across the function body;
		// load it back into D and copy value's bytes there through A,
		// one pointer-width chunk at a time.
		remaining := size
		offset := int32(0)
		for remaining > 0 {
			chunk := addDisplacement(value.Op, offset)
			chunk.Size = 8
			b.emit(asm.MOV, operand.Reg(operand.D, 8), b.hiddenReturnSlot.Op)
			b.emit(asm.MOV, operand.Reg(operand.A, 8), chunk)
			b.emit(asm.MOV, operand.Mem(operand.D, offset, 8), operand.Reg(operand.A, 8))
			remaining -= 8
			offset += 8
		}
	} else {
		b.emit(asm.MOV, operand.Reg(b.Policy.ReturnRegisters[0], size), value.Op)
	}

	b.emit(asm.JMP, operand.RelativeToLabel(b.epilogueLabel))
	return nil
}

// addDisplacement returns a memory-indirect operand advanced by delta
// bytes, used for field-by-field large-value copies. op must already be
// memory-indirect or RIP-relative.
func addDisplacement(op operand.Operand, delta int32) operand.Operand {
	out := op
	out.Displacement += delta
	return out
}
