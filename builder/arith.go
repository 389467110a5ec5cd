package builder

import (
	"github.com/rns-lang/x64codegen/asm"
	"github.com/rns-lang/x64codegen/descriptor"
	"github.com/rns-lang/x64codegen/operand"
)

// arithOp names one of the four binary arithmetic operations spec.md
// §4.5 describes by the shared load-compute-store algorithm.
type arithOp uint8

const (
	opAdd arithOp = iota
	opSub
	opMulSigned
	opDivSigned
)

func (b *Builder) checkArithOperands(op string, a, c descriptor.Value) error {
	if a.Op.Kind == operand.RegisterKind && a.Op.Reg == operand.A {
		return NewBuildError(b.Name, op+": left operand must not be held in register A at entry")
	}
	if c.Op.Kind == operand.RegisterKind && c.Op.Reg == operand.A {
		return NewBuildError(b.Name, op+": right operand must not be held in register A at entry")
	}
	if op != "rns_add" && !a.Type.Equal(c.Type) {
		return NewBuildError(b.Name, op+": operand descriptors must match")
	}
	if op == "rns_add" && !a.Type.Equal(c.Type) {
		// add additionally allows pointer + s64 (spec.md §4.5).
		pointerPlusOffset := a.Type.Kind == descriptor.Pointer && c.Type.Kind == descriptor.Integer && c.Type.Bits == 64 && c.Type.Signed
		if !pointerPlusOffset {
			return NewBuildError(b.Name, "rns_add: operand descriptors must match, or be pointer + s64")
		}
	}
	return nil
}

// binaryArith implements spec.md §4.5's shared algorithm: load right
// into a stack slot, load left into A, emit the opcode with (A,
// right-slot), store A into a fresh stack slot.
func (b *Builder) binaryArith(name string, mnemonic asm.Mnemonic, left, right descriptor.Value) (descriptor.Value, error) {
	size := left.Type.Size()

	rightSlot, err := b.StackReserve(right.Type)
	if err != nil {
		return descriptor.Value{}, err
	}
	if err := b.MoveValue(rightSlot, right); err != nil {
		return descriptor.Value{}, err
	}

	accum := operand.Reg(operand.A, size)
	accumValue := descriptor.Value{Type: left.Type, Op: accum}
	if err := b.MoveValue(accumValue, left); err != nil {
		return descriptor.Value{}, err
	}

	b.emit(mnemonic, accum, rightSlot.Op)

	resultSlot, err := b.StackReserve(left.Type)
	if err != nil {
		return descriptor.Value{}, err
	}
	if err := b.MoveValue(resultSlot, accumValue); err != nil {
		return descriptor.Value{}, err
	}
	_ = name
	return resultSlot, nil
}

// RnsAdd implements spec.md §4.5 rns_add.
func (b *Builder) RnsAdd(left, right descriptor.Value) (descriptor.Value, error) {
	if err := b.checkArithOperands("rns_add", left, right); err != nil {
		return descriptor.Value{}, err
	}
	return b.binaryArith("rns_add", asm.ADD, left, right)
}

// RnsSub implements spec.md §4.5 rns_sub.
func (b *Builder) RnsSub(left, right descriptor.Value) (descriptor.Value, error) {
	if err := b.checkArithOperands("rns_sub", left, right); err != nil {
		return descriptor.Value{}, err
	}
	return b.binaryArith("rns_sub", asm.SUB, left, right)
}

// RnsMulSigned implements spec.md §4.5 rns_mul_signed.
func (b *Builder) RnsMulSigned(left, right descriptor.Value) (descriptor.Value, error) {
	if err := b.checkArithOperands("rns_mul_signed", left, right); err != nil {
		return descriptor.Value{}, err
	}
	return b.binaryArith("rns_mul_signed", asm.IMUL, left, right)
}

// signExtendMnemonicFor returns the cwd/cdq/cqo form matching size, the
// sign-extension the division algorithm needs before idiv (spec.md
// §4.5's "additionally saves and restores the D register and emits the
// appropriate sign-extension instruction").
func signExtendMnemonicFor(size int) asm.Mnemonic {
	switch size {
	case 2:
		return asm.CWD
	case 4:
		return asm.CDQ
	default:
		return asm.CQO
	}
}

// RnsDivSigned implements spec.md §4.5 rns_div_signed: the D register is
// saved and restored around the division since idiv clobbers it as the
// remainder half of the dividend.
func (b *Builder) RnsDivSigned(left, right descriptor.Value) (descriptor.Value, error) {
	if err := b.checkArithOperands("rns_div_signed", left, right); err != nil {
		return descriptor.Value{}, err
	}
	size := left.Type.Size()

	rightSlot, err := b.StackReserve(right.Type)
	if err != nil {
		return descriptor.Value{}, err
	}
	if err := b.MoveValue(rightSlot, right); err != nil {
		return descriptor.Value{}, err
	}

	savedD, err := b.StackReserve(descriptor.PrimitiveS64)
	if err != nil {
		return descriptor.Value{}, err
	}
	b.emit(asm.MOV, savedD.Op, operand.Reg(operand.D, 8))

	accum := operand.Reg(operand.A, size)
	if err := b.MoveValue(descriptor.Value{Type: left.Type, Op: accum}, left); err != nil {
		return descriptor.Value{}, err
	}

	b.emit(signExtendMnemonicFor(size))
	b.emit(asm.IDIV, rightSlot.Op)

	resultSlot, err := b.StackReserve(left.Type)
	if err != nil {
		return descriptor.Value{}, err
	}
	b.emit(asm.MOV, resultSlot.Op, accum)

	b.emit(asm.MOV, operand.Reg(operand.D, 8), savedD.Op)

	return resultSlot, nil
}

// CompareOp names the comparison spec.md §4.5 compare accepts.
type CompareOp uint8

const (
	Equal CompareOp = iota
	Less
	Greater
)

func setMnemonicFor(op CompareOp) asm.Mnemonic {
	switch op {
	case Equal:
		return asm.SETE
	case Less:
		return asm.SETL
	default:
		return asm.SETG
	}
}

// Compare implements spec.md §4.5 compare: zeroes A, emits cmp, emits the
// matching setcc into AL, stores A into a fresh "bool-like s64" stack
// slot.
func (b *Builder) Compare(op CompareOp, a, c descriptor.Value) (descriptor.Value, error) {
	if !a.Type.Equal(c.Type) {
		return descriptor.Value{}, NewBuildError(b.Name, "compare: operand descriptors must match")
	}

	// Zero A before cmp: setcc only ever writes AL, and xor-ing A after
	// cmp would clobber the flags cmp just set.
	b.emit(asm.XOR, operand.Reg(operand.A, 4), operand.Reg(operand.A, 4))
	right := c.Op
	if right.Kind == operand.ImmediateKind && right.Size == 8 && int64(int32(right.Imm)) == right.Imm {
		// cmp r/m64 only takes a sign-extended imm32.
		right.Size = 4
	}
	b.emit(asm.CMP, a.Op, right)
	b.emit(setMnemonicFor(op), operand.Reg(operand.A, 1))

	resultSlot, err := b.StackReserve(descriptor.PrimitiveS64)
	if err != nil {
		return descriptor.Value{}, err
	}
	b.emit(asm.MOV, resultSlot.Op, operand.Reg(operand.A, 8))
	return resultSlot, nil
}
