package asm

import (
	"math"

	"github.com/rns-lang/x64codegen/execbuf"
	"github.com/rns-lang/x64codegen/operand"
)

// StackPatchSite is one frame-relative displacement the encoder wrote
// provisionally; the function builder collects these across a whole
// function body and rewrites them once the final frame size is known
// (spec.md §4.3).
type StackPatchSite struct {
	Location     uint32
	OriginalDisp int32
	Size         int
}

// Encoder selects and emits x86-64 instructions into an execution buffer.
// It carries no mutable state of its own — the buffer and labels own all
// state — so a single Encoder value can be shared across functions and
// goroutines each driving its own buffer (spec.md §5).
type Encoder struct{}

// NewEncoder returns a ready-to-use Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// BindLabel implements spec.md §4.4's bind_label: records buf's current
// offset as l's target and back-patches every pending site.
func (e *Encoder) BindLabel(buf *execbuf.Buffer, l *operand.Label) error {
	target := buf.Offset()
	sites := l.Bind(target)
	for _, s := range sites {
		diff := int64(target) - int64(s.From)
		if !fitsSigned(diff, s.Size) {
			return NewEncodingError("", nil, "label patch displacement out of range")
		}
		if err := buf.PatchAt(s.Location, diff, s.Size); err != nil {
			return err
		}
	}
	return nil
}

func fitsSigned(v int64, size int) bool {
	switch size {
	case 1:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case 2:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case 4:
		return v >= math.MinInt32 && v <= math.MaxInt32
	default:
		return true
	}
}

// EncodeInstruction implements spec.md §4.2: select a matching encoding,
// assemble REX, opcode, ModR/M, SIB, displacement, and immediate bytes in
// that order, and resolve or record relative-to-label operands. It
// returns any frame-relative stack displacements it wrote, for the
// caller (the function builder) to fix up at fn_end.
func (e *Encoder) EncodeInstruction(buf *execbuf.Buffer, mnemonic Mnemonic, ops []operand.Operand) ([]StackPatchSite, error) {
	enc, c, ok := selectEncoding(mnemonic, ops)
	if !ok {
		return nil, NewEncodingError(mnemonic, ops, "no matching encoding combination")
	}
	padded := padOperands(ops)

	if err := checkRexHighByteExclusion(mnemonic, ops, padded, c); err != nil {
		return nil, err
	}

	rexByte, needRex := assembleRex(c, padded)
	opcode := append([]byte(nil), enc.Opcode...)
	if enc.Options.Kind == OptOpcodePlusRegister {
		opReg := padded[c.OpcodeRegSlot].Reg
		opcode[len(opcode)-1] = (opcode[len(opcode)-1] &^ 0x07) | opReg.Low3()
	}

	if needRex {
		if err := buf.Emit(rexByte); err != nil {
			return nil, err
		}
	} else if needsOperandSizePrefix(enc.Options, padded) {
		if err := buf.Emit(0x66); err != nil {
			return nil, err
		}
	}

	if err := buf.Emit(opcode...); err != nil {
		return nil, err
	}

	needModRM := c.RMSlot >= 0
	var stackSites []StackPatchSite
	if needModRM {
		sites, err := emitModRM(buf, enc.Options, c, padded)
		if err != nil {
			return nil, err
		}
		stackSites = sites
	}

	for i := 0; i < 4; i++ {
		op := padded[i]
		if op.Kind == operand.ImmediateKind {
			if err := buf.Emit(leBytes(op.Imm, op.Size)...); err != nil {
				return nil, err
			}
		}
		if op.Kind == operand.RelativeToLabelKind {
			if err := emitRelative(buf, op); err != nil {
				return nil, err
			}
		}
	}

	return stackSites, nil
}

// checkRexHighByteExclusion enforces spec.md §8 property 5: a REX prefix
// may never be combined with the legacy high-byte register aliases
// (AH/CH/DH/BH).
func checkRexHighByteExclusion(mnemonic Mnemonic, ops []operand.Operand, padded [4]operand.Operand, c *Combination) error {
	if _, needsRex := assembleRex(c, padded); !needsRex {
		return nil
	}
	for _, op := range padded {
		if op.Kind == operand.RegisterKind && op.Size == 1 && op.Reg.HighByteAlias() {
			return NewEncodingError(mnemonic, ops, "cannot combine REX prefix with AH/CH/DH/BH alias")
		}
	}
	return nil
}

// assembleRex implements spec.md §4.2 step 2.
func assembleRex(c *Combination, padded [4]operand.Operand) (byte, bool) {
	w := c.Rex == RexW
	var r, x, b bool

	if c.RegSlot >= 0 {
		if reg := padded[c.RegSlot]; reg.Kind == operand.RegisterKind && reg.Reg.Extended() {
			r = true
		}
	}
	if c.OpcodeRegSlot >= 0 {
		if reg := padded[c.OpcodeRegSlot]; reg.Kind == operand.RegisterKind && reg.Reg.Extended() {
			b = true
		}
	}
	if c.RMSlot >= 0 {
		rmOp := padded[c.RMSlot]
		switch rmOp.Kind {
		case operand.RegisterKind:
			if rmOp.Reg.Extended() {
				b = true
			}
		case operand.MemoryIndirectKind:
			if rmOp.Base.Extended() {
				b = true
			}
			if rmOp.UsesSIB() && rmOp.Base.Extended() {
				x = true
			}
		}
	}

	if !w && !r && !x && !b {
		return 0, false
	}
	rex := byte(0x40)
	if w {
		rex |= 0x08
	}
	if r {
		rex |= 0x04
	}
	if x {
		rex |= 0x02
	}
	if b {
		rex |= 0x01
	}
	return rex, true
}

// needsOperandSizePrefix implements the 0x66 half of spec.md §4.2 step 2:
// emitted only when no REX byte was produced.
func needsOperandSizePrefix(opts Options, padded [4]operand.Operand) bool {
	if opts.Kind == OptExplicitSize && opts.ExplicitSize == 2 {
		return true
	}
	for _, op := range padded {
		if op.Kind == operand.RegisterKind && op.Size == 2 {
			return true
		}
	}
	return false
}

// emitModRM implements spec.md §4.2 steps 5-6.
func emitModRM(buf *execbuf.Buffer, opts Options, c *Combination, padded [4]operand.Operand) ([]StackPatchSite, error) {
	var regField byte
	switch {
	case opts.Kind == OptDigit:
		regField = opts.Digit
	case c.RegSlot >= 0:
		regField = padded[c.RegSlot].Reg.Low3()
	}

	var mod, rm byte
	rmOp := padded[c.RMSlot]
	switch rmOp.Kind {
	case operand.RegisterKind:
		mod = 0b11
		rm = rmOp.Reg.Low3()
	case operand.MemoryIndirectKind:
		mod = 0b10
		rm = rmOp.Base.Low3()
	case operand.RIPRelativeKind:
		mod = 0b00
		rm = 0b101
	}

	modrm := mod<<6 | regField<<3 | rm
	if err := buf.Emit(modrm); err != nil {
		return nil, err
	}

	if rmOp.Kind != operand.MemoryIndirectKind && rmOp.Kind != operand.RIPRelativeKind {
		return nil, nil
	}

	if rmOp.UsesSIB() {
		sib := byte(0)<<6 | rmOp.Base.Low3()<<3 | rmOp.Base.Low3()
		if err := buf.Emit(sib); err != nil {
			return nil, err
		}
	}

	var sites []StackPatchSite
	switch rmOp.Kind {
	case operand.MemoryIndirectKind:
		loc := buf.Offset()
		if err := buf.Emit(leBytes(int64(rmOp.Displacement), 4)...); err != nil {
			return nil, err
		}
		if rmOp.FrameRelative {
			sites = append(sites, StackPatchSite{Location: loc, OriginalDisp: rmOp.Displacement, Size: 4})
		}
	case operand.RIPRelativeKind:
		loc, err := buf.Reserve(4)
		if err != nil {
			return nil, err
		}
		disp := int64(rmOp.RIPTarget) - int64(loc+4)
		if !fitsSigned(disp, 4) {
			return nil, NewEncodingError("", nil, "RIP-relative displacement out of range")
		}
		if err := buf.PatchAt(loc, disp, 4); err != nil {
			return nil, err
		}
	}
	return sites, nil
}

// emitRelative implements spec.md §4.2 step 8 / §4.4's reference_label.
func emitRelative(buf *execbuf.Buffer, op operand.Operand) error {
	if op.Label.Bound() {
		from := buf.Offset() + uint32(op.Size)
		diff := int64(op.Label.Target()) - int64(from)
		if !fitsSigned(diff, op.Size) {
			return NewEncodingError("", nil, "branch displacement out of range")
		}
		return buf.Emit(leBytes(diff, op.Size)...)
	}
	loc, err := buf.Reserve(op.Size)
	if err != nil {
		return err
	}
	from := loc + uint32(op.Size)
	op.Label.AddSite(operand.PatchSite{Location: loc, From: from, Size: op.Size})
	// fill placeholder with a recognisable byte (spec.md §4.2 step 8)
	filler := make([]byte, op.Size)
	for i := range filler {
		filler[i] = 0xCC
	}
	return buf.PatchAt(loc, leToInt(filler), op.Size)
}

func leBytes(v int64, size int) []byte {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

func leToInt(b []byte) int64 {
	var v uint64
	for i, by := range b {
		v |= uint64(by) << (8 * i)
	}
	return int64(v)
}
