// Package asm implements the data-driven x86-64 encoding tables and the
// encoder that selects and emits bytes from them (spec.md §4.1, §4.2), plus
// the label & patch manager (spec.md §4.4) that resolves relative operands.
package asm

import "github.com/rns-lang/x64codegen/operand"

// Mnemonic names a family of instructions sharing operand-selection rules
// but differing in operand shape (spec.md GLOSSARY).
type Mnemonic string

const (
	MOV  Mnemonic = "mov"
	ADD  Mnemonic = "add"
	SUB  Mnemonic = "sub"
	IMUL Mnemonic = "imul"
	IDIV Mnemonic = "idiv"
	INC  Mnemonic = "inc"
	CMP  Mnemonic = "cmp"
	XOR  Mnemonic = "xor"
	LEA  Mnemonic = "lea"
	PUSH Mnemonic = "push"
	POP  Mnemonic = "pop"
	CALL Mnemonic = "call"
	RET  Mnemonic = "ret"
	JMP  Mnemonic = "jmp"

	JE  Mnemonic = "je"
	JNE Mnemonic = "jne"
	JL  Mnemonic = "jl"
	JLE Mnemonic = "jle"
	JG  Mnemonic = "jg"
	JGE Mnemonic = "jge"
	JB  Mnemonic = "jb"
	JBE Mnemonic = "jbe"
	JA  Mnemonic = "ja"
	JAE Mnemonic = "jae"

	SETE  Mnemonic = "sete"
	SETL  Mnemonic = "setl"
	SETG  Mnemonic = "setg"
	SETNE Mnemonic = "setne"
	SETLE Mnemonic = "setle"
	SETGE Mnemonic = "setge"

	CWD Mnemonic = "cwd"
	CDQ Mnemonic = "cdq"
	CQO Mnemonic = "cqo"
)

// RexHint is the per-combination REX hint of spec.md §4.1: whether the
// combination mandates REX.W (a genuinely 64-bit opcode form). R/X/B bits
// are never forced by the table — they are always computed from the
// matched operands' register indices (spec.md §4.2 step 2).
type RexHint uint8

const (
	RexNone RexHint = iota
	RexW
)

// OptionKind distinguishes the ModR/M-related encoding options of spec.md
// §4.1.
type OptionKind uint8

const (
	OptNone OptionKind = iota
	OptDigit
	OptOpcodePlusRegister
	OptExplicitSize
)

// Options carries the ModR/M extension rule for one Encoding.
type Options struct {
	Kind         OptionKind
	Digit        byte // 0..7, for OptDigit
	ExplicitSize int  // operand-size-prefix override, for OptExplicitSize
}

// SlotKind tags an operand-encoding slot's acceptable operand shape
// (spec.md §4.1).
type SlotKind uint8

const (
	SlotNone SlotKind = iota
	SlotRegister
	SlotRegisterA
	SlotRegisterOrMemory
	SlotRelative
	SlotMemory
	SlotImmediate
)

// Slot is one operand-encoding entry: a (kind, required size) pair.
type Slot struct {
	Kind SlotKind
	Size int
}

// Combination is one legal operand shape within an Encoding. RegSlot,
// RMSlot and OpcodeRegSlot name, by index into Slots, which matched
// operand (if any) feeds the ModR/M reg field, the ModR/M r/m field, and
// the opcode-plus-register merge respectively; -1 means "none".
type Combination struct {
	Rex           RexHint
	Slots         [4]Slot
	RegSlot       int
	RMSlot        int
	OpcodeRegSlot int
}

// Encoding is one opcode template for a Mnemonic: its byte sequence,
// ModR/M-related options, and the operand combinations it accepts.
type Encoding struct {
	Opcode  []byte
	Options Options
	Combos  []Combination
}

// Table holds every Encoding for every Mnemonic this assembler supports.
// It is built once as immutable, read-only data (spec.md §9 design note)
// and consulted by Encoder.EncodeInstruction; nothing in the encoder ever
// mutates it.
var Table = map[Mnemonic][]Encoding{}

func reg(size int) Slot  { return Slot{Kind: SlotRegister, Size: size} }
func regA(size int) Slot { return Slot{Kind: SlotRegisterA, Size: size} }
func rm(size int) Slot   { return Slot{Kind: SlotRegisterOrMemory, Size: size} }
func mem(size int) Slot  { return Slot{Kind: SlotMemory, Size: size} }
func imm(size int) Slot  { return Slot{Kind: SlotImmediate, Size: size} }
func rel(size int) Slot  { return Slot{Kind: SlotRelative, Size: size} }
func none() Slot         { return Slot{Kind: SlotNone} }

func withSlots(slots ...Slot) [4]Slot {
	var out [4]Slot
	copy(out[:], slots)
	return out
}

// rmReg builds an "r/m, reg" shape: ModRM.reg = the second operand,
// ModRM.r_m = the first (register-or-memory) operand.
func rmReg(rexHint RexHint, size int) Combination {
	return Combination{Rex: rexHint, Slots: withSlots(rm(size), reg(size)), RegSlot: 1, RMSlot: 0, OpcodeRegSlot: -1}
}

// regRM builds a "reg, r/m" shape: ModRM.reg = the first operand,
// ModRM.r_m = the second (register-or-memory or memory) operand.
func regRM(rexHint RexHint, size int) Combination {
	return Combination{Rex: rexHint, Slots: withSlots(reg(size), rm(size)), RegSlot: 0, RMSlot: 1, OpcodeRegSlot: -1}
}

// regMem builds LEA's "reg, mem" shape.
func regMem(rexHint RexHint, size int) Combination {
	return Combination{Rex: rexHint, Slots: withSlots(reg(size), mem(size)), RegSlot: 0, RMSlot: 1, OpcodeRegSlot: -1}
}

// digitRM builds a single register-or-memory operand combination whose
// ModRM.reg field is the encoding's constant digit (e.g. INC, IDIV).
func digitRM(rexHint RexHint, size int) Combination {
	return Combination{Rex: rexHint, Slots: withSlots(rm(size)), RegSlot: -1, RMSlot: 0, OpcodeRegSlot: -1}
}

// digitRMImm builds a register-or-memory destination plus an immediate,
// with the ModRM.reg field supplied by the encoding's constant digit.
func digitRMImm(rexHint RexHint, rmSize, immSize int) Combination {
	return Combination{Rex: rexHint, Slots: withSlots(rm(rmSize), imm(immSize)), RegSlot: -1, RMSlot: 0, OpcodeRegSlot: -1}
}

// opcodeReg builds a single-register combination merged into the opcode's
// low three bits (PUSH/POP reg).
func opcodeReg(size int) Combination {
	return Combination{Rex: RexNone, Slots: withSlots(reg(size)), RegSlot: -1, RMSlot: -1, OpcodeRegSlot: 0}
}

// opcodeRegImm builds MOV reg, imm's opcode-plus-register short form.
func opcodeRegImm(rexHint RexHint, regSize, immSize int) Combination {
	return Combination{Rex: rexHint, Slots: withSlots(reg(regSize), imm(immSize)), RegSlot: -1, RMSlot: -1, OpcodeRegSlot: 0}
}

// accumImm builds an accumulator-specific immediate short form (no ModR/M).
func accumImm(rexHint RexHint, size, immSize int) Combination {
	return Combination{Rex: rexHint, Slots: withSlots(regA(size), imm(immSize)), RegSlot: -1, RMSlot: -1, OpcodeRegSlot: -1}
}

// relOnly builds a relative-to-label-only combination (no ModR/M).
func relOnly(size int) Combination {
	return Combination{Rex: RexNone, Slots: withSlots(rel(size)), RegSlot: -1, RMSlot: -1, OpcodeRegSlot: -1}
}

// noOperands builds a zero-operand combination (RET, CWD/CDQ/CQO).
func noOperands(rexHint RexHint) Combination {
	return Combination{Rex: rexHint, Slots: withSlots(none()), RegSlot: -1, RMSlot: -1, OpcodeRegSlot: -1}
}

// arithmeticFamily builds the shared shape of add/sub/cmp/xor: r/m-reg and
// reg-r/m forms across byte/word/dword/qword sizes, an accumulator
// immediate short form, and the general r/m-immediate form.
func arithmeticFamily(rm8op, rmWideOp, regFromRM8op, regFromRMWideOp byte, digit byte, alImm8op, raxImmWideOp byte) []Encoding {
	return []Encoding{
		{Opcode: []byte{rm8op}, Combos: []Combination{rmReg(RexNone, 1)}},
		{Opcode: []byte{rmWideOp}, Combos: []Combination{rmReg(RexNone, 2), rmReg(RexNone, 4), rmReg(RexW, 8)}},
		{Opcode: []byte{regFromRM8op}, Combos: []Combination{regRM(RexNone, 1)}},
		{Opcode: []byte{regFromRMWideOp}, Combos: []Combination{regRM(RexNone, 2), regRM(RexNone, 4), regRM(RexW, 8)}},
		{Opcode: []byte{alImm8op}, Combos: []Combination{accumImm(RexNone, 1, 1)}},
		{Opcode: []byte{raxImmWideOp}, Combos: []Combination{
			accumImm(RexNone, 2, 2),
			accumImm(RexNone, 4, 4),
			accumImm(RexW, 8, 4), // imm32 sign-extended into the 64-bit accumulator
		}},
		{Opcode: []byte{0x80}, Options: Options{Kind: OptDigit, Digit: digit}, Combos: []Combination{digitRMImm(RexNone, 1, 1)}},
		{Opcode: []byte{0x81}, Options: Options{Kind: OptDigit, Digit: digit}, Combos: []Combination{
			digitRMImm(RexNone, 2, 2),
			digitRMImm(RexNone, 4, 4),
			digitRMImm(RexW, 8, 4),
		}},
	}
}

func init() {
	Table[ADD] = arithmeticFamily(0x00, 0x01, 0x02, 0x03, 0, 0x04, 0x05)
	Table[SUB] = arithmeticFamily(0x28, 0x29, 0x2A, 0x2B, 5, 0x2C, 0x2D)
	Table[CMP] = arithmeticFamily(0x38, 0x39, 0x3A, 0x3B, 7, 0x3C, 0x3D)
	Table[XOR] = arithmeticFamily(0x30, 0x31, 0x32, 0x33, 6, 0x34, 0x35)

	Table[MOV] = []Encoding{
		{Opcode: []byte{0x88}, Combos: []Combination{rmReg(RexNone, 1)}},
		{Opcode: []byte{0x89}, Combos: []Combination{rmReg(RexNone, 2), rmReg(RexNone, 4), rmReg(RexW, 8)}},
		{Opcode: []byte{0x8A}, Combos: []Combination{regRM(RexNone, 1)}},
		{Opcode: []byte{0x8B}, Combos: []Combination{regRM(RexNone, 2), regRM(RexNone, 4), regRM(RexW, 8)}},
		{Opcode: []byte{0xB0}, Options: Options{Kind: OptOpcodePlusRegister}, Combos: []Combination{opcodeRegImm(RexNone, 1, 1)}},
		{Opcode: []byte{0xB8}, Options: Options{Kind: OptOpcodePlusRegister}, Combos: []Combination{
			opcodeRegImm(RexNone, 2, 2),
			opcodeRegImm(RexNone, 4, 4),
			opcodeRegImm(RexW, 8, 8),
		}},
		{Opcode: []byte{0xC6}, Options: Options{Kind: OptDigit, Digit: 0}, Combos: []Combination{digitRMImm(RexNone, 1, 1)}},
		{Opcode: []byte{0xC7}, Options: Options{Kind: OptDigit, Digit: 0}, Combos: []Combination{
			digitRMImm(RexNone, 2, 2),
			digitRMImm(RexNone, 4, 4),
			digitRMImm(RexW, 8, 4),
		}},
	}

	Table[IMUL] = []Encoding{
		{Opcode: []byte{0x0F, 0xAF}, Combos: []Combination{regRM(RexNone, 2), regRM(RexNone, 4), regRM(RexW, 8)}},
	}

	Table[IDIV] = []Encoding{
		{Opcode: []byte{0xF6}, Options: Options{Kind: OptDigit, Digit: 7}, Combos: []Combination{digitRM(RexNone, 1)}},
		{Opcode: []byte{0xF7}, Options: Options{Kind: OptDigit, Digit: 7}, Combos: []Combination{digitRM(RexNone, 2), digitRM(RexNone, 4), digitRM(RexW, 8)}},
	}

	Table[INC] = []Encoding{
		{Opcode: []byte{0xFE}, Options: Options{Kind: OptDigit, Digit: 0}, Combos: []Combination{digitRM(RexNone, 1)}},
		{Opcode: []byte{0xFF}, Options: Options{Kind: OptDigit, Digit: 0}, Combos: []Combination{digitRM(RexNone, 2), digitRM(RexNone, 4), digitRM(RexW, 8)}},
	}

	Table[LEA] = []Encoding{
		{Opcode: []byte{0x8D}, Combos: []Combination{regMem(RexNone, 4), regMem(RexW, 8)}},
	}

	Table[PUSH] = []Encoding{
		{Opcode: []byte{0x50}, Options: Options{Kind: OptOpcodePlusRegister}, Combos: []Combination{opcodeReg(8)}},
		{Opcode: []byte{0x68}, Combos: []Combination{Combination{Rex: RexNone, Slots: withSlots(imm(4)), RegSlot: -1, RMSlot: -1, OpcodeRegSlot: -1}}},
		{Opcode: []byte{0xFF}, Options: Options{Kind: OptDigit, Digit: 6}, Combos: []Combination{digitRM(RexNone, 8)}},
	}

	Table[POP] = []Encoding{
		{Opcode: []byte{0x58}, Options: Options{Kind: OptOpcodePlusRegister}, Combos: []Combination{opcodeReg(8)}},
		{Opcode: []byte{0x8F}, Options: Options{Kind: OptDigit, Digit: 0}, Combos: []Combination{digitRM(RexNone, 8)}},
	}

	Table[CALL] = []Encoding{
		{Opcode: []byte{0xE8}, Combos: []Combination{relOnly(4)}},
		{Opcode: []byte{0xFF}, Options: Options{Kind: OptDigit, Digit: 2}, Combos: []Combination{digitRM(RexNone, 8)}},
	}

	Table[RET] = []Encoding{
		{Opcode: []byte{0xC3}, Combos: []Combination{noOperands(RexNone)}},
	}

	Table[JMP] = []Encoding{
		{Opcode: []byte{0xE9}, Combos: []Combination{relOnly(4)}},
		{Opcode: []byte{0xEB}, Combos: []Combination{relOnly(1)}}, // never selected: spec.md open question
		{Opcode: []byte{0xFF}, Options: Options{Kind: OptDigit, Digit: 4}, Combos: []Combination{digitRM(RexNone, 8)}},
	}

	for mnemonic, cc := range map[Mnemonic]byte{
		JE: 0x4, JNE: 0x5, JL: 0xC, JLE: 0xE, JG: 0xF, JGE: 0xD,
		JB: 0x2, JBE: 0x6, JA: 0x7, JAE: 0x3,
	} {
		Table[mnemonic] = []Encoding{
			{Opcode: []byte{0x0F, 0x80 + cc}, Combos: []Combination{relOnly(4)}},
			{Opcode: []byte{0x70 + cc}, Combos: []Combination{relOnly(1)}}, // never selected
		}
	}

	for mnemonic, cc := range map[Mnemonic]byte{
		SETE: 0x4, SETNE: 0x5, SETL: 0xC, SETLE: 0xE, SETG: 0xF, SETGE: 0xD,
	} {
		Table[mnemonic] = []Encoding{
			{Opcode: []byte{0x0F, 0x90 + cc}, Options: Options{Kind: OptDigit, Digit: 0}, Combos: []Combination{digitRM(RexNone, 1)}},
		}
	}

	Table[CWD] = []Encoding{{Opcode: []byte{0x99}, Options: Options{Kind: OptExplicitSize, ExplicitSize: 2}, Combos: []Combination{noOperands(RexNone)}}}
	Table[CDQ] = []Encoding{{Opcode: []byte{0x99}, Combos: []Combination{noOperands(RexNone)}}}
	Table[CQO] = []Encoding{{Opcode: []byte{0x99}, Combos: []Combination{noOperands(RexW)}}}
}

// matchesSlot implements spec.md §4.1's per-slot matching rules.
func matchesSlot(op operand.Operand, slot Slot) bool {
	switch slot.Kind {
	case SlotNone:
		return op.Kind == operand.None
	case SlotRegister:
		return op.Kind == operand.RegisterKind && op.Size == slot.Size
	case SlotRegisterA:
		return op.Kind == operand.RegisterKind && op.Reg == operand.A && op.Size == slot.Size
	case SlotRegisterOrMemory:
		if op.Size != slot.Size {
			return false
		}
		return op.Kind == operand.RegisterKind || op.Kind == operand.MemoryIndirectKind || op.Kind == operand.RIPRelativeKind
	case SlotRelative:
		return op.Kind == operand.RelativeToLabelKind && op.Size == slot.Size
	case SlotMemory:
		if op.Size != slot.Size {
			return false
		}
		return op.Kind == operand.MemoryIndirectKind || op.Kind == operand.RIPRelativeKind || op.Kind == operand.RelativeToLabelKind
	case SlotImmediate:
		return op.Kind == operand.ImmediateKind && op.Size == slot.Size
	default:
		return false
	}
}

// padOperands pads operands out to 4 slots with None, matching the table's
// fixed four-slot combinations.
func padOperands(ops []operand.Operand) [4]operand.Operand {
	var out [4]operand.Operand
	for i := range out {
		out[i] = operand.Nothing
	}
	copy(out[:], ops)
	return out
}

// selectEncoding finds the first (encoding, combination) whose slots all
// match, in table order (spec.md §4.1: "the first fully-matching
// combination wins").
func selectEncoding(mnemonic Mnemonic, ops []operand.Operand) (*Encoding, *Combination, bool) {
	encodings, ok := Table[mnemonic]
	if !ok {
		return nil, nil, false
	}
	padded := padOperands(ops)
	for ei := range encodings {
		enc := &encodings[ei]
		for ci := range enc.Combos {
			c := &enc.Combos[ci]
			allMatch := true
			for i := 0; i < 4; i++ {
				if !matchesSlot(padded[i], c.Slots[i]) {
					allMatch = false
					break
				}
			}
			if allMatch {
				return enc, c, true
			}
		}
	}
	return nil, nil, false
}
