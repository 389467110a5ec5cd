package asm

import (
	"fmt"
	"sync"
)

// Decoded is a minimal, test-only decoder supplementing the original
// implementation's debug instruction dump. It understands exactly the
// byte shapes this package's encoder can produce — no general x86-64
// decoding is attempted — and exists to support round-trip property
// tests (spec.md §8 property 1: encode then decode recovers the
// mnemonic and operand shape).
type Decoded struct {
	HasRex bool
	RexW   bool
	RexR   bool
	RexX   bool
	RexB   bool
	Has66  bool
	Opcode []byte

	HasModRM bool
	ModRM    byte
	Mod      byte
	RegField byte
	RMField  byte

	HasSIB bool
	SIB    byte

	HasDisp bool
	Disp    int32

	HasImmediate bool
	Immediate    int64

	Length int
}

// modrmOpcodes is the set of opcode byte sequences (keyed by their raw
// bytes) that Table encodes with at least one ModR/M-bearing combination
// (spec.md §4.2 step 5: any operand matched register-or-memory or memory).
// Computed lazily since package-level var initializers run before tables.go's
// init() populates Table.
var (
	modrmOpcodesOnce sync.Once
	modrmOpcodes     map[string]bool
)

func opcodeNeedsModRM(opcode []byte) bool {
	modrmOpcodesOnce.Do(func() {
		modrmOpcodes = make(map[string]bool)
		for _, encodings := range Table {
			for _, enc := range encodings {
				for _, c := range enc.Combos {
					if c.RMSlot >= 0 {
						modrmOpcodes[string(enc.Opcode)] = true
						break
					}
				}
			}
		}
	})
	return modrmOpcodes[string(opcode)]
}

// Disassemble decodes the single instruction starting at code[0]: prefix
// bits, the opcode, and — when the opcode is one Table encodes with a
// ModR/M byte — the ModR/M byte, any SIB byte, and any displacement.
// immSize is the width in bytes of a trailing immediate the caller expects
// (0 if the instruction has none); Disassemble does not infer it, since the
// raw bytes alone cannot distinguish an immediate from the next instruction.
func Disassemble(code []byte, immSize int) (*Decoded, error) {
	d := &Decoded{}
	i := 0

	if i < len(code) && code[i] == 0x66 {
		d.Has66 = true
		i++
	}
	if i < len(code) && code[i]&0xF0 == 0x40 {
		d.HasRex = true
		rex := code[i]
		d.RexW = rex&0x08 != 0
		d.RexR = rex&0x04 != 0
		d.RexX = rex&0x02 != 0
		d.RexB = rex&0x01 != 0
		i++
	}
	if i >= len(code) {
		return nil, fmt.Errorf("asm: disassemble: truncated instruction")
	}

	start := i
	if code[i] == 0x0F {
		if i+1 >= len(code) {
			return nil, fmt.Errorf("asm: disassemble: truncated two-byte opcode")
		}
		i += 2
	} else {
		i++
	}
	d.Opcode = append([]byte(nil), code[start:i]...)

	if opcodeNeedsModRM(d.Opcode) {
		if i >= len(code) {
			return nil, fmt.Errorf("asm: disassemble: truncated ModR/M byte")
		}
		modrm := code[i]
		d.HasModRM = true
		d.ModRM = modrm
		d.Mod = modrm >> 6
		d.RegField = (modrm >> 3) & 0b111
		d.RMField = modrm & 0b111
		i++

		if d.Mod != 0b11 && d.RMField == 0b100 {
			if i >= len(code) {
				return nil, fmt.Errorf("asm: disassemble: truncated SIB byte")
			}
			d.HasSIB = true
			d.SIB = code[i]
			i++
		}

		switch {
		case d.Mod == 0b00 && d.RMField == 0b101:
			// RIP-relative: always a disp32 (spec.md §4.2 step 5).
			if i+4 > len(code) {
				return nil, fmt.Errorf("asm: disassemble: truncated rip-relative disp32")
			}
			d.HasDisp = true
			d.Disp = int32(leToInt(code[i : i+4]))
			i += 4
		case d.Mod == 0b01:
			if i+1 > len(code) {
				return nil, fmt.Errorf("asm: disassemble: truncated disp8")
			}
			d.HasDisp = true
			d.Disp = int32(int8(code[i]))
			i++
		case d.Mod == 0b10:
			if i+4 > len(code) {
				return nil, fmt.Errorf("asm: disassemble: truncated disp32")
			}
			d.HasDisp = true
			d.Disp = int32(leToInt(code[i : i+4]))
			i += 4
		}
	}

	if immSize > 0 {
		if i+immSize > len(code) {
			return nil, fmt.Errorf("asm: disassemble: truncated immediate")
		}
		d.HasImmediate = true
		d.Immediate = leToInt(code[i : i+immSize])
		i += immSize
	}

	d.Length = i
	return d, nil
}
