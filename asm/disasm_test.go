package asm

import (
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/rns-lang/x64codegen/operand"
)

// TestEncodeDecodeRoundTrip is spec.md §8 property 1: encoding an
// instruction then decoding the bytes back recovers the prefix, ModR/M,
// SIB, and displacement bytes the encoder should have produced. On
// mismatch it dumps the full Decoded struct with go-spew, the same
// readable-diff role the teacher's test tree gets from testify's spew
// dependency.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		mnemonic   Mnemonic
		ops        []operand.Operand
		immSize    int
		wantRexW   bool
		want66     bool
		wantModRM  bool
		wantMod    byte
		wantReg    byte
		wantRM     byte
		wantSIB    bool
		wantDisp   bool
		wantDispV  int32
	}{
		{name: "mov eax, imm32", mnemonic: MOV, ops: []operand.Operand{operand.Reg(operand.A, 4), operand.Imm64(1, 4)}, immSize: 4},
		{
			// mov rax, imm32: the B8+r short form needs an imm64 for a
			// 64-bit register, so the sign-extending C7 /0 form is picked,
			// which carries a ModR/M byte (mod=11, reg=digit 0, r/m=rax).
			name: "mov rax, imm64-sized dst", mnemonic: MOV,
			ops:      []operand.Operand{operand.Reg(operand.A, 8), operand.Imm64(1, 4)},
			immSize:  4,
			wantRexW: true,
			wantModRM: true, wantMod: 0b11, wantReg: 0, wantRM: operand.A.Low3(),
		},
		{name: "add ax, imm16", mnemonic: ADD, ops: []operand.Operand{operand.Reg(operand.A, 2), operand.Imm64(1, 2)}, immSize: 2, want66: true},
		{
			// mov rbx, rax: both operands are plain registers, so the
			// table's first-match rule picks 0x89 (rmReg: rm=dst, reg=src)
			// over 0x8B — the same "store" opcode real assemblers emit for
			// a register-to-register move.
			name: "mov rbx, rax (reg-reg)", mnemonic: MOV,
			ops:       []operand.Operand{operand.Reg(operand.B, 8), operand.Reg(operand.A, 8)},
			wantRexW:  true,
			wantModRM: true, wantMod: 0b11, wantReg: operand.A.Low3(), wantRM: operand.B.Low3(),
		},
		{
			// mov [rbx+8], rax: 0x89 rmReg form, r/m=dst (memory), reg=src.
			name: "mov [rbx+8], rax (reg-mem)", mnemonic: MOV,
			ops:       []operand.Operand{operand.Mem(operand.B, 8, 8), operand.Reg(operand.A, 8)},
			wantRexW:  true,
			wantModRM: true, wantMod: 0b10, wantReg: operand.A.Low3(), wantRM: operand.B.Low3(),
			wantDisp: true, wantDispV: 8,
		},
		{
			// mov [rsp+16], rax: base=SP forces an SIB byte (spec.md §4.2 step 5).
			name: "mov [rsp+16], rax (sib)", mnemonic: MOV,
			ops:       []operand.Operand{operand.Mem(operand.SP, 16, 8), operand.Reg(operand.A, 8)},
			wantRexW:  true,
			wantModRM: true, wantMod: 0b10, wantReg: operand.A.Low3(), wantRM: operand.SP.Low3(),
			wantSIB: true, wantDisp: true, wantDispV: 16,
		},
		{
			// add rbx, rax: arithmeticFamily's rmReg form (r/m=dst, reg=src).
			name: "add rbx, rax (arithmetic reg-reg)", mnemonic: ADD,
			ops:       []operand.Operand{operand.Reg(operand.B, 8), operand.Reg(operand.A, 8)},
			wantRexW:  true,
			wantModRM: true, wantMod: 0b11, wantReg: operand.A.Low3(), wantRM: operand.B.Low3(),
		},
		{
			// lea rax, [rbx+4]: regMem form, reg=dst, r/m=mem.
			name: "lea rax, [rbx+4]", mnemonic: LEA,
			ops:       []operand.Operand{operand.Reg(operand.A, 8), operand.Mem(operand.B, 4, 8)},
			wantRexW:  true,
			wantModRM: true, wantMod: 0b10, wantReg: operand.A.Low3(), wantRM: operand.B.Low3(),
			wantDisp: true, wantDispV: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := newTestBuffer(t)
			enc := NewEncoder()
			if _, err := enc.EncodeInstruction(buf, tt.mnemonic, tt.ops); err != nil {
				t.Fatalf("EncodeInstruction(%s): %v", tt.mnemonic, err)
			}

			decoded, err := Disassemble(buf.Bytes(), tt.immSize)
			if err != nil {
				t.Fatalf("Disassemble: %v", err)
			}
			if decoded.RexW != tt.wantRexW || decoded.Has66 != tt.want66 {
				t.Errorf("%s: decoded prefix mismatch, got:\n%s", tt.name, spew.Sdump(decoded))
			}
			if decoded.HasModRM != tt.wantModRM {
				t.Fatalf("%s: HasModRM=%v, want %v:\n%s", tt.name, decoded.HasModRM, tt.wantModRM, spew.Sdump(decoded))
			}
			if tt.wantModRM {
				if decoded.Mod != tt.wantMod || decoded.RegField != tt.wantReg || decoded.RMField != tt.wantRM {
					t.Errorf("%s: ModR/M mismatch (mod=%b reg=%b rm=%b), want (mod=%b reg=%b rm=%b):\n%s",
						tt.name, decoded.Mod, decoded.RegField, decoded.RMField, tt.wantMod, tt.wantReg, tt.wantRM, spew.Sdump(decoded))
				}
			}
			if decoded.HasSIB != tt.wantSIB {
				t.Errorf("%s: HasSIB=%v, want %v:\n%s", tt.name, decoded.HasSIB, tt.wantSIB, spew.Sdump(decoded))
			}
			if decoded.HasDisp != tt.wantDisp || (tt.wantDisp && decoded.Disp != tt.wantDispV) {
				t.Errorf("%s: displacement mismatch got (%v,%d), want (%v,%d):\n%s",
					tt.name, decoded.HasDisp, decoded.Disp, tt.wantDisp, tt.wantDispV, spew.Sdump(decoded))
			}
			if tt.immSize > 0 && (!decoded.HasImmediate || decoded.Immediate != 1) {
				t.Errorf("%s: expected immediate 1, got %+v:\n%s", tt.name, decoded.HasImmediate, spew.Sdump(decoded))
			}
			if decoded.Length <= 0 || decoded.Length > len(buf.Bytes()) {
				t.Errorf("%s: decoded length %d out of range for %d emitted bytes:\n%s", tt.name, decoded.Length, len(buf.Bytes()), spew.Sdump(decoded))
			}
		})
	}
}
