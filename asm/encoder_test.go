package asm

import (
	"bytes"
	"testing"

	"github.com/rns-lang/x64codegen/execbuf"
	"github.com/rns-lang/x64codegen/operand"
)

func newTestBuffer(t *testing.T) *execbuf.Buffer {
	t.Helper()
	buf, err := execbuf.New(4096)
	if err != nil {
		t.Fatalf("execbuf.New: %v", err)
	}
	return buf
}

func encodeOne(t *testing.T, mnemonic Mnemonic, ops ...operand.Operand) []byte {
	t.Helper()
	buf := newTestBuffer(t)
	enc := NewEncoder()
	if _, err := enc.EncodeInstruction(buf, mnemonic, ops); err != nil {
		t.Fatalf("EncodeInstruction(%s): %v", mnemonic, err)
	}
	return append([]byte(nil), buf.Bytes()...)
}

// Reference hex strings drawn from the Intel SDM, as named in spec.md §8.
func TestReferenceEncodings(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic Mnemonic
		ops      []operand.Operand
		want     []byte
	}{
		{
			name:     "mov eax, imm32",
			mnemonic: MOV,
			ops:      []operand.Operand{operand.Reg(operand.A, 4), operand.Imm64(0xFFFFFFFF, 4)},
			want:     []byte{0xB8, 0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			name:     "push rbp",
			mnemonic: PUSH,
			ops:      []operand.Operand{operand.Reg(operand.BP, 8)},
			want:     []byte{0x55},
		},
		{
			name:     "pop rbp",
			mnemonic: POP,
			ops:      []operand.Operand{operand.Reg(operand.BP, 8)},
			want:     []byte{0x5D},
		},
		{
			name:     "ret",
			mnemonic: RET,
			ops:      nil,
			want:     []byte{0xC3},
		},
		{
			name:     "cqo",
			mnemonic: CQO,
			ops:      nil,
			want:     []byte{0x48, 0x99},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := encodeOne(t, tc.mnemonic, tc.ops...)
			if !bytes.Equal(got, tc.want) {
				t.Errorf("got % X, want % X", got, tc.want)
			}
		})
	}
}

func TestAddRaxImm32(t *testing.T) {
	buf := newTestBuffer(t)
	enc := NewEncoder()
	if _, err := enc.EncodeInstruction(buf, ADD, []operand.Operand{
		operand.Reg(operand.A, 8), operand.Imm64(1234, 4),
	}); err != nil {
		t.Fatalf("EncodeInstruction: %v", err)
	}
	got := buf.Bytes()
	if len(got) != 6 {
		t.Fatalf("got %d bytes, want 6: % X", len(got), got)
	}
	if got[0] != 0x48 || got[1] != 0x05 {
		t.Fatalf("got prefix+opcode % X, want 48 05", got[:2])
	}
}

func TestExtendedRegisterSetsRexB(t *testing.T) {
	got := encodeOne(t, PUSH, operand.Reg(operand.R12, 8))
	// push r12: REX.B + opcode 0x50+r
	want := []byte{0x41, 0x54}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestRegMemModRM(t *testing.T) {
	// mov rax, [rbx]
	got := encodeOne(t, MOV, operand.Reg(operand.A, 8), operand.Mem(operand.B, 0, 8))
	want := []byte{0x48, 0x8B, 0x83, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestStackFrameRelativeRecordsPatchSite(t *testing.T) {
	buf := newTestBuffer(t)
	enc := NewEncoder()
	sites, err := enc.EncodeInstruction(buf, MOV, []operand.Operand{
		operand.FrameSlot(operand.SP, -8, 8), operand.Reg(operand.A, 8),
	})
	if err != nil {
		t.Fatalf("EncodeInstruction: %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("got %d stack patch sites, want 1", len(sites))
	}
	if sites[0].OriginalDisp != -8 {
		t.Errorf("got original disp %d, want -8", sites[0].OriginalDisp)
	}
}

func TestNonFrameMemoryHasNoPatchSite(t *testing.T) {
	buf := newTestBuffer(t)
	enc := NewEncoder()
	sites, err := enc.EncodeInstruction(buf, MOV, []operand.Operand{
		operand.Mem(operand.B, 16, 8), operand.Reg(operand.A, 8),
	})
	if err != nil {
		t.Fatalf("EncodeInstruction: %v", err)
	}
	if len(sites) != 0 {
		t.Fatalf("got %d stack patch sites, want 0", len(sites))
	}
}

func TestLabelForwardReferenceThenBind(t *testing.T) {
	buf := newTestBuffer(t)
	enc := NewEncoder()
	label := operand.NewLabel(4)

	if _, err := enc.EncodeInstruction(buf, JMP, []operand.Operand{operand.RelativeToLabel(label)}); err != nil {
		t.Fatalf("EncodeInstruction: %v", err)
	}
	placeholderEnd := buf.Offset()

	// pad with one ret byte so the label binds past the end of the jmp
	if _, err := enc.EncodeInstruction(buf, RET, nil); err != nil {
		t.Fatalf("EncodeInstruction: %v", err)
	}

	if err := enc.BindLabel(buf, label); err != nil {
		t.Fatalf("BindLabel: %v", err)
	}

	bytesOut := buf.Bytes()
	// jmp rel32 opcode is 0xE9, 5 bytes total; displacement is the last 4.
	jmpStart := placeholderEnd - 5
	if bytesOut[jmpStart] != 0xE9 {
		t.Fatalf("got opcode %X at %d, want E9", bytesOut[jmpStart], jmpStart)
	}
	disp := int32(uint32(bytesOut[jmpStart+1]) | uint32(bytesOut[jmpStart+2])<<8 | uint32(bytesOut[jmpStart+3])<<16 | uint32(bytesOut[jmpStart+4])<<24)
	wantDisp := int32(label.Target()) - int32(placeholderEnd)
	if disp != wantDisp {
		t.Errorf("got displacement %d, want %d", disp, wantDisp)
	}
}
