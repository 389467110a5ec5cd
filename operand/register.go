// Package operand models the x86-64 addressing forms the encoder consumes:
// registers, immediates, memory-indirect and RIP-relative addresses, and
// relative-to-label references.
package operand

import "fmt"

// Register names one of the 16 general-purpose integer registers. The
// numbering matches the ModR/M and opcode-plus-register encodings directly:
// low three bits go in the instruction, bit 3 is carried in a REX extension
// bit when present.
type Register uint8

const (
	A Register = iota
	C
	D
	B
	SP
	BP
	SI
	DI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var registerNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Register) String() string {
	if int(r) >= len(registerNames) {
		return fmt.Sprintf("reg%d", r)
	}
	return registerNames[r]
}

// Low3 returns the register's low three bits, the value written into
// ModR/M.reg, ModR/M.r_m, or merged into an opcode-plus-register byte.
func (r Register) Low3() byte { return byte(r) & 0x7 }

// Extended reports whether encoding this register requires a REX extension
// bit (bit 3 of the register index).
func (r Register) Extended() bool { return byte(r)&0x8 != 0 }

// HighByteAlias reports whether, at size 1 with no REX prefix present, this
// register index instead names one of the legacy high-byte registers
// (AH/CH/DH/BH, indices 4..7). Callers must never mix a REX prefix with an
// operand using this aliasing — spec.md's REX/high-byte exclusion property.
func (r Register) HighByteAlias() bool { return r >= SP && r <= DI }

var highByteNames = map[Register]string{SP: "ah", BP: "ch", SI: "dh", DI: "bh"}

// HighByteName returns the AH/CH/DH/BH name for registers 4..7, used only
// when a size-1 operand is encoded without a REX prefix.
func (r Register) HighByteName() string { return highByteNames[r] }
