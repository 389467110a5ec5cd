// Package abi parameterizes the two calling conventions the core supports,
// Microsoft x64 and System V AMD64, behind a single capability surface
// (spec.md §6, §9 "two ABIs behind a capability surface"). The function
// builder never branches on which convention is active; it only consults
// a *Policy value.
package abi

import "github.com/rns-lang/x64codegen/operand"

// Kind names which calling convention a Policy implements.
type Kind uint8

const (
	MicrosoftX64 Kind = iota
	SystemVAMD64
)

func (k Kind) String() string {
	if k == MicrosoftX64 {
		return "ms-x64"
	}
	return "sysv-amd64"
}

// ReturnAddressSize is the size in bytes of the return address a `call`
// pushes, used by the frame-size formula (spec.md §6).
const ReturnAddressSize = 8

// FrameAlignment is the stack alignment required at the point of a
// `call` instruction (spec.md §6).
const FrameAlignment = 16

// Policy describes everything the function builder and its prologue/
// epilogue emitter need to know about one calling convention (spec.md §9).
type Policy struct {
	Kind Kind

	// ArgRegisters lists the integer argument registers in order; the
	// first len(ArgRegisters) positional arguments are placed here,
	// later ones on the stack.
	ArgRegisters []operand.Register

	// ReturnRegisters lists the registers a return value occupies, in
	// order, for return values up to 16 bytes (one register per 8
	// bytes). A return size over 8 bytes with only one entry here
	// means the convention instead uses a hidden pointer argument
	// (HiddenReturnRegister).
	ReturnRegisters []operand.Register

	// HiddenReturnRegister receives the address of caller-allocated
	// storage when a callee's return descriptor is larger than 8 bytes.
	HiddenReturnRegister operand.Register

	// Preserved lists callee-saved registers.
	Preserved []operand.Register

	// ShadowSpace is the number of bytes of caller-reserved scratch
	// space above the outgoing-argument area (Microsoft x64 only).
	ShadowSpace int

	// UsesFramePointer selects the push-rbp/mov-rbp,rsp prologue shape
	// (System V) versus a bare sub-rsp (Microsoft x64). The builder's
	// prologue/epilogue emitter switches on this single flag, not on Kind.
	UsesFramePointer bool
}

// Microsoft returns the Microsoft x64 calling convention policy.
func Microsoft() *Policy {
	return &Policy{
		Kind:                  MicrosoftX64,
		ArgRegisters:          []operand.Register{operand.C, operand.D, operand.R8, operand.R9},
		ReturnRegisters:       []operand.Register{operand.A},
		HiddenReturnRegister:  operand.C,
		Preserved:             []operand.Register{operand.B, operand.DI, operand.SI, operand.SP, operand.BP, operand.R12, operand.R13, operand.R14, operand.R15},
		ShadowSpace:           32,
		UsesFramePointer:      false,
	}
}

// SystemV returns the System V AMD64 calling convention policy.
func SystemV() *Policy {
	return &Policy{
		Kind:                 SystemVAMD64,
		ArgRegisters:         []operand.Register{operand.DI, operand.SI, operand.D, operand.C, operand.R8, operand.R9},
		ReturnRegisters:      []operand.Register{operand.A, operand.D},
		HiddenReturnRegister: operand.DI,
		Preserved:            []operand.Register{operand.B, operand.SP, operand.BP, operand.R12, operand.R13, operand.R14, operand.R15},
		ShadowSpace:          0,
		UsesFramePointer:     true,
	}
}

// For resolves the named convention. Unknown kinds fall back to System V,
// the default a host toolchain targeting Linux/macOS expects.
func For(k Kind) *Policy {
	if k == MicrosoftX64 {
		return Microsoft()
	}
	return SystemV()
}

// AlignUp rounds v up to the nearest multiple of align.
func AlignUp(v, align int) int {
	if align <= 0 {
		return v
	}
	return (v + align - 1) / align * align
}

// FrameSize implements spec.md §6's formula: the total amount the
// prologue subtracts from the stack pointer, given the builder's
// recorded local-slot usage and the largest outgoing-argument area any
// call site inside the function needs.
func FrameSize(stackOffset, maxCallParameterStackSize int) int {
	return AlignUp(stackOffset+maxCallParameterStackSize, FrameAlignment) + ReturnAddressSize
}
