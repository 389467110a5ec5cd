package asm

import (
	"fmt"

	"github.com/rns-lang/x64codegen/operand"
)

// EncodingError reports a spec.md §4.8/§7 encoding-class failure: no
// matching combination, a displacement out of range, an illegal REX/
// high-byte combination, and so on. It carries the offending instruction
// so a caller can report it with source context the way the teacher's
// EncodingError carries the failing parsed instruction.
type EncodingError struct {
	Mnemonic Mnemonic
	Operands []operand.Operand
	Message  string
	Wrapped  error
}

func (e *EncodingError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("asm: %s %v: %s: %v", e.Mnemonic, e.Operands, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("asm: %s %v: %s", e.Mnemonic, e.Operands, e.Message)
}

func (e *EncodingError) Unwrap() error { return e.Wrapped }

// NewEncodingError builds an EncodingError with no wrapped cause.
func NewEncodingError(mnemonic Mnemonic, ops []operand.Operand, message string) *EncodingError {
	return &EncodingError{Mnemonic: mnemonic, Operands: ops, Message: message}
}

// WrapEncodingError wraps err with instruction context, leaving an
// existing EncodingError untouched (mirrors the teacher's
// WrapEncodingError double-wrap guard).
func WrapEncodingError(mnemonic Mnemonic, ops []operand.Operand, err error) error {
	if err == nil {
		return nil
	}
	if ee, ok := err.(*EncodingError); ok {
		return ee
	}
	return &EncodingError{Mnemonic: mnemonic, Operands: ops, Message: "failed to encode instruction", Wrapped: err}
}
