// Package builder implements the per-function state machine the front
// end drives to emit one function: prologue/epilogue, stack slots,
// arithmetic, comparisons, control flow, struct field access, calls, and
// tagged-union dispatch (spec.md §4.5-§4.7). It sits above the encoding
// tables and encoder and below nothing; a front end never touches asm
// or execbuf directly.
package builder

import (
	"fmt"
	"strings"

	"github.com/rns-lang/x64codegen/abi"
	"github.com/rns-lang/x64codegen/arena"
	"github.com/rns-lang/x64codegen/asm"
	"github.com/rns-lang/x64codegen/descriptor"
	"github.com/rns-lang/x64codegen/execbuf"
	"github.com/rns-lang/x64codegen/operand"
	"github.com/rns-lang/x64codegen/trace"
)

// instrKind tags one entry of the deferred instruction list.
type instrKind uint8

const (
	instrEncode instrKind = iota
	instrBindLabel
)

// deferredInstr is one item of the append-only list a Builder accumulates
// until fn_end (spec.md §4.5 "the instruction list is append-only until
// fn_end freezes it"). A label-binding marker (spec.md §4.2) is recorded
// instead of a mnemonic for if/loop/epilogue label sites.
type deferredInstr struct {
	kind     instrKind
	mnemonic asm.Mnemonic
	ops      []operand.Operand
	label    *operand.Label
}

// Builder accumulates one function's deferred instructions and frame
// state. It is not safe for concurrent use (spec.md §5): one builder is
// driven by one goroutine.
type Builder struct {
	Name   string
	Policy *abi.Policy

	buf     *execbuf.Buffer
	arena   *arena.Arena
	encoder *asm.Encoder

	entryLabel    *operand.Label
	epilogueLabel *operand.Label

	stackOffset               int
	maxCallParameterStackSize int
	stackPatchSites           []asm.StackPatchSite

	instrs []deferredInstr

	argDescriptors []*descriptor.Descriptor
	nextArg        int

	returnDescriptor *descriptor.Descriptor
	returnSet        bool

	// hiddenReturnSlot holds the hidden return pointer argument, copied
	// out of its register at fn_begin time so it survives the rest of
	// the function body (the register itself is not preserved across
	// calls or reused as a scratch register elsewhere in the body).
	hiddenReturnSlot    descriptor.Value
	hasHiddenReturnSlot bool

	labelDepth int // if/loop nesting counter, for misuse detection

	frozen      bool
	entryOffset uint32

	tr *trace.Trace // optional, set via SetTrace
}

// SetTrace attaches a build-event trace. Every instruction, label bind,
// and stack-slot reservation from this point on is recorded against it.
// Passing nil detaches tracing.
func (b *Builder) SetTrace(t *trace.Trace) {
	b.tr = t
}

// FnBegin allocates a new function builder. It reserves an unbound entry
// label (bound to the buffer offset the first real instruction lands at,
// once the prologue is emitted at fn_end) and returns a Builder ready to
// accept fn_arg/stack_reserve/... calls (spec.md §4.5 fn_begin).
//
// returnType is the signature skeleton's declared return descriptor, if
// known upfront (nil when the caller wants it inferred from the first
// fn_return, per spec.md §4.5). A front end that already knows its
// function's full signature — the normal case — should always pass it:
// a large (>8-byte) return type needs its hidden pointer argument
// captured to a stack slot before any other code runs, since the
// register it arrives in is not otherwise preserved across the
// function body.
func FnBegin(name string, policy *abi.Policy, buf *execbuf.Buffer, ar *arena.Arena, returnType *descriptor.Descriptor) *Builder {
	b := &Builder{
		Name:          name,
		Policy:        policy,
		buf:           buf,
		arena:         ar,
		encoder:       asm.NewEncoder(),
		entryLabel:    ar.NewLabel(4),
		epilogueLabel: ar.NewLabel(4),
	}
	if returnType != nil {
		b.returnDescriptor = returnType
		b.returnSet = true
		if returnType.Size() > 8 {
			slot, _ := b.StackReserve(descriptor.PrimitivePointerSize)
			b.emit(asm.MOV, slot.Op, operand.Reg(policy.HiddenReturnRegister, 8))
			b.hiddenReturnSlot = slot
			b.hasHiddenReturnSlot = true
		}
	}
	return b
}

// frameBase returns the register local-slot and incoming-argument
// operands are addressed relative to: the stack pointer directly under
// Microsoft x64 (no frame pointer push), the frame pointer under System V
// once the prologue has set rbp = entry rsp (spec.md §6, §9).
func (b *Builder) frameBase() operand.Register {
	if b.Policy.UsesFramePointer {
		return operand.BP
	}
	return operand.SP
}

func (b *Builder) checkNotFrozen(op string) error {
	if b.frozen {
		return NewBuildError(b.Name, op+" called on a frozen builder")
	}
	return nil
}

// emit defers one instruction for encoding at fn_end.
func (b *Builder) emit(mnemonic asm.Mnemonic, ops ...operand.Operand) {
	b.instrs = append(b.instrs, deferredInstr{kind: instrEncode, mnemonic: mnemonic, ops: ops})
}

// bindLabelAt defers a label-binding marker (spec.md §4.2).
func (b *Builder) bindLabelAt(l *operand.Label) {
	b.instrs = append(b.instrs, deferredInstr{kind: instrBindLabel, label: l})
}

// FnArg implements spec.md §4.5 fn_arg: the first len(ArgRegisters)
// positional arguments arrive in registers and are immediately copied to
// a fresh stack slot (the core keeps no register allocator beyond
// scratch register A, spec.md §1 Non-goals); later arguments are already
// on the caller's stack and are addressed there directly.
func (b *Builder) FnArg(t *descriptor.Descriptor) (descriptor.Value, error) {
	if err := b.checkNotFrozen("fn_arg"); err != nil {
		return descriptor.Value{}, err
	}
	index := b.nextArg
	b.nextArg++
	b.argDescriptors = append(b.argDescriptors, t)

	regStart := 0
	if b.hasHiddenReturnSlot {
		regStart = 1 // slot 0 already consumed by the hidden return pointer
	}
	regIndex := index + regStart

	size := t.Size()
	if regIndex < len(b.Policy.ArgRegisters) {
		slot, err := b.StackReserve(t)
		if err != nil {
			return descriptor.Value{}, err
		}
		b.emit(asm.MOV, slot.Op, operand.Reg(b.Policy.ArgRegisters[regIndex], size))
		return slot, nil
	}

	overflowIndex := regIndex - len(b.Policy.ArgRegisters)
	disp := int32(8 * (overflowIndex + 1))
	return descriptor.Value{Type: t, Op: operand.FrameSlot(b.frameBase(), disp, size)}, nil
}

// StackReserve implements spec.md §4.5 stack_reserve: advances
// stack_offset by size(descriptor) and returns a fresh local slot.
func (b *Builder) StackReserve(t *descriptor.Descriptor) (descriptor.Value, error) {
	if err := b.checkNotFrozen("stack_reserve"); err != nil {
		return descriptor.Value{}, err
	}
	size := t.Size()
	if size <= 0 {
		size = 8
	}
	b.stackOffset += size
	op := operand.FrameSlot(b.frameBase(), -int32(b.stackOffset), size)
	if b.tr != nil {
		b.tr.Record(b.Name, trace.StackSlotReserved, "", uint32(b.stackOffset), fmt.Sprintf("%d bytes", size), 0)
	}
	return descriptor.Value{Type: t, Op: op}, nil
}

// noteCallParameterStackSize updates the monotone upper bound spec.md
// §4.5 call describes: max(existing, max(4, argc) × 8).
func (b *Builder) noteCallParameterStackSize(argc int) {
	n := argc
	if n < 4 {
		n = 4
	}
	needed := n * 8
	if needed > b.maxCallParameterStackSize {
		b.maxCallParameterStackSize = needed
	}
}

// prologueInstructions returns the fixed prologue bytes for the active
// convention (spec.md §6 table).
func (b *Builder) prologueInstructions(frameSize int) []deferredInstr {
	if b.Policy.UsesFramePointer {
		return []deferredInstr{
			{kind: instrEncode, mnemonic: asm.PUSH, ops: []operand.Operand{operand.Reg(operand.BP, 8)}},
			{kind: instrEncode, mnemonic: asm.MOV, ops: []operand.Operand{operand.Reg(operand.BP, 8), operand.Reg(operand.SP, 8)}},
		}
	}
	return []deferredInstr{
		{kind: instrEncode, mnemonic: asm.SUB, ops: []operand.Operand{operand.Reg(operand.SP, 8), operand.Imm64(int64(frameSize), 4)}},
	}
}

// epilogueInstructions returns the fixed epilogue bytes.
func (b *Builder) epilogueInstructions(frameSize int) []deferredInstr {
	if b.Policy.UsesFramePointer {
		return []deferredInstr{
			{kind: instrEncode, mnemonic: asm.POP, ops: []operand.Operand{operand.Reg(operand.BP, 8)}},
			{kind: instrEncode, mnemonic: asm.RET},
		}
	}
	return []deferredInstr{
		{kind: instrEncode, mnemonic: asm.ADD, ops: []operand.Operand{operand.Reg(operand.SP, 8), operand.Imm64(int64(frameSize), 4)}},
		{kind: instrEncode, mnemonic: asm.RET},
	}
}

// FixUpStackDisplacement implements spec.md §4.3's one-pass rewrite
// formula. Any non-negative original displacement is treated the same
// whether it came from an outgoing call-argument slot or an incoming
// stack argument, since both address the same above-frame stack region
// the same way once the prologue has run.
func FixUpStackDisplacement(frameSize int, originalDisp int32) int32 {
	if originalDisp < 0 {
		return int32(frameSize) + originalDisp
	}
	return int32(frameSize) + originalDisp + abi.ReturnAddressSize
}

// FnEnd implements spec.md §4.5 fn_end: emits the prologue, encodes each
// deferred instruction (accumulating stack-displacement patch sites),
// binds the epilogue label, emits the epilogue, rewrites every recorded
// stack displacement now that the frame size is known, and freezes the
// builder. It returns the function's entry pointer offset into buf.
func (b *Builder) FnEnd() (uint32, error) {
	if err := b.checkNotFrozen("fn_end"); err != nil {
		return 0, err
	}
	if b.labelDepth != 0 {
		return 0, NewBuildError(b.Name, "unbalanced if/loop scope at fn_end")
	}

	frameSize := abi.FrameSize(b.stackOffset, b.maxCallParameterStackSize)

	b.entryOffset = b.buf.Offset()
	if err := b.encoder.BindLabel(b.buf, b.entryLabel); err != nil {
		return 0, WrapBuildError(b.Name, err)
	}

	all := append(b.prologueInstructions(frameSize), b.instrs...)
	all = append(all, deferredInstr{kind: instrBindLabel, label: b.epilogueLabel})
	all = append(all, b.epilogueInstructions(frameSize)...)

	for _, ins := range all {
		if ins.kind == instrBindLabel {
			offset := b.buf.Offset()
			if err := b.encoder.BindLabel(b.buf, ins.label); err != nil {
				return 0, WrapBuildError(b.Name, err)
			}
			if b.tr != nil {
				b.tr.Record(b.Name, trace.LabelBound, "", offset, "", 0)
			}
			continue
		}
		before := b.buf.Offset()
		sites, err := b.encoder.EncodeInstruction(b.buf, ins.mnemonic, ins.ops)
		if err != nil {
			return 0, asm.WrapEncodingError(ins.mnemonic, ins.ops, err)
		}
		b.stackPatchSites = append(b.stackPatchSites, sites...)
		if b.tr != nil {
			after := b.buf.Offset()
			b.tr.Record(b.Name, trace.InstructionEmitted, string(ins.mnemonic), before, operandsDetail(ins.ops), int(after-before))
		}
	}

	for _, site := range b.stackPatchSites {
		final := FixUpStackDisplacement(frameSize, site.OriginalDisp)
		if err := b.buf.PatchAt(site.Location, int64(final), site.Size); err != nil {
			return 0, WrapBuildError(b.Name, err)
		}
	}

	b.frozen = true
	return b.entryOffset, nil
}

// Frozen reports whether FnEnd has run.
func (b *Builder) Frozen() bool { return b.frozen }

// EntryLabel exposes the function's entry label so callers elsewhere in
// the same compilation can build a relative-to-label call value before
// this function itself has been finalized (mutual recursion).
func (b *Builder) EntryLabel() *operand.Label { return b.entryLabel }

// Signature returns the descriptor for this function, valid only once
// every fn_arg/fn_return call site has run (normally checked at fn_end
// time by the caller, not enforced here since a front end may want it
// mid-build for a recursive self-call).
func (b *Builder) Signature() *descriptor.Descriptor {
	ret := b.returnDescriptor
	if ret == nil {
		ret = descriptor.PrimitiveVoid
	}
	return descriptor.NewFunction(b.argDescriptors, ret)
}

// operandsDetail renders a deferred instruction's operands for a trace
// line; it is a diagnostic aid, not an assembler syntax.
func operandsDetail(ops []operand.Operand) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case operand.RegisterKind:
			parts[i] = fmt.Sprintf("reg%d:%d", op.Reg, op.Size)
		case operand.ImmediateKind:
			parts[i] = fmt.Sprintf("imm:0x%x", op.Imm)
		case operand.MemoryIndirectKind:
			parts[i] = fmt.Sprintf("[reg%d%+d]", op.Base, op.Displacement)
		case operand.RIPRelativeKind:
			parts[i] = "[rip]"
		default:
			parts[i] = "label"
		}
	}
	return strings.Join(parts, ", ")
}
