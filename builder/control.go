package builder

import (
	"github.com/rns-lang/x64codegen/asm"
	"github.com/rns-lang/x64codegen/descriptor"
	"github.com/rns-lang/x64codegen/operand"
)

// IfBegin implements spec.md §4.5 if_begin: emits `cmp cond, 0` then
// `jz L` and returns L; the taken branch is the code emitted between
// IfBegin and IfEnd.
func (b *Builder) IfBegin(condition descriptor.Value) (*operand.Label, error) {
	if err := b.checkNotFrozen("if_begin"); err != nil {
		return nil, err
	}
	immSize := condition.Type.Size()
	if immSize == 8 {
		immSize = 4 // cmp r/m64 only takes a sign-extended imm32
	}
	b.emit(asm.CMP, condition.Op, operand.Imm64(0, immSize))
	end := b.arena.NewLabel(4)
	b.emit(asm.JE, operand.RelativeToLabel(end))
	b.labelDepth++
	return end, nil
}

// IfEnd implements spec.md §4.5 if_end: binds L, ending the taken branch.
func (b *Builder) IfEnd(l *operand.Label) error {
	if err := b.checkNotFrozen("if_end"); err != nil {
		return err
	}
	b.bindLabelAt(l)
	b.labelDepth--
	return nil
}

// Loop is the handle if_begin-style scoping returns for loop_start, so
// nested loops can be tracked by the caller (spec.md §4.5 loop_start).
type Loop struct {
	start *operand.Label
	end   *operand.Label
	done  bool
}

// LoopStart implements spec.md §4.5 loop_start: binds a start label at
// the current offset and allocates an end label.
func (b *Builder) LoopStart() (*Loop, error) {
	if err := b.checkNotFrozen("loop_start"); err != nil {
		return nil, err
	}
	start := b.arena.NewLabel(4)
	end := b.arena.NewLabel(4)
	b.bindLabelAt(start)
	b.labelDepth++
	return &Loop{start: start, end: end}, nil
}

// LoopBreak emits an unconditional jump to the loop's end label.
func (b *Builder) LoopBreak(l *Loop) error {
	if err := b.checkNotFrozen("loop_break"); err != nil {
		return err
	}
	if l.done {
		return NewBuildError(b.Name, "loop_break: loop already ended")
	}
	b.emit(asm.JMP, operand.RelativeToLabel(l.end))
	return nil
}

// LoopContinue emits an unconditional jump back to the loop's start label.
func (b *Builder) LoopContinue(l *Loop) error {
	if err := b.checkNotFrozen("loop_continue"); err != nil {
		return err
	}
	if l.done {
		return NewBuildError(b.Name, "loop_continue: loop already ended")
	}
	b.emit(asm.JMP, operand.RelativeToLabel(l.start))
	return nil
}

// LoopEnd implements spec.md §4.5 loop_end: binds the end label and
// marks the loop done.
func (b *Builder) LoopEnd(l *Loop) error {
	if err := b.checkNotFrozen("loop_end"); err != nil {
		return err
	}
	if l.done {
		return NewBuildError(b.Name, "loop_end: loop already ended")
	}
	b.bindLabelAt(l.end)
	l.done = true
	b.labelDepth--
	return nil
}
