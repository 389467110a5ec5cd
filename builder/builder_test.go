package builder

import (
	"testing"

	"github.com/rns-lang/x64codegen/abi"
	"github.com/rns-lang/x64codegen/arena"
	"github.com/rns-lang/x64codegen/descriptor"
	"github.com/rns-lang/x64codegen/execbuf"
	"github.com/rns-lang/x64codegen/operand"
	"github.com/rns-lang/x64codegen/trace"
)

// threeInt64Struct builds a 24-byte struct descriptor, used to exercise
// the hidden-return-pointer path (any descriptor over 8 bytes will do).
func threeInt64Struct() *descriptor.Descriptor {
	sb := descriptor.NewStructBuilder()
	sb.AddField("x", descriptor.PrimitiveS64)
	sb.AddField("y", descriptor.PrimitiveS64)
	sb.AddField("z", descriptor.PrimitiveS64)
	return sb.Finalize()
}

func newTestBuilder(t *testing.T, name string, policy *abi.Policy, ret *descriptor.Descriptor) (*Builder, *execbuf.Buffer, *arena.Arena) {
	t.Helper()
	buf, err := execbuf.New(4096)
	if err != nil {
		t.Fatalf("execbuf.New: %v", err)
	}
	ar := arena.New()
	b := FnBegin(name, policy, buf, ar, ret)
	return b, buf, ar
}

func TestFnBeginFnArgFnEndAddTwoInts(t *testing.T) {
	b, buf, _ := newTestBuilder(t, "add2", abi.SystemV(), descriptor.PrimitiveS64)

	a, err := b.FnArg(descriptor.PrimitiveS64)
	if err != nil {
		t.Fatalf("FnArg: %v", err)
	}
	c, err := b.FnArg(descriptor.PrimitiveS64)
	if err != nil {
		t.Fatalf("FnArg: %v", err)
	}

	sum, err := b.RnsAdd(a, c)
	if err != nil {
		t.Fatalf("RnsAdd: %v", err)
	}
	if err := b.FnReturn(sum); err != nil {
		t.Fatalf("FnReturn: %v", err)
	}

	entry, err := b.FnEnd()
	if err != nil {
		t.Fatalf("FnEnd: %v", err)
	}
	if !b.Frozen() {
		t.Error("expected builder to be frozen after fn_end")
	}
	if len(buf.Bytes()) == 0 {
		t.Error("expected emitted bytes")
	}
	if entry != 0 {
		t.Errorf("expected entry offset 0 for the first function in a fresh buffer, got %d", entry)
	}
}

func TestFnArgAfterFnEndErrors(t *testing.T) {
	b, _, _ := newTestBuilder(t, "frozen", abi.SystemV(), descriptor.PrimitiveS64)
	zero := descriptor.Value{Type: descriptor.PrimitiveS64, Op: operand.Imm64(0, 8)}
	if err := b.FnReturn(zero); err != nil {
		t.Fatalf("FnReturn: %v", err)
	}
	if _, err := b.FnEnd(); err != nil {
		t.Fatalf("FnEnd: %v", err)
	}
	if _, err := b.FnArg(descriptor.PrimitiveS64); err == nil {
		t.Error("expected fn_arg on a frozen builder to error")
	}
}

func TestLargeReturnCapturesHiddenPointerAtEntry(t *testing.T) {
	bigStruct := threeInt64Struct()
	b, _, _ := newTestBuilder(t, "big_return", abi.SystemV(), bigStruct)

	if !b.hasHiddenReturnSlot {
		t.Fatal("expected fn_begin to capture a hidden return slot for a >8-byte return type")
	}
	if len(b.instrs) != 1 {
		t.Fatalf("expected exactly one deferred instruction (the hidden-pointer save) before any other code runs, got %d", len(b.instrs))
	}
}

func TestUnbalancedIfScopeRejectedAtFnEnd(t *testing.T) {
	b, _, _ := newTestBuilder(t, "unbalanced", abi.SystemV(), descriptor.PrimitiveVoid)
	cond, err := b.FnArg(descriptor.PrimitiveS64)
	if err != nil {
		t.Fatalf("FnArg: %v", err)
	}
	if _, err := b.IfBegin(cond); err != nil {
		t.Fatalf("IfBegin: %v", err)
	}
	// deliberately omit IfEnd
	if _, err := b.FnEnd(); err == nil {
		t.Error("expected fn_end to reject an unbalanced if/loop scope")
	}
}

func TestTraceRecordsStackSlotsAndInstructions(t *testing.T) {
	b, _, _ := newTestBuilder(t, "traced", abi.SystemV(), descriptor.PrimitiveS64)
	tr := trace.New(nil)
	b.SetTrace(tr)

	a, err := b.FnArg(descriptor.PrimitiveS64)
	if err != nil {
		t.Fatalf("FnArg: %v", err)
	}
	if err := b.FnReturn(a); err != nil {
		t.Fatalf("FnReturn: %v", err)
	}
	if _, err := b.FnEnd(); err != nil {
		t.Fatalf("FnEnd: %v", err)
	}

	entries := tr.Entries()
	if len(entries) == 0 {
		t.Fatal("expected trace entries after fn_end")
	}
	sawInstruction := false
	sawLabel := false
	for _, e := range entries {
		if e.Kind == trace.InstructionEmitted {
			sawInstruction = true
		}
		if e.Kind == trace.LabelBound {
			sawLabel = true
		}
	}
	if !sawInstruction {
		t.Error("expected at least one InstructionEmitted trace entry")
	}
	if !sawLabel {
		t.Error("expected the epilogue label bind to be traced")
	}

	stats := trace.NewStats(tr)
	if stats.TotalInstructions == 0 {
		t.Error("expected NewStats to see the same instructions the trace recorded")
	}
}
