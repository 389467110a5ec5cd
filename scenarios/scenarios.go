// Package scenarios builds the concrete end-to-end examples spec.md §8
// describes, directly against the builder API with no front end. Each one
// returns where its function landed in the execution buffer, how large it
// is, and its entry address; scenarios_test.go casts that address to a Go
// function value (invoke.go) and checks the real, executed result against
// spec.md §8's literal expected values.
package scenarios

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rns-lang/x64codegen/abi"
	"github.com/rns-lang/x64codegen/arena"
	"github.com/rns-lang/x64codegen/builder"
	"github.com/rns-lang/x64codegen/descriptor"
	"github.com/rns-lang/x64codegen/execbuf"
	"github.com/rns-lang/x64codegen/operand"
	"github.com/rns-lang/x64codegen/trace"
)

// Result reports where a scenario's function was built. Entry is the
// opaque function pointer spec.md §6 says a frozen function yields;
// invoke.go casts it to a callable Go function for the scenarios that
// exercise native execution (see DESIGN.md).
type Result struct {
	EntryOffset uint32
	ByteSize    int
	Entry       uintptr
}

type scenarioFunc func(policy *abi.Policy, tr *trace.Trace) (Result, error)

var registry = map[string]scenarioFunc{
	"conditional":       buildConditional,
	"arithmetic":        buildArithmetic,
	"signed_division":   buildSignedDivision,
	"array_loop":        buildArrayLoop,
	"tagged_union":      buildTaggedUnion,
	"fibonacci":         buildFibonacci,
}

// Names lists the scenario names Run accepts, comma-joined for -help text.
func Names() string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Run builds the named scenario under policy, recording into tr if non-nil.
func Run(name string, policy *abi.Policy, tr *trace.Trace) (Result, error) {
	fn, ok := registry[name]
	if !ok {
		return Result{}, fmt.Errorf("unknown scenario %q (want one of: %s)", name, Names())
	}
	return fn(policy, tr)
}

func newBuilder(name string, policy *abi.Policy, ret *descriptor.Descriptor, tr *trace.Trace) (*builder.Builder, *execbuf.Buffer, error) {
	buf, err := execbuf.New(64 * 1024)
	if err != nil {
		return nil, nil, err
	}
	b := builder.FnBegin(name, policy, buf, arena.New(), ret)
	if tr != nil {
		b.SetTrace(tr)
	}
	return b, buf, nil
}

func finish(b *builder.Builder, buf *execbuf.Buffer) (Result, error) {
	entry, err := b.FnEnd()
	if err != nil {
		return Result{}, err
	}
	if err := buf.Freeze(); err != nil {
		return Result{}, err
	}
	return Result{
		EntryOffset: entry,
		ByteSize:    len(buf.Bytes()) - int(entry),
		Entry:       buf.EntryPointer(entry),
	}, nil
}

func buildConditional(policy *abi.Policy, tr *trace.Trace) (Result, error) {
	b, buf, err := newBuilder("conditional", policy, descriptor.PrimitiveS32, tr)
	if err != nil {
		return Result{}, err
	}
	arg, err := b.FnArg(descriptor.PrimitiveS32)
	if err != nil {
		return Result{}, err
	}
	zero, err := b.StackReserve(descriptor.PrimitiveS32)
	if err != nil {
		return Result{}, err
	}
	if err := b.MoveValue(zero, descriptor.Value{Type: descriptor.PrimitiveS32, Op: operand.Imm64(0, 4)}); err != nil {
		return Result{}, err
	}
	isZero, err := b.Compare(builder.Equal, arg, zero)
	if err != nil {
		return Result{}, err
	}
	end, err := b.IfBegin(isZero)
	if err != nil {
		return Result{}, err
	}
	if err := b.FnReturn(descriptor.Value{Type: descriptor.PrimitiveS32, Op: operand.Imm64(0, 4)}); err != nil {
		return Result{}, err
	}
	if err := b.IfEnd(end); err != nil {
		return Result{}, err
	}
	if err := b.FnReturn(descriptor.Value{Type: descriptor.PrimitiveS32, Op: operand.Imm64(1, 4)}); err != nil {
		return Result{}, err
	}
	return finish(b, buf)
}

func buildArithmetic(policy *abi.Policy, tr *trace.Trace) (Result, error) {
	b, buf, err := newBuilder("arithmetic", policy, descriptor.PrimitiveS64, tr)
	if err != nil {
		return Result{}, err
	}
	a, err := b.FnArg(descriptor.PrimitiveS64)
	if err != nil {
		return Result{}, err
	}
	c, err := b.FnArg(descriptor.PrimitiveS64)
	if err != nil {
		return Result{}, err
	}
	four := descriptor.Value{Type: descriptor.PrimitiveS64, Op: operand.Imm64(4, 8)}
	aMinusFour, err := b.RnsSub(a, four)
	if err != nil {
		return Result{}, err
	}
	sum, err := b.RnsAdd(aMinusFour, c)
	if err != nil {
		return Result{}, err
	}
	if err := b.FnReturn(sum); err != nil {
		return Result{}, err
	}
	return finish(b, buf)
}

func buildSignedDivision(policy *abi.Policy, tr *trace.Trace) (Result, error) {
	b, buf, err := newBuilder("signed_division", policy, descriptor.PrimitiveS32, tr)
	if err != nil {
		return Result{}, err
	}
	a, err := b.FnArg(descriptor.PrimitiveS32)
	if err != nil {
		return Result{}, err
	}
	c, err := b.FnArg(descriptor.PrimitiveS32)
	if err != nil {
		return Result{}, err
	}
	quotient, err := b.RnsDivSigned(a, c)
	if err != nil {
		return Result{}, err
	}
	if err := b.FnReturn(quotient); err != nil {
		return Result{}, err
	}
	return finish(b, buf)
}

func buildArrayLoop(policy *abi.Policy, tr *trace.Trace) (Result, error) {
	b, buf, err := newBuilder("array_loop", policy, descriptor.PrimitiveVoid, tr)
	if err != nil {
		return Result{}, err
	}
	ptr, err := b.FnArg(descriptor.NewPointer(descriptor.PrimitiveS32))
	if err != nil {
		return Result{}, err
	}
	index, err := b.StackReserve(descriptor.PrimitiveS64)
	if err != nil {
		return Result{}, err
	}
	if err := b.MoveValue(index, descriptor.Value{Type: descriptor.PrimitiveS64, Op: operand.Imm64(0, 8)}); err != nil {
		return Result{}, err
	}

	loop, err := b.LoopStart()
	if err != nil {
		return Result{}, err
	}
	three := descriptor.Value{Type: descriptor.PrimitiveS64, Op: operand.Imm64(3, 8)}
	reachedEnd, err := b.Compare(builder.Equal, index, three)
	if err != nil {
		return Result{}, err
	}
	end, err := b.IfBegin(reachedEnd)
	if err != nil {
		return Result{}, err
	}
	if err := b.LoopBreak(loop); err != nil {
		return Result{}, err
	}
	if err := b.IfEnd(end); err != nil {
		return Result{}, err
	}

	elem, err := b.DereferencePointer(ptr)
	if err != nil {
		return Result{}, err
	}
	one := descriptor.Value{Type: elem.Type, Op: operand.Imm64(1, 4)}
	incremented, err := b.RnsAdd(elem, one)
	if err != nil {
		return Result{}, err
	}
	if err := b.MoveValue(elem, incremented); err != nil {
		return Result{}, err
	}

	nextIndex, err := b.RnsAdd(index, descriptor.Value{Type: descriptor.PrimitiveS64, Op: operand.Imm64(1, 8)})
	if err != nil {
		return Result{}, err
	}
	if err := b.MoveValue(index, nextIndex); err != nil {
		return Result{}, err
	}
	if err := b.LoopContinue(loop); err != nil {
		return Result{}, err
	}
	if err := b.LoopEnd(loop); err != nil {
		return Result{}, err
	}
	return finish(b, buf)
}

func taggedOption() (*descriptor.Descriptor, *descriptor.Descriptor) {
	none := descriptor.NewStructBuilder().Finalize()
	none.Name = "None"

	someBuilder := descriptor.NewStructBuilder()
	someBuilder.AddField("value", descriptor.PrimitiveS64)
	some := someBuilder.Finalize()
	some.Name = "Some"

	return none, some
}

func buildTaggedUnion(policy *abi.Policy, tr *trace.Trace) (Result, error) {
	none, some := taggedOption()
	option := descriptor.NewTaggedUnion(none, some)

	b, buf, err := newBuilder("with_default", policy, descriptor.PrimitiveS64, tr)
	if err != nil {
		return Result{}, err
	}
	optPtr, err := b.FnArg(descriptor.NewPointer(option))
	if err != nil {
		return Result{}, err
	}
	defaultVal, err := b.FnArg(descriptor.PrimitiveS64)
	if err != nil {
		return Result{}, err
	}

	opt, err := b.DereferencePointer(optPtr)
	if err != nil {
		return Result{}, err
	}
	matched, err := b.CastToTag(opt, "Some")
	if err != nil {
		return Result{}, err
	}

	isNull, err := b.Compare(builder.Equal, matched, descriptor.Value{Type: matched.Type, Op: operand.Imm64(0, 8)})
	if err != nil {
		return Result{}, err
	}
	end, err := b.IfBegin(isNull)
	if err != nil {
		return Result{}, err
	}
	if err := b.FnReturn(defaultVal); err != nil {
		return Result{}, err
	}
	if err := b.IfEnd(end); err != nil {
		return Result{}, err
	}

	somePtr, err := b.DereferencePointer(matched)
	if err != nil {
		return Result{}, err
	}
	value, err := b.StructGetField(somePtr, "value")
	if err != nil {
		return Result{}, err
	}
	if err := b.FnReturn(value); err != nil {
		return Result{}, err
	}
	return finish(b, buf)
}

func buildFibonacci(policy *abi.Policy, tr *trace.Trace) (Result, error) {
	b, buf, err := newBuilder("fib", policy, descriptor.PrimitiveS64, tr)
	if err != nil {
		return Result{}, err
	}
	sig := descriptor.NewFunction([]*descriptor.Descriptor{descriptor.PrimitiveS64}, descriptor.PrimitiveS64)
	self := builder.DirectCallee(sig, b.EntryLabel())

	n, err := b.FnArg(descriptor.PrimitiveS64)
	if err != nil {
		return Result{}, err
	}
	two := descriptor.Value{Type: descriptor.PrimitiveS64, Op: operand.Imm64(2, 8)}
	lessThanTwo, err := b.Compare(builder.Less, n, two)
	if err != nil {
		return Result{}, err
	}
	end, err := b.IfBegin(lessThanTwo)
	if err != nil {
		return Result{}, err
	}
	if err := b.FnReturn(n); err != nil {
		return Result{}, err
	}
	if err := b.IfEnd(end); err != nil {
		return Result{}, err
	}

	nMinusOne, err := b.RnsSub(n, descriptor.Value{Type: descriptor.PrimitiveS64, Op: operand.Imm64(1, 8)})
	if err != nil {
		return Result{}, err
	}
	nMinusTwo, err := b.RnsSub(n, two)
	if err != nil {
		return Result{}, err
	}
	fibNMinus1, err := b.Call(self, []descriptor.Value{nMinusOne})
	if err != nil {
		return Result{}, err
	}
	fibNMinus2, err := b.Call(self, []descriptor.Value{nMinusTwo})
	if err != nil {
		return Result{}, err
	}
	sum, err := b.RnsAdd(fibNMinus1, fibNMinus2)
	if err != nil {
		return Result{}, err
	}
	if err := b.FnReturn(sum); err != nil {
		return Result{}, err
	}
	return finish(b, buf)
}
