// Package scenarios builds the end-to-end examples spec.md §8 lists and
// actually executes them: each built function's entry point is cast to a
// Go function value (invoke.go) and called, with the result checked
// against spec.md §8's literal expected values.
package scenarios

import (
	"testing"

	"github.com/rns-lang/x64codegen/abi"
)

func TestScenarios(t *testing.T) {
	t.Run("conditional", func(t *testing.T) {
		r := build(t, "conditional")
		for arg, want := range map[int32]int32{0: 0, 1: 1, -1: 1} {
			if got := invokeConditional(r, arg); got != want {
				t.Errorf("conditional(%d) = %d, want %d", arg, got, want)
			}
		}
	})

	t.Run("arithmetic", func(t *testing.T) {
		r := build(t, "arithmetic")
		if got := invokeArithmetic(r, 15123, 6); got != 15125 {
			t.Errorf("arithmetic(15123, 6) = %d, want 15125", got)
		}
	})

	t.Run("signed_division", func(t *testing.T) {
		r := build(t, "signed_division")
		if got := invokeSignedDivision(r, 40, 5); got != 8 {
			t.Errorf("signed_division(40, 5) = %d, want 8", got)
		}
	})

	t.Run("array_loop", func(t *testing.T) {
		r := build(t, "array_loop")
		arr := [3]int32{1, 2, 3}
		invokeArrayLoop(r, &arr)
		want := [3]int32{2, 3, 4}
		if arr != want {
			t.Errorf("array_loop: got %v, want %v", arr, want)
		}
	})

	t.Run("tagged_union", func(t *testing.T) {
		r := build(t, "tagged_union")
		none := nativeOption{Tag: 0}
		if got := invokeTaggedUnion(r, &none, 42); got != 42 {
			t.Errorf("with_default(None, 42) = %d, want 42", got)
		}
		some := nativeOption{Tag: 1, Value: 21}
		if got := invokeTaggedUnion(r, &some, 42); got != 21 {
			t.Errorf("with_default(Some(21), 42) = %d, want 21", got)
		}
	})

	t.Run("fibonacci", func(t *testing.T) {
		r := build(t, "fibonacci")
		for n, want := range map[int64]int64{0: 0, 1: 1, 2: 1, 3: 2, 6: 8} {
			if got := invokeFibonacci(r, n); got != want {
				t.Errorf("fib(%d) = %d, want %d", n, got, want)
			}
		}
	})
}

func build(t *testing.T, name string) Result {
	t.Helper()
	result, err := Run(name, abi.SystemV(), nil)
	if err != nil {
		t.Fatalf("Run(%q): %v", name, err)
	}
	if result.ByteSize <= 0 {
		t.Fatalf("Run(%q): expected a non-trivial function body, got %d bytes", name, result.ByteSize)
	}
	if result.Entry == 0 {
		t.Fatalf("Run(%q): expected a non-nil entry pointer from the frozen buffer", name)
	}
	return result
}

// TestScenariosUnderMSx64 only checks build structure: invoke.go's cast
// assumes the host's native ABI (System V on linux/amd64), which a
// Microsoft x64 build does not use, so nothing on this host can actually
// call into it.
func TestScenariosUnderMSx64(t *testing.T) {
	for _, name := range []string{"arithmetic", "signed_division", "fibonacci"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(name, abi.Microsoft(), nil)
			if err != nil {
				t.Fatalf("Run(%q): %v", name, err)
			}
			if result.ByteSize <= 0 {
				t.Errorf("expected a non-trivial function body, got %d bytes", result.ByteSize)
			}
		})
	}
}

func TestUnknownScenarioErrors(t *testing.T) {
	if _, err := Run("does_not_exist", abi.SystemV(), nil); err == nil {
		t.Fatal("expected an error for an unknown scenario name")
	}
}
