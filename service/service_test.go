package service

import (
	"testing"

	"github.com/rns-lang/x64codegen/abi"
	"github.com/rns-lang/x64codegen/api"
	"github.com/rns-lang/x64codegen/descriptor"
)

func TestBeginEndFunctionRegistersBuild(t *testing.T) {
	registry := api.NewBuildRegistry(nil)
	svc, err := NewCompilerService(4096, abi.SystemV(), registry)
	if err != nil {
		t.Fatalf("NewCompilerService: %v", err)
	}

	b, reg, err := svc.BeginFunction("identity", descriptor.PrimitiveS64)
	if err != nil {
		t.Fatalf("BeginFunction: %v", err)
	}
	if reg == nil {
		t.Fatal("expected a registered build")
	}

	arg, err := b.FnArg(descriptor.PrimitiveS64)
	if err != nil {
		t.Fatalf("FnArg: %v", err)
	}
	if err := b.FnReturn(arg); err != nil {
		t.Fatalf("FnReturn: %v", err)
	}

	if _, err := svc.EndFunction(b, reg); err != nil {
		t.Fatalf("EndFunction: %v", err)
	}

	got, err := registry.Get(reg.ID)
	if err != nil {
		t.Fatalf("registry.Get: %v", err)
	}
	if !got.Done {
		t.Error("expected build to be marked done")
	}
	if got.ByteSize <= 0 {
		t.Errorf("expected positive byte size, got %d", got.ByteSize)
	}
	if len(reg.Trace.Entries()) == 0 {
		t.Error("expected the build's trace to have recorded events")
	}
}

func TestBeginFunctionWithoutRegistry(t *testing.T) {
	svc, err := NewCompilerService(4096, abi.SystemV(), nil)
	if err != nil {
		t.Fatalf("NewCompilerService: %v", err)
	}
	b, reg, err := svc.BeginFunction("no_registry", descriptor.PrimitiveVoid)
	if err != nil {
		t.Fatalf("BeginFunction: %v", err)
	}
	if reg != nil {
		t.Error("expected a nil registration when no registry is attached")
	}
	// A void function needs no explicit fn_return; control simply falls
	// through to the epilogue.
	if _, err := svc.EndFunction(b, reg); err != nil {
		t.Fatalf("EndFunction: %v", err)
	}
}
