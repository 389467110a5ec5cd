// Package service glues the builder package to the optional
// introspection API: it starts a function build, attaches a trace, and
// reports the outcome to an api.BuildRegistry so a connected client can
// watch it happen over the WebSocket broadcaster.
package service

import (
	"github.com/rns-lang/x64codegen/abi"
	"github.com/rns-lang/x64codegen/api"
	"github.com/rns-lang/x64codegen/arena"
	"github.com/rns-lang/x64codegen/builder"
	"github.com/rns-lang/x64codegen/descriptor"
	"github.com/rns-lang/x64codegen/execbuf"
)

// CompilerService is the per-compilation-session front door a CLI or
// embedder drives: one instance shares a buffer and arena across many
// function builds and mirrors each one into the registry.
type CompilerService struct {
	Buf     *execbuf.Buffer
	Arena   *arena.Arena
	Policy  *abi.Policy
	Builds  *api.BuildRegistry
}

// NewCompilerService creates a service over a fresh buffer and arena.
// registry may be nil, in which case builds are not mirrored anywhere.
func NewCompilerService(bufSize int, policy *abi.Policy, registry *api.BuildRegistry) (*CompilerService, error) {
	buf, err := execbuf.New(bufSize)
	if err != nil {
		return nil, err
	}
	return &CompilerService{
		Buf:    buf,
		Arena:  arena.New(),
		Policy: policy,
		Builds: registry,
	}, nil
}

// BeginFunction starts a new function build, registers it (if a registry
// is attached), and returns a Builder already wired to record into that
// registration's trace.
func (s *CompilerService) BeginFunction(name string, returnType *descriptor.Descriptor) (*builder.Builder, *api.Build, error) {
	b := builder.FnBegin(name, s.Policy, s.Buf, s.Arena, returnType)

	if s.Builds == nil {
		return b, nil, nil
	}
	reg, err := s.Builds.Register(name)
	if err != nil {
		return nil, nil, err
	}
	b.SetTrace(reg.Trace)
	return b, reg, nil
}

// EndFunction runs fn_end and reports the outcome to the registry
// entry BeginFunction returned (a no-op if reg is nil).
func (s *CompilerService) EndFunction(b *builder.Builder, reg *api.Build) (uint32, error) {
	entry, err := b.FnEnd()
	if reg == nil {
		return entry, err
	}
	if err != nil {
		s.Builds.Fail(reg.ID, err.Error())
		return entry, err
	}
	s.Builds.Complete(reg.ID, entry, len(s.Buf.Bytes())-int(entry))
	return entry, nil
}
