package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/rns-lang/x64codegen/trace"
)

var (
	// ErrBuildNotFound is returned when a build is not found
	ErrBuildNotFound = errors.New("build not found")
	// ErrBuildAlreadyExists is returned when registering a build ID twice
	ErrBuildAlreadyExists = errors.New("build already exists")
)

// Build is one registered function build: its trace, and its outcome
// once fn_end has run (entry offset and byte size stay zero until then).
type Build struct {
	ID          string
	Function    string
	Trace       *trace.Trace
	CreatedAt   time.Time
	Done        bool
	EntryOffset uint32
	ByteSize    int
	Err         string
}

// BuildRegistry tracks the builds a compilation session has produced, for
// the introspection API to list and stream (spec.md's core has no notion
// of "sessions" itself — this is purely an observability layer on top).
type BuildRegistry struct {
	builds      map[string]*Build
	broadcaster *Broadcaster
	mu          sync.RWMutex
}

// NewBuildRegistry creates a new, empty registry.
func NewBuildRegistry(broadcaster *Broadcaster) *BuildRegistry {
	return &BuildRegistry{
		builds:      make(map[string]*Build),
		broadcaster: broadcaster,
	}
}

// Register starts tracking a new build for the named function and
// returns its generated ID plus the trace.Trace the caller should attach
// to its Builder via Builder.SetTrace.
func (r *BuildRegistry) Register(function string) (*Build, error) {
	id, err := generateBuildID()
	if err != nil {
		return nil, err
	}

	b := &Build{
		ID:        id,
		Function:  function,
		Trace:     trace.New(nil),
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builds[id]; exists {
		return nil, ErrBuildAlreadyExists
	}
	r.builds[id] = b
	if r.broadcaster == nil {
		debugLog("build %s: registered for %s, no broadcaster attached", id, function)
	} else {
		debugLog("build %s: registered for %s", id, function)
	}
	return b, nil
}

// Complete marks a build finished and broadcasts its outcome.
func (r *BuildRegistry) Complete(id string, entryOffset uint32, byteSize int) error {
	r.mu.Lock()
	b, exists := r.builds[id]
	if !exists {
		r.mu.Unlock()
		return ErrBuildNotFound
	}
	b.Done = true
	b.EntryOffset = entryOffset
	b.ByteSize = byteSize
	r.mu.Unlock()

	if r.broadcaster != nil {
		r.broadcaster.BroadcastComplete(id, b.Function, entryOffset, byteSize)
	}
	return nil
}

// Fail marks a build failed and broadcasts the error.
func (r *BuildRegistry) Fail(id string, message string) error {
	r.mu.Lock()
	b, exists := r.builds[id]
	if !exists {
		r.mu.Unlock()
		return ErrBuildNotFound
	}
	b.Done = true
	b.Err = message
	r.mu.Unlock()

	if r.broadcaster != nil {
		r.broadcaster.BroadcastError(id, b.Function, message)
	}
	return nil
}

// Get retrieves a build by ID.
func (r *BuildRegistry) Get(id string) (*Build, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, exists := r.builds[id]
	if !exists {
		return nil, ErrBuildNotFound
	}
	return b, nil
}

// List returns all registered build IDs.
func (r *BuildRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.builds))
	for id := range r.builds {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered builds.
func (r *BuildRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.builds)
}

func generateBuildID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
