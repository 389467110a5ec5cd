// Package execbuf implements the execution buffer spec.md §3/§5 describes:
// an append-only log of emitted machine code, backed by memory mapped with
// execute-plus-read permissions (plus write during emission), whose byte
// range becomes immutable once a function is frozen.
//
// The mmap/mprotect sequence mirrors the JIT idiom used across the
// retrieval pack's emulator and loader code: allocate RW, emit and
// back-patch freely, then flip to RX before anything calls into it.
package execbuf

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DefaultSize is the execution buffer size in bytes that New maps when it
// is given a non-positive size.
const DefaultSize = 1 << 20 // 1MB

// Buffer is a write-once append log of executable bytes. It is not safe
// for concurrent use; spec.md §5 scopes one buffer to one compilation
// thread.
type Buffer struct {
	mem    []byte // mmap'd region, length == cap
	offset uint32 // next free byte
	frozen bool
}

// New mmaps size bytes of read-write memory.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		size = DefaultSize
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("execbuf: mmap %d bytes: %w", size, err)
	}
	return &Buffer{mem: mem}, nil
}

// Offset returns the current write position, the offset the next emitted
// byte will land at.
func (b *Buffer) Offset() uint32 { return b.offset }

// Len reports the mapped capacity.
func (b *Buffer) Len() int { return len(b.mem) }

// Emit appends bytes at the current offset and advances it. It fails the
// build (spec.md §4.8 "out-of-capacity execution buffer") rather than
// growing the mapping, since growth would invalidate any RIP-relative
// displacement or function pointer already handed out.
func (b *Buffer) Emit(bytes ...byte) error {
	if b.frozen {
		return fmt.Errorf("execbuf: emit into frozen buffer")
	}
	if int(b.offset)+len(bytes) > len(b.mem) {
		return fmt.Errorf("execbuf: buffer overflow: %d bytes at offset %d exceeds capacity %d", len(bytes), b.offset, len(b.mem))
	}
	copy(b.mem[b.offset:], bytes)
	b.offset += uint32(len(bytes))
	return nil
}

// Reserve appends n zero bytes (a placeholder, e.g. for an unresolved
// relative displacement) and returns the offset it starts at.
func (b *Buffer) Reserve(n int) (uint32, error) {
	at := b.offset
	if err := b.Emit(make([]byte, n)...); err != nil {
		return 0, err
	}
	return at, nil
}

// PatchAt overwrites size bytes at loc with value's little-endian
// two's-complement encoding. Used by label binding (spec.md §4.4) and the
// stack-displacement fix-up pass (spec.md §4.3). It is the one place the
// append-only log is rewritten after the fact.
func (b *Buffer) PatchAt(loc uint32, value int64, size int) error {
	if int(loc)+size > len(b.mem) {
		return fmt.Errorf("execbuf: patch at %d size %d out of range", loc, size)
	}
	switch size {
	case 1:
		if value < -128 || value > 127 {
			return fmt.Errorf("execbuf: patch value %d does not fit in 1 byte", value)
		}
		b.mem[loc] = byte(int8(value))
	case 2:
		if value < -32768 || value > 32767 {
			return fmt.Errorf("execbuf: patch value %d does not fit in 2 bytes", value)
		}
		putLE(b.mem[loc:loc+2], uint64(uint16(int16(value))))
	case 4:
		if value < -2147483648 || value > 2147483647 {
			return fmt.Errorf("execbuf: patch value %d does not fit in 4 bytes", value)
		}
		putLE(b.mem[loc:loc+4], uint64(uint32(int32(value))))
	case 8:
		putLE(b.mem[loc:loc+8], uint64(value))
	default:
		return fmt.Errorf("execbuf: unsupported patch size %d", size)
	}
	return nil
}

func putLE(dst []byte, v uint64) {
	for i := range dst {
		dst[i] = byte(v >> (8 * i))
	}
}

// Bytes returns the emitted prefix of the buffer (offset bytes), for
// disassembly/testing.
func (b *Buffer) Bytes() []byte { return b.mem[:b.offset] }

// Freeze switches the mapping to read-plus-execute and forbids further
// emission. The buffer's address range is immutable from this point on.
func (b *Buffer) Freeze() error {
	if b.frozen {
		return nil
	}
	if err := unix.Mprotect(b.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("execbuf: mprotect RX: %w", err)
	}
	b.frozen = true
	return nil
}

// Frozen reports whether Freeze has been called.
func (b *Buffer) Frozen() bool { return b.frozen }

// EntryPointer returns the runnable address of the byte at the given
// offset within this buffer, valid only after Freeze. This is the
// "opaque function pointer" spec.md §6 says a frozen function yields.
func (b *Buffer) EntryPointer(offset uint32) uintptr {
	return uintptr(ptrOf(b.mem)) + uintptr(offset)
}

// Unmap releases the mapping. Callers normally keep a Buffer alive for the
// process lifetime of any function pointers it handed out.
func (b *Buffer) Unmap() error {
	return unix.Munmap(b.mem)
}
