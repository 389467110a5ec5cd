package execbuf

import "unsafe"

// ptrOf returns the address of a byte slice's backing array. Isolated in
// its own file since it is the only unsafe operation execbuf performs.
func ptrOf(mem []byte) unsafe.Pointer {
	if len(mem) == 0 {
		return nil
	}
	return unsafe.Pointer(&mem[0])
}
