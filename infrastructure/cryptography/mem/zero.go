package mem

import "runtime"

// ZeroBytes overwrites a byte slice with zeros.
//
// SECURITY INVARIANT: the zeroing must not be optimized away. runtime.KeepAlive
// keeps the slice live until after the loop, preventing dead-store elimination.
//
// LIMITATION: the GC may have moved or copied the backing array earlier; this
// is best-effort hygiene for key material, not a hard guarantee.
func ZeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// Zero32 overwrites a fixed-size 32-byte value in place. Static and session
// keys are all 32 bytes wide, so this covers every key type in the module.
func Zero32(b *[32]byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
