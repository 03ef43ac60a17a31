package chacha20

import "sync"

// ReplayWindow is a 64-entry sliding window over receive counters. Check
// before decrypting, Accept only after the ciphertext authenticated; a failed
// decrypt must leave the window untouched.
type ReplayWindow struct {
	mu     sync.Mutex
	max    uint64
	bitmap uint64
}

// Check returns nil if seq would be accepted, without modifying state.
func (w *ReplayWindow) Check(seq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case seq > w.max:
		return nil
	case w.max-seq >= 64:
		return ErrNonUniqueNonce
	default:
		if w.bitmap&(uint64(1)<<(w.max-seq)) != 0 {
			return ErrNonUniqueNonce
		}
		return nil
	}
}

// Accept commits seq to the window. Assumes Check(seq) returned nil.
func (w *ReplayWindow) Accept(seq uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case seq > w.max:
		shift := seq - w.max
		if shift >= 64 {
			w.bitmap = 0
		} else {
			w.bitmap <<= shift
		}
		w.bitmap |= 1
		w.max = seq
	case w.max-seq < 64:
		w.bitmap |= uint64(1) << (w.max - seq)
	}
}
