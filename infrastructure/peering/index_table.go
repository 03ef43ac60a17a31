package peering

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// IndexTable maps locally chosen 32-bit session indices to the owning peer.
// One peer may hold several live entries (next, current and past slots). The
// table is owned by the orchestrator and injected into whatever needs lookup;
// it is never package-level state.
type IndexTable struct {
	mu      sync.RWMutex
	entries map[uint32]*Peer
}

func NewIndexTable() *IndexTable {
	return &IndexTable{entries: make(map[uint32]*Peer)}
}

// Assign picks a fresh random index, registers it for the peer and returns
// it. Collisions are retried; with 32 bits of space and a handful of peers a
// retry is already unlikely.
func (t *IndexTable) Assign(p *Peer) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var buf [4]byte
	for attempt := 0; attempt < 64; attempt++ {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("draw session index: %w", err)
		}
		index := binary.LittleEndian.Uint32(buf[:])
		if _, taken := t.entries[index]; taken {
			continue
		}
		t.entries[index] = p
		return index, nil
	}
	return 0, ErrIndexSpaceExhausted
}

// Lookup resolves an index from an inbound packet to the owning peer.
func (t *IndexTable) Lookup(index uint32) (*Peer, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.entries[index]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownSessionIndex, index)
	}
	return p, nil
}

// Remove reaps an index whose session has been rotated out or whose
// handshake attempt was abandoned.
func (t *IndexTable) Remove(index uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, index)
}

// Len reports the number of live entries.
func (t *IndexTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
