package peering

import (
	"fmt"
	"sync"

	"veiltun/infrastructure/cryptography/keys"
)

// Registry is the process-wide set of configured peers, addressed by static
// public key. It is the longest-lived owner of peer instances; everything
// else holds references obtained from here or from the index table.
type Registry struct {
	mu    sync.RWMutex
	byKey map[[keys.KeySize]byte]*Peer
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[[keys.KeySize]byte]*Peer)}
}

// Add registers a peer. Re-adding the same public key replaces the entry.
func (r *Registry) Add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[p.PublicKey()] = p
}

// ByPublicKey resolves a static key, e.g. the one recovered from a handshake
// initiation, to the configured peer.
func (r *Registry) ByPublicKey(key []byte) (*Peer, error) {
	if len(key) != keys.KeySize {
		return nil, fmt.Errorf("%w: bad key length %d", ErrUnknownPeer, len(key))
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byKey[[keys.KeySize]byte(key)]
	if !ok {
		return nil, ErrUnknownPeer
	}
	return p, nil
}

// All returns a snapshot of the configured peers.
func (r *Registry) All() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*Peer, 0, len(r.byKey))
	for _, p := range r.byKey {
		peers = append(peers, p)
	}
	return peers
}
