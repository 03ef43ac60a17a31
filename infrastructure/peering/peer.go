package peering

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"veiltun/infrastructure/cryptography/chacha20"
	"veiltun/infrastructure/cryptography/keys"
	"veiltun/infrastructure/cryptography/noise"
	"veiltun/infrastructure/protocol"
)

// Peer is one configured remote identity and its rotating session slots:
// next (handshake in flight), staged (responder session awaiting liveness
// proof), current (active), past (kept for decrypt fallback until superseded
// again). Exactly one Peer exists per identity; it is shared by reference
// between the dispatcher, the timers and the index table. All slot mutation
// happens under the peer's mutex.
type Peer struct {
	mu sync.Mutex

	publicKey    [keys.KeySize]byte
	presharedKey [keys.KeySize]byte
	endpoint     netip.AddrPort

	next    *noise.Handshake
	staged  *chacha20.Session
	current *chacha20.Session
	past    *chacha20.Session

	txBytes atomic.Uint64
	rxBytes atomic.Uint64
}

func NewPeer(publicKey, presharedKey [keys.KeySize]byte, endpoint netip.AddrPort) *Peer {
	return &Peer{
		publicKey:    publicKey,
		presharedKey: presharedKey,
		endpoint:     endpoint,
	}
}

func (p *Peer) PublicKey() [keys.KeySize]byte { return p.publicKey }

// Endpoint returns the peer's last known address. A peer configured without
// one stays unreachable until an authenticated packet reveals it.
func (p *Peer) Endpoint() (netip.AddrPort, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.endpoint.IsValid() {
		return netip.AddrPort{}, ErrNoEndpoint
	}
	return p.endpoint, nil
}

// SetEndpoint records the source address of an authenticated inbound packet,
// so a roaming peer keeps working.
func (p *Peer) SetEndpoint(addr netip.AddrPort) {
	p.mu.Lock()
	p.endpoint = addr
	p.mu.Unlock()
}

func (p *Peer) AddTxBytes(n uint64) { p.txBytes.Add(n) }
func (p *Peer) AddRxBytes(n uint64) { p.rxBytes.Add(n) }
func (p *Peer) TxBytes() uint64     { return p.txBytes.Load() }
func (p *Peer) RxBytes() uint64     { return p.rxBytes.Load() }

// BeginHandshake starts a new initiator attempt: allocates a session index,
// binds a fresh handshake state into the next slot and returns the framed
// initiation. A live unexpired attempt rejects the new one with
// ErrHandshakeInProgress and is left untouched; an expired attempt is reaped
// and replaced.
func (p *Peer) BeginHandshake(table *IndexTable, localPriv, localPub []byte) (*protocol.Initiation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next != nil {
		if !p.next.Expired(time.Now()) {
			return nil, ErrHandshakeInProgress
		}
		table.Remove(p.next.LocalIndex())
		p.next = nil
	}

	index, err := table.Assign(p)
	if err != nil {
		return nil, err
	}

	hs, err := noise.NewInitiator(localPriv, localPub, p.publicKey[:], p.presharedKey[:], index)
	if err != nil {
		table.Remove(index)
		return nil, err
	}
	msg, err := hs.WriteInitiation()
	if err != nil {
		table.Remove(index)
		return nil, err
	}

	p.next = hs
	return msg, nil
}

// RespondHandshake consumes a verified-to-be-ours initiation and produces the
// response. IK completes for the responder at message 2, but an initiation
// datagram can be a verbatim replay of an old one, so the fresh session only
// enters the staged slot. It is promoted to current by Open once the
// initiator proves liveness with an authenticated transport packet; until
// then the active sessions are untouched. The displaced staged session (if
// any) is returned for index reaping and key destruction.
func (p *Peer) RespondHandshake(table *IndexTable, localPriv, localPub []byte, msg *protocol.Initiation) (*protocol.Response, *chacha20.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	index, err := table.Assign(p)
	if err != nil {
		return nil, nil, err
	}

	hs, err := noise.NewResponder(localPriv, localPub, p.presharedKey[:], index)
	if err != nil {
		table.Remove(index)
		return nil, nil, err
	}
	if err := hs.ReadInitiation(msg); err != nil {
		table.Remove(index)
		return nil, nil, err
	}
	resp, pair, err := hs.WriteResponse()
	if err != nil {
		table.Remove(index)
		return nil, nil, err
	}
	session, err := chacha20.NewSession(pair)
	if err != nil {
		table.Remove(index)
		return nil, nil, err
	}

	displaced := p.staged
	p.staged = session
	return resp, displaced, nil
}

// CompleteHandshake finalizes the initiator side from the peer's response.
// This is the only path that promotes a locally initiated session to current.
// On authentication failure the pending attempt is left in place, so a later
// genuine response can still complete it.
func (p *Peer) CompleteHandshake(msg *protocol.Response) (*chacha20.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next == nil {
		return nil, fmt.Errorf("%w: no handshake in flight", ErrNoActiveSession)
	}
	if msg.Receiver != p.next.LocalIndex() {
		return nil, fmt.Errorf("%w: response for index %#x, pending is %#x",
			noise.ErrHandshakeFailed, msg.Receiver, p.next.LocalIndex())
	}

	pair, err := p.next.ReadResponse(msg)
	if err != nil {
		return nil, err
	}
	session, err := chacha20.NewSession(pair)
	if err != nil {
		return nil, err
	}

	p.next = nil
	evicted := p.rotateLocked(session)
	return evicted, nil
}

// rotateLocked installs a confirmed session: current moves to past, the old
// past is evicted. Assumes p.mu is held.
func (p *Peer) rotateLocked(session *chacha20.Session) *chacha20.Session {
	evicted := p.past
	p.past = p.current
	p.current = session
	return evicted
}

// Current returns the active session.
func (p *Peer) Current() (*chacha20.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, fmt.Errorf("%w: no current session", ErrNoActiveSession)
	}
	return p.current, nil
}

// Past returns the most recently superseded session.
func (p *Peer) Past() (*chacha20.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.past == nil {
		return nil, fmt.Errorf("%w: no past session", ErrNoActiveSession)
	}
	return p.past, nil
}

// HandshakeInFlight reports whether a next-slot attempt exists.
func (p *Peer) HandshakeInFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next != nil
}

// Seal encrypts plaintext under the current session into a complete
// transport datagram. An empty plaintext yields a keepalive.
func (p *Peer) Seal(plaintext []byte) ([]byte, error) {
	session, err := p.Current()
	if err != nil {
		return nil, err
	}
	return session.Seal(plaintext)
}

// Open decrypts a transport payload against the current session, falling
// back to the past one (inbound traffic keyed under the superseded session
// is still valid right after a rotation) and then to the staged responder
// session. A staged session that decrypts is the liveness proof the
// initiator owes us; it rotates into the current slot, and the session
// evicted by that rotation is returned for reaping. All failing is a drop.
func (p *Peer) Open(counter uint64, ciphertext []byte) ([]byte, *chacha20.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil && p.staged == nil {
		return nil, nil, fmt.Errorf("%w: no current session", ErrNoActiveSession)
	}

	if p.current != nil {
		plaintext, currentErr := p.current.Open(counter, ciphertext)
		if currentErr == nil {
			return plaintext, nil, nil
		}
		if p.past != nil {
			if plaintext, pastErr := p.past.Open(counter, ciphertext); pastErr == nil {
				return plaintext, nil, nil
			}
		}
		if p.staged == nil {
			return nil, nil, currentErr
		}
	}

	plaintext, stagedErr := p.staged.Open(counter, ciphertext)
	if stagedErr != nil {
		return nil, nil, stagedErr
	}
	evicted := p.rotateLocked(p.staged)
	p.staged = nil
	return plaintext, evicted, nil
}

// Zeroize destroys all session material. Process teardown only.
func (p *Peer) Zeroize() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range []*chacha20.Session{p.staged, p.current, p.past} {
		if s != nil {
			s.Zeroize()
		}
	}
	p.staged, p.current, p.past, p.next = nil, nil, nil, nil
}
