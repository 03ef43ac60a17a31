package peering

import "errors"

var (
	// ErrUnknownSessionIndex means an inbound packet referenced a session
	// index that is not in the table. Dropped, no state mutation.
	ErrUnknownSessionIndex = errors.New("unknown session index")

	// ErrNoActiveSession means an operation needed a session slot that is
	// absent. Callers defer or drop the triggering event.
	ErrNoActiveSession = errors.New("no active session")

	// ErrHandshakeInProgress means a handshake attempt is already in flight
	// and unexpired; the new attempt is rejected, the old one kept.
	ErrHandshakeInProgress = errors.New("handshake already in progress")

	// ErrUnknownPeer means a public key does not belong to any configured
	// peer.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrNoEndpoint means the peer has no known network address yet.
	ErrNoEndpoint = errors.New("peer has no endpoint")

	// ErrIndexSpaceExhausted is returned when no free session index could be
	// found. Practically unreachable with a 32-bit index space.
	ErrIndexSpaceExhausted = errors.New("session index space exhausted")
)
