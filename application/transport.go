package application

import "net/netip"

// Datagram is one opaque message and the address it came from or goes to.
type Datagram struct {
	Addr    netip.AddrPort
	Payload []byte
}

// DatagramTransport is the unreliable, unordered, at-most-once datagram
// collaborator the engine runs over. Implementations own the socket; the
// engine never sees addressing details beyond netip.AddrPort.
type DatagramTransport interface {
	// ReadFrom blocks until a datagram arrives and copies it into buf.
	ReadFrom(buf []byte) (int, netip.AddrPort, error)

	// WriteTo sends one datagram to addr.
	WriteTo(data []byte, addr netip.AddrPort) error

	// Close unblocks any pending ReadFrom.
	Close() error
}

// OutboundFrame is locally originated plaintext awaiting encryption. Which
// peer owns which plaintext is decided outside the engine; the frame just
// names the destination by static public key.
type OutboundFrame struct {
	To      [32]byte
	Payload []byte
}
