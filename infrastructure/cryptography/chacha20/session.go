package chacha20

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"

	"veiltun/infrastructure/cryptography/keys"
	"veiltun/infrastructure/protocol"
)

// rejectAfterCounter caps the send counter well below the wrap point.
const rejectAfterCounter = uint64(1) << 60

// Session is the transport codec for one confirmed key pair: an AEAD per
// direction, a monotonically increasing send counter and a replay window for
// the receive side. The key pair itself is immutable; rotation is the only
// way to reset the counter.
type Session struct {
	pair *keys.KeyPair
	send cipher.AEAD
	recv cipher.AEAD

	sendCounter atomic.Uint64
	replay      ReplayWindow
}

// NewSession builds the per-direction ciphers from a finalized key pair.
func NewSession(pair *keys.KeyPair) (*Session, error) {
	send, err := chacha20poly1305.New(pair.Send.Material[:])
	if err != nil {
		return nil, fmt.Errorf("build send cipher: %w", err)
	}
	recv, err := chacha20poly1305.New(pair.Recv.Material[:])
	if err != nil {
		return nil, fmt.Errorf("build recv cipher: %w", err)
	}
	return &Session{pair: pair, send: send, recv: recv}, nil
}

// KeyPair exposes the underlying key material. Test use only.
func (s *Session) KeyPair() *keys.KeyPair { return s.pair }

// LocalIndex is the session index the remote peer addresses us by.
func (s *Session) LocalIndex() uint32 { return s.pair.LocalIndex() }

// RemoteIndex is the session index we address the remote peer by.
func (s *Session) RemoteIndex() uint32 { return s.pair.RemoteIndex() }

// SendCounter returns the next counter value to be used. Test use only.
func (s *Session) SendCounter() uint64 { return s.sendCounter.Load() }

// nonceFor expands a 64-bit counter into the 12-byte AEAD nonce: four zero
// bytes then the counter, little-endian, matching the wire encoding.
func nonceFor(counter uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// Seal encrypts plaintext into a complete transport datagram: the 16-byte
// header addressed to the remote index, then the ciphertext. A zero-length
// plaintext produces a keepalive. Each call consumes one counter value;
// counters are never reused under a given key pair.
func (s *Session) Seal(plaintext []byte) ([]byte, error) {
	counter := s.sendCounter.Add(1) - 1
	if counter >= rejectAfterCounter {
		// Refuse far before the counter can wrap; a wrapped counter would
		// reuse nonces under the same key.
		return nil, ErrNonceOverflow
	}

	packet := make([]byte, protocol.TransportHeaderSize, protocol.TransportHeaderSize+len(plaintext)+chacha20poly1305.Overhead)
	protocol.AppendTransportHeader(packet, s.pair.Send.Index, counter)

	nonce := nonceFor(counter)
	return s.send.Seal(packet, nonce[:], plaintext, nil), nil
}

// Open authenticates and decrypts a transport payload received under the
// given counter. The replay window is consulted first and committed only
// after the ciphertext authenticates, so a forged packet cannot advance it.
func (s *Session) Open(counter uint64, ciphertext []byte) ([]byte, error) {
	if err := s.replay.Check(counter); err != nil {
		return nil, err
	}

	nonce := nonceFor(counter)
	plaintext, err := s.recv.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	s.replay.Accept(counter)
	return plaintext, nil
}

// Zeroize destroys the session's key material. The AEAD instances hold their
// own expanded key copies which Go gives no way to scrub; zeroing the source
// material is the best available hygiene.
func (s *Session) Zeroize() {
	s.pair.Zeroize()
}
