package keys

import (
	"time"

	"veiltun/infrastructure/cryptography/mem"
)

// KeySize is the width of every key in the protocol: static X25519 keys,
// pre-shared keys and derived session keys.
const KeySize = 32

// Key is a single 32-byte session key together with the 32-bit session index
// it authenticates. For the receive key the index is the locally chosen one;
// for the send key it is the index the remote peer picked.
type Key struct {
	Material [KeySize]byte
	Index    uint32
}

// Zeroize overwrites the key material. The Key must not be used afterwards.
func (k *Key) Zeroize() {
	mem.Zero32(&k.Material)
}

// Equal compares two keys byte-for-byte. It exists for tests only and is not
// constant-time; protocol logic never compares key material.
func (k *Key) Equal(other *Key) bool {
	if k.Index != other.Index {
		return false
	}
	return k.Material == other.Material
}

// KeyPair is one confirmed session: a send key, a receive key and metadata.
// It is immutable after creation; nonce counters live in the transport codec,
// not here.
type KeyPair struct {
	Birth     time.Time
	Initiator bool
	Send      Key
	Recv      Key
}

// NewKeyPair copies the raw key material into a KeyPair. Callers should zero
// their own copies after the call (the handshake engine does).
func NewKeyPair(initiator bool, send, recv []byte, localIndex, remoteIndex uint32) *KeyPair {
	kp := &KeyPair{
		Birth:     time.Now(),
		Initiator: initiator,
	}
	copy(kp.Send.Material[:], send)
	kp.Send.Index = remoteIndex
	copy(kp.Recv.Material[:], recv)
	kp.Recv.Index = localIndex
	return kp
}

// LocalIndex returns the locally chosen session index, i.e. the identifier of
// the receive key. The remote peer addresses transport packets to it.
func (kp *KeyPair) LocalIndex() uint32 {
	return kp.Recv.Index
}

// RemoteIndex returns the session index the remote peer chose for itself.
func (kp *KeyPair) RemoteIndex() uint32 {
	return kp.Send.Index
}

// Zeroize destroys both keys. Called when the pair is rotated out of the
// past slot or the process shuts down.
func (kp *KeyPair) Zeroize() {
	kp.Send.Zeroize()
	kp.Recv.Zeroize()
}
