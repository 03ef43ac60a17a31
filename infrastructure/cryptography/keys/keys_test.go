package keys

import (
	"bytes"
	"testing"
)

// TestKeyPairIndices checks that the receive key carries the local index and
// the send key carries the remote one.
func TestKeyPairIndices(t *testing.T) {
	send := bytes.Repeat([]byte{0xAA}, KeySize)
	recv := bytes.Repeat([]byte{0xBB}, KeySize)

	kp := NewKeyPair(true, send, recv, 7, 9)
	if kp.LocalIndex() != 7 {
		t.Errorf("expected local index 7, got %d", kp.LocalIndex())
	}
	if kp.RemoteIndex() != 9 {
		t.Errorf("expected remote index 9, got %d", kp.RemoteIndex())
	}
	if !kp.Initiator {
		t.Error("expected initiator flag to be set")
	}
	if kp.Birth.IsZero() {
		t.Error("expected birth timestamp to be set")
	}
}

// TestKeyPairCopiesMaterial ensures the pair does not alias the caller's
// slices.
func TestKeyPairCopiesMaterial(t *testing.T) {
	send := bytes.Repeat([]byte{0x01}, KeySize)
	recv := bytes.Repeat([]byte{0x02}, KeySize)

	kp := NewKeyPair(false, send, recv, 1, 2)
	send[0] = 0xFF
	if kp.Send.Material[0] != 0x01 {
		t.Error("send key aliases caller slice")
	}
	if kp.Recv.Material[0] != 0x02 {
		t.Error("recv key material mismatch")
	}
}

// TestKeyPairZeroize checks the end-of-life invariant: key bytes are
// overwritten with zeros.
func TestKeyPairZeroize(t *testing.T) {
	send := bytes.Repeat([]byte{0x11}, KeySize)
	recv := bytes.Repeat([]byte{0x22}, KeySize)

	kp := NewKeyPair(false, send, recv, 1, 2)
	kp.Zeroize()

	var zero [KeySize]byte
	if kp.Send.Material != zero || kp.Recv.Material != zero {
		t.Error("expected key material to be zeroed")
	}
}

func TestKeyEqual(t *testing.T) {
	a := Key{Index: 3}
	b := Key{Index: 3}
	copy(a.Material[:], bytes.Repeat([]byte{0x33}, KeySize))
	copy(b.Material[:], bytes.Repeat([]byte{0x33}, KeySize))

	if !a.Equal(&b) {
		t.Error("expected keys to be equal")
	}
	b.Index = 4
	if a.Equal(&b) {
		t.Error("expected index mismatch to break equality")
	}
}
