package noise

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"golang.org/x/crypto/curve25519"

	"veiltun/infrastructure/cryptography/keys"
)

type testIdentity struct {
	priv, pub []byte
}

func newIdentity(t *testing.T) testIdentity {
	t.Helper()
	priv := make([]byte, keys.KeySize)
	if _, err := rand.Read(priv); err != nil {
		t.Fatalf("rand: %v", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	return testIdentity{priv: priv, pub: pub}
}

func testPSK() []byte {
	return bytes.Repeat([]byte{0x5A}, keys.KeySize)
}

// runHandshake performs a full IK exchange between a fresh initiator and
// responder and returns both finalized key pairs.
func runHandshake(t *testing.T, initIdx, respIdx uint32) (*keys.KeyPair, *keys.KeyPair) {
	t.Helper()

	alice := newIdentity(t)
	bob := newIdentity(t)
	psk := testPSK()

	init, err := NewInitiator(alice.priv, alice.pub, bob.pub, psk, initIdx)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	initMsg, err := init.WriteInitiation()
	if err != nil {
		t.Fatalf("WriteInitiation: %v", err)
	}

	// Responder identifies the initiator before committing a handshake.
	static, err := PeekInitiationPeer(bob.priv, bob.pub, initMsg)
	if err != nil {
		t.Fatalf("PeekInitiationPeer: %v", err)
	}
	if !bytes.Equal(static, alice.pub) {
		t.Fatal("peek returned wrong static key")
	}

	resp, err := NewResponder(bob.priv, bob.pub, psk, respIdx)
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	if err := resp.ReadInitiation(initMsg); err != nil {
		t.Fatalf("ReadInitiation: %v", err)
	}
	respMsg, respPair, err := resp.WriteResponse()
	if err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	initPair, err := init.ReadResponse(respMsg)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	return initPair, respPair
}

// TestKeyAgreement verifies the round-trip property: the initiator's send key
// equals the responder's receive key and vice versa.
func TestKeyAgreement(t *testing.T) {
	initPair, respPair := runHandshake(t, 11, 22)

	if initPair.Send.Material != respPair.Recv.Material {
		t.Error("initiator send key != responder recv key")
	}
	if initPair.Recv.Material != respPair.Send.Material {
		t.Error("initiator recv key != responder send key")
	}
	if !initPair.Initiator || respPair.Initiator {
		t.Error("initiator flags wrong")
	}
}

// TestIndexExchange checks that each side's key pair carries its own index on
// the receive key and the peer's index on the send key.
func TestIndexExchange(t *testing.T) {
	initPair, respPair := runHandshake(t, 11, 22)

	if initPair.LocalIndex() != 11 || initPair.RemoteIndex() != 22 {
		t.Errorf("initiator indices: local=%d remote=%d", initPair.LocalIndex(), initPair.RemoteIndex())
	}
	if respPair.LocalIndex() != 22 || respPair.RemoteIndex() != 11 {
		t.Errorf("responder indices: local=%d remote=%d", respPair.LocalIndex(), respPair.RemoteIndex())
	}
}

// TestPSKMismatchFailsAtResponse checks that a wrong pre-shared key breaks
// the handshake at message 2, where psk2 is mixed.
func TestPSKMismatchFailsAtResponse(t *testing.T) {
	alice := newIdentity(t)
	bob := newIdentity(t)

	init, err := NewInitiator(alice.priv, alice.pub, bob.pub, testPSK(), 1)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	initMsg, err := init.WriteInitiation()
	if err != nil {
		t.Fatalf("WriteInitiation: %v", err)
	}

	wrongPSK := bytes.Repeat([]byte{0xEE}, keys.KeySize)
	resp, err := NewResponder(bob.priv, bob.pub, wrongPSK, 2)
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	// Message 1 is psk-independent and still reads fine.
	if err := resp.ReadInitiation(initMsg); err != nil {
		t.Fatalf("ReadInitiation: %v", err)
	}
	respMsg, _, err := resp.WriteResponse()
	if err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	if _, err := init.ReadResponse(respMsg); !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed with mismatched psk, got %v", err)
	}
}

// TestTamperedInitiationRejected checks authentication of message 1.
func TestTamperedInitiationRejected(t *testing.T) {
	alice := newIdentity(t)
	bob := newIdentity(t)

	init, err := NewInitiator(alice.priv, alice.pub, bob.pub, testPSK(), 1)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	initMsg, err := init.WriteInitiation()
	if err != nil {
		t.Fatalf("WriteInitiation: %v", err)
	}
	initMsg.Body[40] ^= 0x01

	resp, err := NewResponder(bob.priv, bob.pub, testPSK(), 2)
	if err != nil {
		t.Fatalf("NewResponder: %v", err)
	}
	if err := resp.ReadInitiation(initMsg); !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed for tampered initiation, got %v", err)
	}
}

// TestWrongResponderKeyRejected checks that an initiation addressed to a
// different static key cannot be read.
func TestWrongResponderKeyRejected(t *testing.T) {
	alice := newIdentity(t)
	bob := newIdentity(t)
	mallory := newIdentity(t)

	init, err := NewInitiator(alice.priv, alice.pub, bob.pub, testPSK(), 1)
	if err != nil {
		t.Fatalf("NewInitiator: %v", err)
	}
	initMsg, err := init.WriteInitiation()
	if err != nil {
		t.Fatalf("WriteInitiation: %v", err)
	}

	if _, err := PeekInitiationPeer(mallory.priv, mallory.pub, initMsg); !errors.Is(err, ErrUnknownInitiator) {
		t.Fatalf("expected ErrUnknownInitiator for wrong responder, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	id := newIdentity(t)

	if _, err := NewInitiator(nil, id.pub, id.pub, testPSK(), 1); !errors.Is(err, ErrMissingPrivateKey) {
		t.Errorf("expected ErrMissingPrivateKey, got %v", err)
	}
	if _, err := NewInitiator(id.priv, id.pub, id.pub, nil, 1); !errors.Is(err, ErrMissingPresharedKey) {
		t.Errorf("expected ErrMissingPresharedKey, got %v", err)
	}
	if _, err := NewResponder(id.priv, id.pub, []byte("short"), 1); !errors.Is(err, ErrMissingPresharedKey) {
		t.Errorf("expected ErrMissingPresharedKey, got %v", err)
	}
}
