package noise

import (
	"crypto/rand"
	"fmt"
	"time"

	noiselib "github.com/flynn/noise"

	"veiltun/infrastructure/cryptography/keys"
	"veiltun/infrastructure/cryptography/mem"
	"veiltun/infrastructure/protocol"
	"veiltun/infrastructure/settings"
)

// Noise_IKpsk2_25519_ChaChaPoly_BLAKE2s: the initiator knows the responder's
// static key up front, identities are hidden inside message 1, and the
// per-peer pre-shared key is mixed at placement 2.
var cipherSuite = noiselib.NewCipherSuite(noiselib.DH25519, noiselib.CipherChaChaPoly, noiselib.HashBLAKE2s)

const pskPlacement = 2

// Handshake drives one handshake attempt for one peer. It lives in a peer's
// next-session slot from Begin until completion or replacement, and is not
// safe for concurrent use; the owning peer's lock serializes access.
type Handshake struct {
	state       *noiselib.HandshakeState
	localIndex  uint32
	remoteIndex uint32
	initiator   bool
	created     time.Time
}

func newConfig(localPriv, localPub, psk []byte, initiator bool) (noiselib.Config, error) {
	if len(localPriv) != keys.KeySize || len(localPub) != keys.KeySize {
		return noiselib.Config{}, ErrMissingPrivateKey
	}
	if len(psk) != keys.KeySize {
		return noiselib.Config{}, ErrMissingPresharedKey
	}
	return noiselib.Config{
		CipherSuite:           cipherSuite,
		Random:                rand.Reader,
		Pattern:               noiselib.HandshakeIK,
		Initiator:             initiator,
		Prologue:              []byte(settings.Prologue),
		PresharedKey:          psk,
		PresharedKeyPlacement: pskPlacement,
		StaticKeypair: noiselib.DHKey{
			Private: localPriv,
			Public:  localPub,
		},
	}, nil
}

// NewInitiator prepares the initiator leg toward the peer owning peerPub.
// localIndex is the freshly allocated session index for this attempt.
func NewInitiator(localPriv, localPub, peerPub, psk []byte, localIndex uint32) (*Handshake, error) {
	cfg, err := newConfig(localPriv, localPub, psk, true)
	if err != nil {
		return nil, err
	}
	cfg.PeerStatic = peerPub

	state, err := noiselib.NewHandshakeState(cfg)
	if err != nil {
		return nil, fmt.Errorf("initiator handshake state: %w", err)
	}
	return &Handshake{
		state:      state,
		localIndex: localIndex,
		initiator:  true,
		created:    time.Now(),
	}, nil
}

// NewResponder prepares the responder leg. The initiator's identity is
// already known from PeekInitiationPeer, which selected the psk.
func NewResponder(localPriv, localPub, psk []byte, localIndex uint32) (*Handshake, error) {
	cfg, err := newConfig(localPriv, localPub, psk, false)
	if err != nil {
		return nil, err
	}

	state, err := noiselib.NewHandshakeState(cfg)
	if err != nil {
		return nil, fmt.Errorf("responder handshake state: %w", err)
	}
	return &Handshake{
		state:      state,
		localIndex: localIndex,
		created:    time.Now(),
	}, nil
}

func (h *Handshake) LocalIndex() uint32  { return h.localIndex }
func (h *Handshake) RemoteIndex() uint32 { return h.remoteIndex }
func (h *Handshake) Initiator() bool     { return h.initiator }

// Expired reports whether this attempt has outlived the handshake window and
// may be replaced by a fresh one.
func (h *Handshake) Expired(now time.Time) bool {
	return now.Sub(h.created) >= settings.HandshakeAttemptTime
}

// WriteInitiation produces message 1 framed for the wire. Initiator only.
func (h *Handshake) WriteInitiation() (*protocol.Initiation, error) {
	if !h.initiator {
		return nil, fmt.Errorf("%w: responder cannot write initiation", ErrHandshakeFailed)
	}
	body, _, _, err := h.state.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: write initiation: %v", ErrHandshakeFailed, err)
	}
	if len(body) != protocol.InitiationBodySize {
		return nil, fmt.Errorf("%w: unexpected initiation body length %d", ErrHandshakeFailed, len(body))
	}

	msg := &protocol.Initiation{Sender: h.localIndex}
	copy(msg.Body[:], body)
	return msg, nil
}

// ReadInitiation consumes message 1 on the responder side. The authenticated
// payload must be empty.
func (h *Handshake) ReadInitiation(msg *protocol.Initiation) error {
	payload, _, _, err := h.state.ReadMessage(nil, msg.Body[:])
	if err != nil {
		return fmt.Errorf("%w: read initiation: %v", ErrHandshakeFailed, err)
	}
	if len(payload) != 0 {
		return fmt.Errorf("%w: initiation carried %d payload bytes", ErrHandshakeFailed, len(payload))
	}
	h.remoteIndex = msg.Sender
	return nil
}

// WriteResponse produces message 2 and finalizes the responder's key pair.
// IK completes for the responder here: both cipher states are available as
// soon as the response is written.
func (h *Handshake) WriteResponse() (*protocol.Response, *keys.KeyPair, error) {
	body, csInitToResp, csRespToInit, err := h.state.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: write response: %v", ErrHandshakeFailed, err)
	}
	if csInitToResp == nil || csRespToInit == nil {
		return nil, nil, fmt.Errorf("%w: handshake incomplete after response", ErrHandshakeFailed)
	}
	if len(body) != protocol.ResponseBodySize {
		return nil, nil, fmt.Errorf("%w: unexpected response body length %d", ErrHandshakeFailed, len(body))
	}

	sendKey := csRespToInit.UnsafeKey()
	recvKey := csInitToResp.UnsafeKey()
	pair := keys.NewKeyPair(false, sendKey[:], recvKey[:], h.localIndex, h.remoteIndex)
	mem.ZeroBytes(sendKey[:])
	mem.ZeroBytes(recvKey[:])

	msg := &protocol.Response{Sender: h.localIndex, Receiver: h.remoteIndex}
	copy(msg.Body[:], body)
	return msg, pair, nil
}

// ReadResponse consumes message 2 on the initiator side and finalizes the key
// pair. The authenticated payload must be empty.
func (h *Handshake) ReadResponse(msg *protocol.Response) (*keys.KeyPair, error) {
	payload, csInitToResp, csRespToInit, err := h.state.ReadMessage(nil, msg.Body[:])
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHandshakeFailed, err)
	}
	if csInitToResp == nil || csRespToInit == nil {
		return nil, fmt.Errorf("%w: handshake incomplete after response", ErrHandshakeFailed)
	}
	if len(payload) != 0 {
		return nil, fmt.Errorf("%w: response carried %d payload bytes", ErrHandshakeFailed, len(payload))
	}
	h.remoteIndex = msg.Sender

	sendKey := csInitToResp.UnsafeKey()
	recvKey := csRespToInit.UnsafeKey()
	pair := keys.NewKeyPair(true, sendKey[:], recvKey[:], h.localIndex, h.remoteIndex)
	mem.ZeroBytes(sendKey[:])
	mem.ZeroBytes(recvKey[:])
	return pair, nil
}

// PeekInitiationPeer recovers the initiator's static public key from message
// 1 without committing any state. The pre-shared key is not mixed until
// message 2 under psk2 placement, so a throwaway zero-psk responder state can
// open the sealed static and identify which peer (and which psk) this
// initiation belongs to.
func PeekInitiationPeer(localPriv, localPub []byte, msg *protocol.Initiation) ([]byte, error) {
	var zeroPSK [keys.KeySize]byte
	cfg, err := newConfig(localPriv, localPub, zeroPSK[:], false)
	if err != nil {
		return nil, err
	}

	state, err := noiselib.NewHandshakeState(cfg)
	if err != nil {
		return nil, fmt.Errorf("peek handshake state: %w", err)
	}
	if _, _, _, err := state.ReadMessage(nil, msg.Body[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownInitiator, err)
	}

	static := state.PeerStatic()
	if len(static) != keys.KeySize {
		return nil, fmt.Errorf("%w: no static key in initiation", ErrUnknownInitiator)
	}
	return append([]byte(nil), static...), nil
}
