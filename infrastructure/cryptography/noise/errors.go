package noise

import "errors"

var (
	// ErrHandshakeFailed covers authentication and parse failures on either
	// handshake leg. The triggering message is dropped; no state changes.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrUnknownInitiator means an initiation's sealed static key cannot be
	// opened against our static key, so it cannot be attributed to anyone.
	ErrUnknownInitiator = errors.New("initiation from unknown static key")

	ErrMissingPrivateKey   = errors.New("missing local private key")
	ErrMissingPresharedKey = errors.New("missing pre-shared key")
)
