package chacha20

import "errors"

var (
	// ErrDecryptFailed means the ciphertext did not authenticate under this
	// session's receive key. The caller may retry against the past session.
	ErrDecryptFailed = errors.New("transport decrypt failed")

	// ErrNonUniqueNonce means the counter was already seen inside the replay
	// window. The packet is dropped before any decryption state changes.
	ErrNonUniqueNonce = errors.New("nonce was not unique")

	// ErrNonceOverflow means the send counter is exhausted; only a rekey can
	// continue the session.
	ErrNonceOverflow = errors.New("nonce overflow: session must be rekeyed")
)
