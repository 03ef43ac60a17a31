package settings

// ProtocolName selects the handshake algorithm family. Both sides must agree.
const ProtocolName = "Noise_IKpsk2_25519_ChaChaPoly_BLAKE2s"

// Prologue is mixed into every handshake transcript. Nodes with different
// prologues cannot complete a handshake with each other.
const Prologue = "veiltun v1"
