package settings

import "time"

// RekeyAfterTime is how long a confirmed session stays in use before the
// initiator starts a fresh handshake to rotate keys. Re-armed on every
// successful handshake completion.
const RekeyAfterTime = 120 * time.Second

// HandshakeAttemptTime bounds a single in-flight handshake attempt. A pending
// next-session slot older than this is treated as lost and may be replaced by
// a new attempt.
const HandshakeAttemptTime = 90 * time.Second
