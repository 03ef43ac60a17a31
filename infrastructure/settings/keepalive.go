package settings

import "time"

// KeepaliveInterval is the cadence of liveness packets per peer. Keepalives
// are sent unconditionally each interval once a session is confirmed; they
// are zero-length transport packets, so the cost is one AEAD tag per tick.
const KeepaliveInterval = 10 * time.Second
