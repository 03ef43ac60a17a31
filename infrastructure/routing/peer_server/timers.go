package peer_server

import (
	"context"
	"time"

	"veiltun/infrastructure/peering"
)

// TimerKind tags the two timer classes driving protocol maintenance.
type TimerKind int

const (
	// TimerRekey fires once per session lifetime to start a fresh handshake.
	TimerRekey TimerKind = iota
	// TimerKeepalive fires every keepalive interval.
	TimerKeepalive
)

func (k TimerKind) String() string {
	if k == TimerRekey {
		return "rekey"
	}
	return "keepalive"
}

// TimerEvent is produced by the timer subsystem and consumed by the
// orchestrator loop ahead of all other work.
type TimerEvent struct {
	Kind TimerKind
	Peer *peering.Peer
}

// peerTimers is the per-peer timer state. The rekey timer is single-shot and
// re-armed on every handshake completion; the keepalive ticker is started
// once and runs until the server's context is cancelled.
type peerTimers struct {
	rekey         *time.Timer
	keepaliveStop context.CancelFunc
}

// scheduleSessionTimers is called after a handshake completes. Only the
// initiator side arms the rekey timer: rotation responsibility stays on one
// side, which avoids both peers starting simultaneous handshakes every
// interval.
func (s *PeerServer) scheduleSessionTimers(ctx context.Context, peer *peering.Peer, initiator bool) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	pt := s.timers[peer]
	if pt == nil {
		pt = &peerTimers{}
		s.timers[peer] = pt
	}

	if initiator {
		if pt.rekey != nil {
			pt.rekey.Reset(s.rekeyAfter)
		} else {
			pt.rekey = time.AfterFunc(s.rekeyAfter, func() {
				s.emitTimer(ctx, TimerEvent{Kind: TimerRekey, Peer: peer})
			})
		}
	}

	if pt.keepaliveStop == nil {
		keepaliveCtx, cancel := context.WithCancel(ctx)
		pt.keepaliveStop = cancel
		go s.keepaliveLoop(keepaliveCtx, peer)
	}
}

func (s *PeerServer) keepaliveLoop(ctx context.Context, peer *peering.Peer) {
	ticker := time.NewTicker(s.keepaliveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emitTimer(ctx, TimerEvent{Kind: TimerKeepalive, Peer: peer})
		}
	}
}

// emitTimer delivers an event to the orchestrator. The queue is bounded;
// senders block rather than drop, giving backpressure against a stalled
// loop.
func (s *PeerServer) emitTimer(ctx context.Context, ev TimerEvent) {
	select {
	case s.timerCh <- ev:
	case <-ctx.Done():
	}
}

// stopTimers tears down all per-peer timers on shutdown.
func (s *PeerServer) stopTimers() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	for _, pt := range s.timers {
		if pt.rekey != nil {
			pt.rekey.Stop()
		}
		if pt.keepaliveStop != nil {
			pt.keepaliveStop()
		}
	}
	s.timers = make(map[*peering.Peer]*peerTimers)
}
