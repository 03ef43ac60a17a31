package peer_server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"veiltun/application"
	"veiltun/infrastructure/cryptography/chacha20"
	"veiltun/infrastructure/cryptography/noise"
	"veiltun/infrastructure/peering"
	"veiltun/infrastructure/protocol"
	"veiltun/infrastructure/settings"
)

// PeerServer is the orchestrator: it drains timer events, inbound datagrams
// and locally originated plaintext, advances peer handshake state and moves
// encrypted traffic between the datagram transport and the tunnel device.
//
// Three bounded queues feed one event loop; each iteration consumes the
// highest-priority ready event (timers, then inbound, then outbound) so that
// protocol maintenance is never starved by traffic. Per-event failures are
// logged and isolated; the loop stops only with its context.
type PeerServer struct {
	logger *zap.Logger

	localPriv []byte
	localPub  []byte

	registry  *peering.Registry
	table     *peering.IndexTable
	transport application.DatagramTransport
	tun       application.TunDevice

	timerCh    chan TimerEvent
	inboundCh  chan application.Datagram
	outboundCh chan application.OutboundFrame

	timersMu sync.Mutex
	timers   map[*peering.Peer]*peerTimers

	rekeyAfter     time.Duration
	keepaliveEvery time.Duration
}

func NewPeerServer(
	logger *zap.Logger,
	localPriv, localPub []byte,
	registry *peering.Registry,
	table *peering.IndexTable,
	transport application.DatagramTransport,
	tun application.TunDevice,
) *PeerServer {
	return &PeerServer{
		logger:         logger,
		localPriv:      localPriv,
		localPub:       localPub,
		registry:       registry,
		table:          table,
		transport:      transport,
		tun:            tun,
		timerCh:        make(chan TimerEvent, settings.QueueCapacity),
		inboundCh:      make(chan application.Datagram, settings.QueueCapacity),
		outboundCh:     make(chan application.OutboundFrame, settings.QueueCapacity),
		timers:         make(map[*peering.Peer]*peerTimers),
		rekeyAfter:     settings.RekeyAfterTime,
		keepaliveEvery: settings.KeepaliveInterval,
	}
}

// SetIntervals overrides the rekey and keepalive durations. Primarily for
// tests; production uses the settings defaults.
func (s *PeerServer) SetIntervals(rekeyAfter, keepaliveEvery time.Duration) {
	s.rekeyAfter = rekeyAfter
	s.keepaliveEvery = keepaliveEvery
}

// Outbound is the queue for locally originated plaintext. Senders block when
// it is full.
func (s *PeerServer) Outbound() chan<- application.OutboundFrame {
	return s.outboundCh
}

// TriggerHandshake asks the loop to start a handshake toward peer, the same
// path a rekey timer takes.
func (s *PeerServer) TriggerHandshake(ctx context.Context, peer *peering.Peer) {
	s.emitTimer(ctx, TimerEvent{Kind: TimerRekey, Peer: peer})
}

// Run drives the event loop until ctx is cancelled or the transport fails.
func (s *PeerServer) Run(ctx context.Context) error {
	readErr := make(chan error, 1)
	go s.readTransport(ctx, readErr)
	defer s.stopTimers()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.dispatchReady(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case ev := <-s.timerCh:
			s.handleTimer(ctx, ev)
		case d := <-s.inboundCh:
			s.handleDatagram(ctx, d)
		case f := <-s.outboundCh:
			s.handleOutbound(ctx, f)
		}
	}
}

// dispatchReady consumes at most one already-queued event, highest priority
// first. Returns false when all queues are empty.
func (s *PeerServer) dispatchReady(ctx context.Context) bool {
	select {
	case ev := <-s.timerCh:
		s.handleTimer(ctx, ev)
		return true
	default:
	}
	select {
	case d := <-s.inboundCh:
		s.handleDatagram(ctx, d)
		return true
	default:
	}
	select {
	case f := <-s.outboundCh:
		s.handleOutbound(ctx, f)
		return true
	default:
	}
	return false
}

// readTransport pumps the datagram collaborator into the inbound queue.
func (s *PeerServer) readTransport(ctx context.Context, readErr chan<- error) {
	buf := make([]byte, settings.MaxSegmentSize)
	for {
		n, addr, err := s.transport.ReadFrom(buf)
		if err != nil {
			select {
			case readErr <- err:
			default:
			}
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case s.inboundCh <- application.Datagram{Addr: addr, Payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *PeerServer) handleTimer(ctx context.Context, ev TimerEvent) {
	s.logger.Debug("timer fired", zap.Stringer("kind", ev.Kind))
	switch ev.Kind {
	case TimerRekey:
		s.initiateHandshake(ctx, ev.Peer)
	case TimerKeepalive:
		s.sendKeepalive(ev.Peer)
	}
}

func (s *PeerServer) initiateHandshake(_ context.Context, peer *peering.Peer) {
	msg, err := peer.BeginHandshake(s.table, s.localPriv, s.localPub)
	if err != nil {
		if errors.Is(err, peering.ErrHandshakeInProgress) {
			s.logger.Debug("rekey skipped, handshake already in flight")
			return
		}
		s.logger.Warn("begin handshake failed", zap.Error(err))
		return
	}

	if err := s.sendToPeer(peer, msg.Marshal()); err != nil {
		s.logger.Warn("send initiation failed", zap.Error(err))
		return
	}
	s.logger.Info("sent handshake initiation", zap.Uint32("sender_index", msg.Sender))
}

func (s *PeerServer) sendKeepalive(peer *peering.Peer) {
	packet, err := peer.Seal(nil)
	if err != nil {
		// Session may be gone; keepalives stop mattering until the next
		// handshake completes.
		s.logger.Debug("keepalive skipped", zap.Error(err))
		return
	}
	if err := s.sendToPeer(peer, packet); err != nil {
		s.logger.Warn("send keepalive failed", zap.Error(err))
		return
	}
	peer.AddTxBytes(uint64(len(packet)))
	s.logger.Debug("sent keepalive")
}

func (s *PeerServer) handleDatagram(ctx context.Context, d application.Datagram) {
	msgType, err := protocol.TypeOf(d.Payload)
	if err != nil {
		s.logger.Debug("dropping unclassifiable packet", zap.Error(err), zap.String("from", d.Addr.String()))
		return
	}

	switch msgType {
	case protocol.MessageInitiation:
		s.handleInitiation(ctx, d)
	case protocol.MessageResponse:
		s.handleResponse(ctx, d)
	case protocol.MessageCookie:
		// Cookie replies belong to the DoS-mitigation layer, which this node
		// does not implement. Classified and dropped.
		s.logger.Debug("ignoring cookie reply", zap.String("from", d.Addr.String()))
	case protocol.MessageTransport:
		s.handleTransport(d)
	}
}

func (s *PeerServer) handleInitiation(ctx context.Context, d application.Datagram) {
	msg, err := protocol.ParseInitiation(d.Payload)
	if err != nil {
		s.logger.Debug("dropping malformed initiation", zap.Error(err))
		return
	}

	static, err := noise.PeekInitiationPeer(s.localPriv, s.localPub, msg)
	if err != nil {
		s.logger.Debug("dropping unauthenticated initiation", zap.Error(err))
		return
	}
	peer, err := s.registry.ByPublicKey(static)
	if err != nil {
		s.logger.Debug("dropping initiation from unconfigured peer", zap.Error(err))
		return
	}

	resp, displaced, err := peer.RespondHandshake(s.table, s.localPriv, s.localPub, msg)
	if err != nil {
		s.logger.Debug("responding to initiation failed", zap.Error(err))
		return
	}
	s.reapSession(displaced)

	// The response goes back to the datagram's source, but the peer's stored
	// endpoint is only moved by authenticated transport traffic. An attacker
	// replaying a captured initiation gets an answer it cannot decrypt and
	// nothing else.
	if err := s.transport.WriteTo(resp.Marshal(), d.Addr); err != nil {
		s.logger.Warn("send handshake response failed", zap.Error(err))
		return
	}

	s.scheduleSessionTimers(ctx, peer, false)
	s.logger.Info("sent handshake response",
		zap.Uint32("local_index", resp.Sender),
		zap.Uint32("remote_index", resp.Receiver))
}

func (s *PeerServer) handleResponse(ctx context.Context, d application.Datagram) {
	msg, err := protocol.ParseResponse(d.Payload)
	if err != nil {
		s.logger.Debug("dropping malformed handshake response", zap.Error(err))
		return
	}

	peer, err := s.table.Lookup(msg.Receiver)
	if err != nil {
		s.logger.Debug("dropping handshake response", zap.Error(err))
		return
	}

	evicted, err := peer.CompleteHandshake(msg)
	if err != nil {
		s.logger.Debug("handshake completion failed", zap.Error(err))
		return
	}
	s.reapSession(evicted)
	peer.SetEndpoint(d.Addr)

	s.scheduleSessionTimers(ctx, peer, true)
	s.logger.Info("completed handshake as initiator",
		zap.Uint32("local_index", msg.Receiver),
		zap.Uint32("remote_index", msg.Sender))

	// The responder keeps its fresh session staged until we prove liveness;
	// an immediate keepalive promotes it without waiting for real traffic.
	s.sendKeepalive(peer)
}

func (s *PeerServer) handleTransport(d application.Datagram) {
	msg, err := protocol.ParseTransport(d.Payload)
	if err != nil {
		s.logger.Debug("dropping malformed transport packet", zap.Error(err))
		return
	}

	peer, err := s.table.Lookup(msg.Receiver)
	if err != nil {
		s.logger.Debug("dropping transport packet", zap.Error(err))
		return
	}

	plaintext, evicted, err := peer.Open(msg.Counter, msg.Ciphertext)
	if err != nil {
		s.logger.Debug("transport decrypt failed against all sessions",
			zap.Error(err), zap.Uint32("receiver_index", msg.Receiver))
		return
	}
	s.reapSession(evicted)

	peer.AddRxBytes(uint64(len(d.Payload)))
	peer.SetEndpoint(d.Addr)

	if len(plaintext) == 0 {
		s.logger.Debug("received keepalive", zap.Uint32("receiver_index", msg.Receiver))
		return
	}
	if _, err := s.tun.Write(plaintext); err != nil {
		s.logger.Warn("tunnel write failed", zap.Error(err))
	}
}

func (s *PeerServer) handleOutbound(ctx context.Context, f application.OutboundFrame) {
	peer, err := s.registry.ByPublicKey(f.To[:])
	if err != nil {
		s.logger.Debug("dropping outbound frame for unknown peer", zap.Error(err))
		return
	}

	packet, err := peer.Seal(f.Payload)
	if err != nil {
		if errors.Is(err, peering.ErrNoActiveSession) {
			// No session yet: drop the frame but get a handshake going so
			// later traffic has one.
			s.logger.Debug("dropping outbound frame, no session; initiating handshake")
			s.initiateHandshake(ctx, peer)
			return
		}
		s.logger.Warn("outbound encrypt failed", zap.Error(err))
		return
	}

	if err := s.sendToPeer(peer, packet); err != nil {
		s.logger.Warn("send transport packet failed", zap.Error(err))
		return
	}
	peer.AddTxBytes(uint64(len(packet)))
}

// reapSession destroys a session evicted by rotation: its index leaves the
// table and its keys are zeroed.
func (s *PeerServer) reapSession(session *chacha20.Session) {
	if session == nil {
		return
	}
	s.table.Remove(session.LocalIndex())
	session.Zeroize()
}

func (s *PeerServer) sendToPeer(peer *peering.Peer, packet []byte) error {
	endpoint, err := peer.Endpoint()
	if err != nil {
		return err
	}
	return s.transport.WriteTo(packet, endpoint)
}
