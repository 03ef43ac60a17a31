package presentation

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"veiltun/application"
	"veiltun/infrastructure/configuration"
	"veiltun/infrastructure/cryptography/keys"
	"veiltun/infrastructure/listeners/udp_listener"
	"veiltun/infrastructure/peering"
	"veiltun/infrastructure/routing/peer_server"
	"veiltun/infrastructure/settings"
)

// NodeRunner assembles one tunnel node from its configuration and drives it
// until the context ends or a collaborator fails.
type NodeRunner struct {
	logger *zap.Logger
	cfg    *configuration.Configuration
	tun    application.TunDevice
}

func NewNodeRunner(logger *zap.Logger, cfg *configuration.Configuration, tun application.TunDevice) *NodeRunner {
	return &NodeRunner{
		logger: logger,
		cfg:    cfg,
		tun:    tun,
	}
}

func (r *NodeRunner) Run(ctx context.Context) error {
	priv, pub, err := r.cfg.Identity()
	if err != nil {
		return err
	}

	transport, err := udp_listener.NewUdpTransport(r.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	registry := peering.NewRegistry()
	table := peering.NewIndexTable()
	peers, initiate, defaultTo, err := buildPeers(r.cfg)
	if err != nil {
		_ = transport.Close()
		return err
	}
	for _, p := range peers {
		registry.Add(p)
	}

	server := peer_server.NewPeerServer(r.logger, priv, pub, registry, table, transport, r.tun)
	server.SetIntervals(r.cfg.RekeyAfter(), r.cfg.KeepaliveEvery())

	r.logger.Info("node up",
		zap.String("listen_addr", transport.LocalAddrPort().String()),
		zap.Int("peers", len(peers)))

	// Fail-fast: the first goroutine returning an error cancels the rest.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		defer cancel()
		return server.Run(runCtx)
	})
	eg.Go(func() error {
		defer cancel()
		r.pumpTun(runCtx, server, defaultTo)
		return nil
	})
	eg.Go(func() error {
		<-runCtx.Done()
		return transport.Close()
	})

	for _, p := range initiate {
		server.TriggerHandshake(runCtx, p)
	}

	return eg.Wait()
}

// pumpTun feeds plaintext read from the tunnel device into the outbound
// queue. Frames are addressed to the node's default destination peer; this
// node is a point-to-point device, not an IP router.
func (r *NodeRunner) pumpTun(ctx context.Context, server *peer_server.PeerServer, to [keys.KeySize]byte) {
	buf := make([]byte, settings.MaxSegmentSize)
	for {
		n, err := r.tun.Read(buf)
		if err != nil {
			r.logger.Debug("tunnel read ended", zap.Error(err))
			return
		}
		if n == 0 {
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case server.Outbound() <- application.OutboundFrame{To: to, Payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}

// buildPeers turns configuration entries into registered peers. The default
// destination is the first peer marked Initiate, or the first peer.
func buildPeers(cfg *configuration.Configuration) (all, initiate []*peering.Peer, defaultTo [keys.KeySize]byte, err error) {
	for i := range cfg.Peers {
		entry := &cfg.Peers[i]

		public, keyErr := entry.PublicKeyBytes()
		if keyErr != nil {
			return nil, nil, defaultTo, fmt.Errorf("peer %d: %w", i, keyErr)
		}
		psk, keyErr := entry.PresharedKeyBytes()
		if keyErr != nil {
			return nil, nil, defaultTo, fmt.Errorf("peer %d: %w", i, keyErr)
		}
		endpoint, endpointErr := entry.EndpointAddrPort()
		if endpointErr != nil {
			return nil, nil, defaultTo, fmt.Errorf("peer %d: %w", i, endpointErr)
		}

		peer := peering.NewPeer(public, psk, endpoint)
		all = append(all, peer)
		if entry.Initiate {
			initiate = append(initiate, peer)
		}
	}

	if len(all) == 0 {
		return nil, nil, defaultTo, fmt.Errorf("no peers configured")
	}
	defaultTo = all[0].PublicKey()
	if len(initiate) > 0 {
		defaultTo = initiate[0].PublicKey()
	}
	return all, initiate, defaultTo, nil
}
