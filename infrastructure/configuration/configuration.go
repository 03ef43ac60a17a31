package configuration

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/crypto/curve25519"

	"veiltun/infrastructure/cryptography/keys"
	"veiltun/infrastructure/settings"
)

// PeerEntry is one configured remote identity. Endpoint may be empty for a
// peer that is expected to reach out first.
type PeerEntry struct {
	PublicKey    string `json:"PublicKey"`
	PresharedKey string `json:"PresharedKey"`
	Endpoint     string `json:"Endpoint,omitempty"`
	Initiate     bool   `json:"Initiate,omitempty"`
}

// Configuration is the node's JSON configuration file. Keys are base64
// encoded; durations use Go duration strings.
type Configuration struct {
	PrivateKey        string                         `json:"PrivateKey"`
	ListenAddr        string                         `json:"ListenAddr"`
	RekeyInterval     settings.HumanReadableDuration `json:"RekeyInterval,omitempty"`
	KeepaliveInterval settings.HumanReadableDuration `json:"KeepaliveInterval,omitempty"`
	Peers             []PeerEntry                    `json:"Peers"`
}

// Read loads and validates a configuration file. Every error here is fatal
// to startup; a half-usable configuration is worse than none.
func Read(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	var cfg Configuration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks key material lengths and peer entries without touching
// the network.
func (c *Configuration) Validate() error {
	if _, _, err := c.Identity(); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("configuration: ListenAddr is required")
	}
	if len(c.Peers) == 0 {
		return fmt.Errorf("configuration: at least one peer is required")
	}
	for i := range c.Peers {
		if _, err := c.Peers[i].PublicKeyBytes(); err != nil {
			return fmt.Errorf("peer %d: %w", i, err)
		}
		if _, err := c.Peers[i].PresharedKeyBytes(); err != nil {
			return fmt.Errorf("peer %d: %w", i, err)
		}
		if c.Peers[i].Initiate && c.Peers[i].Endpoint == "" {
			return fmt.Errorf("peer %d: Initiate requires an Endpoint", i)
		}
	}
	return nil
}

// Identity decodes the private key and derives the matching public key.
func (c *Configuration) Identity() (priv, pub []byte, err error) {
	priv, err = decodeKey(c.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration: PrivateKey: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration: derive public key: %w", err)
	}
	return priv, pub, nil
}

// RekeyAfter returns the configured rekey interval, or the default.
func (c *Configuration) RekeyAfter() time.Duration {
	if c.RekeyInterval == 0 {
		return settings.RekeyAfterTime
	}
	return time.Duration(c.RekeyInterval)
}

// KeepaliveEvery returns the configured keepalive interval, or the default.
func (c *Configuration) KeepaliveEvery() time.Duration {
	if c.KeepaliveInterval == 0 {
		return settings.KeepaliveInterval
	}
	return time.Duration(c.KeepaliveInterval)
}

func (p *PeerEntry) PublicKeyBytes() ([keys.KeySize]byte, error) {
	raw, err := decodeKey(p.PublicKey)
	if err != nil {
		return [keys.KeySize]byte{}, fmt.Errorf("PublicKey: %w", err)
	}
	return [keys.KeySize]byte(raw), nil
}

func (p *PeerEntry) PresharedKeyBytes() ([keys.KeySize]byte, error) {
	raw, err := decodeKey(p.PresharedKey)
	if err != nil {
		return [keys.KeySize]byte{}, fmt.Errorf("PresharedKey: %w", err)
	}
	return [keys.KeySize]byte(raw), nil
}

// EndpointAddrPort resolves the peer's endpoint. Hostnames are allowed; the
// result is pinned until the peer roams.
func (p *PeerEntry) EndpointAddrPort() (netip.AddrPort, error) {
	if p.Endpoint == "" {
		return netip.AddrPort{}, nil
	}
	addr, err := net.ResolveUDPAddr("udp", p.Endpoint)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve endpoint %q: %w", p.Endpoint, err)
	}
	return netip.AddrPortFrom(addr.AddrPort().Addr().Unmap(), addr.AddrPort().Port()), nil
}

func decodeKey(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(raw) != keys.KeySize {
		return nil, fmt.Errorf("key is %d bytes, want %d", len(raw), keys.KeySize)
	}
	return raw, nil
}
