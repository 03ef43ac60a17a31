package presentation

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"veiltun/infrastructure/configuration"
	"veiltun/infrastructure/cryptography/keys"
)

func encodedKey(fill byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{fill}, keys.KeySize))
}

func TestStdioTunReadStripsNewline(t *testing.T) {
	tun := NewStdioTun(strings.NewReader("hello\r\nworld\n"), io.Discard)

	buf := make([]byte, 64)
	n, err := tun.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := string(buf[:n]); got != "hello" {
		t.Errorf("first line %q, want %q", got, "hello")
	}

	n, err = tun.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := string(buf[:n]); got != "world" {
		t.Errorf("second line %q, want %q", got, "world")
	}

	if _, err := tun.Read(buf); err == nil {
		t.Fatal("expected EOF after input drained")
	}
}

func TestStdioTunWriteAppendsNewline(t *testing.T) {
	var out bytes.Buffer
	tun := NewStdioTun(strings.NewReader(""), &out)

	n, err := tun.Write([]byte("payload"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("payload") {
		t.Errorf("Write returned %d, want %d", n, len("payload"))
	}
	if got := out.String(); got != "payload\n" {
		t.Errorf("output %q, want %q", got, "payload\n")
	}
}

func TestBuildPeersDefaultDestination(t *testing.T) {
	cfg := &configuration.Configuration{
		PrivateKey: encodedKey(0x01),
		ListenAddr: ":0",
		Peers: []configuration.PeerEntry{
			{PublicKey: encodedKey(0x10), PresharedKey: encodedKey(0x11)},
			{PublicKey: encodedKey(0x20), PresharedKey: encodedKey(0x21), Endpoint: "127.0.0.1:7000", Initiate: true},
		},
	}

	all, initiate, defaultTo, err := buildPeers(cfg)
	if err != nil {
		t.Fatalf("buildPeers: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("built %d peers, want 2", len(all))
	}
	if len(initiate) != 1 {
		t.Fatalf("%d initiate peers, want 1", len(initiate))
	}

	// The Initiate-marked peer wins over list order.
	want, _ := cfg.Peers[1].PublicKeyBytes()
	if defaultTo != want {
		t.Error("default destination is not the Initiate peer")
	}

	endpoint, err := initiate[0].Endpoint()
	if err != nil {
		t.Fatalf("Endpoint: %v", err)
	}
	if endpoint.Port() != 7000 {
		t.Errorf("endpoint port %d, want 7000", endpoint.Port())
	}
}

func TestBuildPeersRejectsBadKeys(t *testing.T) {
	cfg := &configuration.Configuration{
		Peers: []configuration.PeerEntry{
			{PublicKey: "broken", PresharedKey: encodedKey(0x11)},
		},
	}
	if _, _, _, err := buildPeers(cfg); err == nil {
		t.Fatal("expected error for undecodable public key")
	}
}
