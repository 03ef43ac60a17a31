package protocol

import (
	"bytes"
	"testing"
)

// TestTypeOf checks classification of the four packet types and rejection of
// everything else.
func TestTypeOf(t *testing.T) {
	for _, typ := range []MessageType{MessageInitiation, MessageResponse, MessageCookie, MessageTransport} {
		got, err := TypeOf([]byte{byte(typ), 0, 0, 0})
		if err != nil {
			t.Fatalf("TypeOf(%d) returned error: %v", typ, err)
		}
		if got != typ {
			t.Errorf("TypeOf(%d) = %d", typ, got)
		}
	}

	if _, err := TypeOf([]byte{}); err == nil {
		t.Error("expected error for empty packet")
	}
	if _, err := TypeOf([]byte{9}); err == nil {
		t.Error("expected error for unknown type 9")
	}
}

func TestInitiationRoundTrip(t *testing.T) {
	m := &Initiation{Sender: 0xCAFE0001}
	for i := range m.Body {
		m.Body[i] = byte(i)
	}

	packet := m.Marshal()
	if len(packet) != InitiationSize {
		t.Fatalf("expected %d-byte initiation, got %d", InitiationSize, len(packet))
	}
	if packet[0] != byte(MessageInitiation) {
		t.Fatalf("expected type byte %d, got %d", MessageInitiation, packet[0])
	}

	parsed, err := ParseInitiation(packet)
	if err != nil {
		t.Fatalf("ParseInitiation: %v", err)
	}
	if parsed.Sender != m.Sender {
		t.Errorf("sender index mismatch: %#x vs %#x", parsed.Sender, m.Sender)
	}
	if parsed.Body != m.Body {
		t.Error("body mismatch after round trip")
	}
}

func TestResponseRoundTrip(t *testing.T) {
	m := &Response{Sender: 42, Receiver: 7}
	for i := range m.Body {
		m.Body[i] = byte(255 - i)
	}

	packet := m.Marshal()
	if len(packet) != ResponseSize {
		t.Fatalf("expected %d-byte response, got %d", ResponseSize, len(packet))
	}

	parsed, err := ParseResponse(packet)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if parsed.Sender != 42 || parsed.Receiver != 7 {
		t.Errorf("index mismatch: sender=%d receiver=%d", parsed.Sender, parsed.Receiver)
	}
	if parsed.Body != m.Body {
		t.Error("body mismatch after round trip")
	}
}

// TestParseRejectsWrongLength verifies that truncated and oversized handshake
// packets are both refused: handshake messages have exact sizes.
func TestParseRejectsWrongLength(t *testing.T) {
	if _, err := ParseInitiation(make([]byte, InitiationSize-1)); err == nil {
		t.Error("expected error for short initiation")
	}
	if _, err := ParseInitiation(make([]byte, InitiationSize+1)); err == nil {
		t.Error("expected error for long initiation")
	}
	if _, err := ParseResponse(make([]byte, ResponseSize-1)); err == nil {
		t.Error("expected error for short response")
	}
	if _, err := ParseTransport(make([]byte, TransportHeaderSize-1)); err == nil {
		t.Error("expected error for short transport packet")
	}
}

func TestTransportHeader(t *testing.T) {
	ciphertext := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	packet := make([]byte, TransportHeaderSize+len(ciphertext))
	AppendTransportHeader(packet, 0x01020304, 0x1122334455667788)
	copy(packet[TransportHeaderSize:], ciphertext)

	parsed, err := ParseTransport(packet)
	if err != nil {
		t.Fatalf("ParseTransport: %v", err)
	}
	if parsed.Receiver != 0x01020304 {
		t.Errorf("receiver mismatch: %#x", parsed.Receiver)
	}
	if parsed.Counter != 0x1122334455667788 {
		t.Errorf("counter mismatch: %#x", parsed.Counter)
	}
	if !bytes.Equal(parsed.Ciphertext, ciphertext) {
		t.Error("ciphertext mismatch")
	}
}
