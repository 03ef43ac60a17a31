package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MessageType is the first byte of every datagram and the sole dispatch key.
type MessageType byte

const (
	MessageInitiation MessageType = 1
	MessageResponse   MessageType = 2
	MessageCookie     MessageType = 3
	MessageTransport  MessageType = 4
)

// Wire layout, offsets from datagram start. All integers little-endian,
// bytes 1..3 after the type are reserved and zero.
//
//	initiation: type(1) reserved(3) sender(4) noise body(96)      = 104
//	response:   type(1) reserved(3) sender(4) receiver(4) body(48) = 60
//	transport:  type(1) reserved(3) receiver(4) counter(8) ciphertext
const (
	senderOffset = 4
	// The response carries both indices; a transport packet only the
	// receiver's, which therefore sits at the sender offset.
	receiverOffset          = 8
	transportReceiverOffset = 4
	counterOffset           = 8

	// InitiationBodySize is the Noise IKpsk2 message-1 length:
	// ephemeral(32) + sealed static(48) + sealed empty payload(16).
	InitiationBodySize = 96
	initiationBodyOff  = 8
	InitiationSize     = initiationBodyOff + InitiationBodySize

	// ResponseBodySize is the Noise IKpsk2 message-2 length:
	// ephemeral(32) + sealed empty payload(16).
	ResponseBodySize = 48
	responseBodyOff  = 12
	ResponseSize     = responseBodyOff + ResponseBodySize

	// TransportHeaderSize precedes the ciphertext of a data packet.
	TransportHeaderSize = 16
)

var (
	ErrPacketTooShort  = errors.New("packet too short")
	ErrUnknownType     = errors.New("unknown packet type")
	ErrTrailingGarbage = errors.New("unexpected packet length")
)

// TypeOf classifies a raw datagram without parsing it.
func TypeOf(packet []byte) (MessageType, error) {
	if len(packet) == 0 {
		return 0, ErrPacketTooShort
	}
	t := MessageType(packet[0])
	switch t {
	case MessageInitiation, MessageResponse, MessageCookie, MessageTransport:
		return t, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownType, packet[0])
}

// Initiation is the first handshake leg.
type Initiation struct {
	Sender uint32
	Body   [InitiationBodySize]byte
}

func (m *Initiation) Marshal() []byte {
	packet := make([]byte, InitiationSize)
	packet[0] = byte(MessageInitiation)
	binary.LittleEndian.PutUint32(packet[senderOffset:], m.Sender)
	copy(packet[initiationBodyOff:], m.Body[:])
	return packet
}

func ParseInitiation(packet []byte) (*Initiation, error) {
	if len(packet) < InitiationSize {
		return nil, fmt.Errorf("initiation: %w: %d bytes", ErrPacketTooShort, len(packet))
	}
	if len(packet) > InitiationSize {
		return nil, fmt.Errorf("initiation: %w: %d bytes", ErrTrailingGarbage, len(packet))
	}
	m := &Initiation{Sender: binary.LittleEndian.Uint32(packet[senderOffset:])}
	copy(m.Body[:], packet[initiationBodyOff:])
	return m, nil
}

// Response is the second handshake leg. Receiver echoes the initiator's
// sender index so the initiator can locate its pending session.
type Response struct {
	Sender   uint32
	Receiver uint32
	Body     [ResponseBodySize]byte
}

func (m *Response) Marshal() []byte {
	packet := make([]byte, ResponseSize)
	packet[0] = byte(MessageResponse)
	binary.LittleEndian.PutUint32(packet[senderOffset:], m.Sender)
	binary.LittleEndian.PutUint32(packet[receiverOffset:], m.Receiver)
	copy(packet[responseBodyOff:], m.Body[:])
	return packet
}

func ParseResponse(packet []byte) (*Response, error) {
	if len(packet) < ResponseSize {
		return nil, fmt.Errorf("response: %w: %d bytes", ErrPacketTooShort, len(packet))
	}
	if len(packet) > ResponseSize {
		return nil, fmt.Errorf("response: %w: %d bytes", ErrTrailingGarbage, len(packet))
	}
	m := &Response{
		Sender:   binary.LittleEndian.Uint32(packet[senderOffset:]),
		Receiver: binary.LittleEndian.Uint32(packet[receiverOffset:]),
	}
	copy(m.Body[:], packet[responseBodyOff:])
	return m, nil
}

// Transport is an encrypted data packet. Ciphertext aliases the parsed
// packet; callers must not retain it past the datagram's lifetime.
type Transport struct {
	Receiver   uint32
	Counter    uint64
	Ciphertext []byte
}

// AppendTransportHeader writes the 16-byte data-packet header into packet,
// which must have room for it. Used by the codec to seal in place.
func AppendTransportHeader(packet []byte, receiver uint32, counter uint64) {
	packet[0] = byte(MessageTransport)
	packet[1], packet[2], packet[3] = 0, 0, 0
	binary.LittleEndian.PutUint32(packet[transportReceiverOffset:], receiver)
	binary.LittleEndian.PutUint64(packet[counterOffset:], counter)
}

func ParseTransport(packet []byte) (*Transport, error) {
	if len(packet) < TransportHeaderSize {
		return nil, fmt.Errorf("transport: %w: %d bytes", ErrPacketTooShort, len(packet))
	}
	return &Transport{
		Receiver:   binary.LittleEndian.Uint32(packet[transportReceiverOffset:]),
		Counter:    binary.LittleEndian.Uint64(packet[counterOffset:]),
		Ciphertext: packet[TransportHeaderSize:],
	}, nil
}
