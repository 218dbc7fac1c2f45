// Package message defines the relay wire protocol as seen by the flood
// client. Every frame on the wire is a little endian uint16 length prefix
// followed by a payload whose first byte is the message type. Control
// payloads carry a msgpack encoded body after the type byte; the outbound
// flood message payload is raw binary with a fixed layout.
package message

import "encoding/binary"

const (
	ProtocolVersion uint16 = 1
)

const (
	TypeKeepalive   byte = 0x00
	TypeClientHello byte = 0x01
	TypeServerHello byte = 0x02
	TypeNewClient   byte = 0x03
	TypeEndClient   byte = 0x04
	TypeOutMsg      byte = 0x05
	TypeInMsg       byte = 0x06
)

const (
	// frame length prefix width, little endian uint16
	FrameHeaderLen int = 2

	// message type tag width
	TypeLen int = 1

	// target peer id field width in an outbound message, little endian uint16
	OutMsgHeaderLen int = 2

	// fixed body length of every outbound flood message
	MaxMsgLen int = 1024

	// full payload length of an outbound flood message
	OutMsgPayloadLen int = TypeLen + OutMsgHeaderLen + MaxMsgLen

	// upper bound on any inbound frame payload
	MaxFramePayload uint16 = 16384
)

type ClientHello struct {
	Version uint16 `json:"version"`
}

type ServerHello struct {
	Flags uint16 `json:"flags"`
	ID    uint16 `json:"id"`
	ExtIP uint32 `json:"ext_ip"`
}

type NewClient struct {
	ID    uint16 `json:"id"`
	Flags uint16 `json:"flags"`
	Cert  []byte `json:"cert,omitempty" msgpack:",omitempty"`
}

type EndClient struct {
	ID uint16 `json:"id"`
}

type InMsg struct {
	ID   uint16 `json:"id"`
	Data []byte `json:"data"`
}

// BuildOutMsg returns a freshly allocated outbound flood message payload
// addressed to peerID: type tag, little endian target id, zero filled body of
// exactly MaxMsgLen bytes. Layout is fixed and must not change; the server
// relays these bytes verbatim.
func BuildOutMsg(peerID uint16) []byte {
	payload := make([]byte, OutMsgPayloadLen)
	payload[0] = TypeOutMsg
	binary.LittleEndian.PutUint16(payload[TypeLen:TypeLen+OutMsgHeaderLen], peerID)
	// remainder is already zero filled by make
	return payload
}
