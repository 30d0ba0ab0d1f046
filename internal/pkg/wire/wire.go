// Package wire implements the binary datagram format spoken between the
// session server and its clients.
//
// Every datagram starts with an 8 byte header:
//
//	[4B message type, little-endian uint32][4B message id, little-endian uint32]
//
// followed by a payload whose layout depends on the message type.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type identifies the kind of a message.
type Type uint32

// Message types.
const (
	TypeJoin Type = iota
	TypeWelcome
	TypeAck
	TypePosition
	TypeMelee
)

func (t Type) String() string {
	switch t {
	case TypeJoin:
		return "JOIN"
	case TypeWelcome:
		return "WELCOME"
	case TypeAck:
		return "ACK"
	case TypePosition:
		return "POSITION"
	case TypeMelee:
		return "MELEE"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
}

// Sizes of the fixed parts of the format.
const (
	HeaderSize      = 8
	MaxDatagramSize = 4096

	// PositionDatagramSize and MeleeDatagramSize are the exact sizes of the
	// client to server POSITION and MELEE datagrams, header included.
	PositionDatagramSize = HeaderSize + 12
	MeleeDatagramSize    = HeaderSize + 12

	ackPayloadSize = 8
)

var le = binary.LittleEndian

// Header is the fixed prefix of every datagram.
type Header struct {
	Type Type
	ID   uint32
}

// DecodeHeader splits b into its header and payload.
func DecodeHeader(b []byte) (Header, []byte, error) {
	if len(b) < HeaderSize {
		return Header{}, nil, ErrShortPacket
	}
	return Header{
		Type: Type(le.Uint32(b[0:4])),
		ID:   le.Uint32(b[4:8]),
	}, b[HeaderSize:], nil
}

// Encode builds a datagram from a header and payload.
func Encode(t Type, id uint32, payload []byte) []byte {
	b := make([]byte, HeaderSize+len(payload))
	le.PutUint32(b[0:4], uint32(t))
	le.PutUint32(b[4:8], id)
	copy(b[HeaderSize:], payload)
	return b
}

// EncodeWelcome encodes the WELCOME payload carrying the assigned session id.
func EncodeWelcome(sessionID uint32) []byte {
	b := make([]byte, 4)
	le.PutUint32(b, sessionID)
	return b
}

// DecodeWelcome decodes a WELCOME payload.
func DecodeWelcome(p []byte) (uint32, error) {
	if len(p) < 4 {
		return 0, ErrShortPayload
	}
	return le.Uint32(p), nil
}

// Ack acknowledges a reliable message.
type Ack struct {
	Type Type
	ID   uint32
}

// EncodeAck encodes an ACK payload.
func EncodeAck(a Ack) []byte {
	b := make([]byte, ackPayloadSize)
	le.PutUint32(b[0:4], uint32(a.Type))
	le.PutUint32(b[4:8], a.ID)
	return b
}

// DecodeAck decodes an ACK payload. Trailing bytes are ignored.
func DecodeAck(p []byte) (Ack, error) {
	if len(p) < ackPayloadSize {
		return Ack{}, ErrShortPayload
	}
	return Ack{
		Type: Type(le.Uint32(p[0:4])),
		ID:   le.Uint32(p[4:8]),
	}, nil
}

// Position is the POSITION payload, used in both directions.
type Position struct {
	PlayerID uint32
	X, Y     float32
}

// EncodePosition encodes a POSITION payload.
func EncodePosition(p Position) []byte {
	b := make([]byte, 12)
	le.PutUint32(b[0:4], p.PlayerID)
	le.PutUint32(b[4:8], math.Float32bits(p.X))
	le.PutUint32(b[8:12], math.Float32bits(p.Y))
	return b
}

// DecodePosition decodes a POSITION payload.
func DecodePosition(p []byte) (Position, error) {
	if len(p) != 12 {
		return Position{}, ErrPayloadSize
	}
	return Position{
		PlayerID: le.Uint32(p[0:4]),
		X:        math.Float32frombits(le.Uint32(p[4:8])),
		Y:        math.Float32frombits(le.Uint32(p[8:12])),
	}, nil
}

// EncodeMeleeRequest encodes the client to server MELEE payload. Only the
// player id is meaningful; the remaining 8 bytes are padding.
func EncodeMeleeRequest(playerID uint32) []byte {
	b := make([]byte, 12)
	le.PutUint32(b[0:4], playerID)
	return b
}

// DecodeMeleeRequest decodes the client to server MELEE payload.
func DecodeMeleeRequest(p []byte) (uint32, error) {
	if len(p) != 12 {
		return 0, ErrPayloadSize
	}
	return le.Uint32(p[0:4]), nil
}

// Melee is the server to client MELEE payload.
type Melee struct {
	PlayerID  uint32
	CanAttack float32
}

// EncodeMeleeBroadcast encodes the server to client MELEE payload.
func EncodeMeleeBroadcast(m Melee) []byte {
	b := make([]byte, 8)
	le.PutUint32(b[0:4], m.PlayerID)
	le.PutUint32(b[4:8], math.Float32bits(m.CanAttack))
	return b
}

// DecodeMeleeBroadcast decodes the server to client MELEE payload.
func DecodeMeleeBroadcast(p []byte) (Melee, error) {
	if len(p) < 8 {
		return Melee{}, ErrShortPayload
	}
	return Melee{
		PlayerID:  le.Uint32(p[0:4]),
		CanAttack: math.Float32frombits(le.Uint32(p[4:8])),
	}, nil
}
