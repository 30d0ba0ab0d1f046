package wire

import "github.com/pkg/errors"

// ErrShortPacket is returned when a datagram is too short to hold a header.
var ErrShortPacket = errors.New("packet shorter than header")

// ErrShortPayload is returned when a payload is shorter than its type requires.
var ErrShortPayload = errors.New("payload too short")

// ErrPayloadSize is returned when a fixed size payload has the wrong length.
var ErrPayloadSize = errors.New("unexpected payload size")
