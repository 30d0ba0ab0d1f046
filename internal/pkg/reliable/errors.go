package reliable

import "github.com/pkg/errors"

// ErrUnknownAck is returned for an acknowledgment that matches no pending
// message.
var ErrUnknownAck = errors.New("unknown ack")
