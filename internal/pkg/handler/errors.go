package handler

import (
	"fmt"

	"dungeon/internal/pkg/trust"

	"github.com/pkg/errors"
)

// ErrRateLimited is returned when an endpoint exceeds its ingress rate.
var ErrRateLimited = errors.New("rate limited")

// ErrBanned is returned for a JOIN from a blacklisted endpoint while the
// blacklist is enforced.
var ErrBanned = errors.New("endpoint banned")

// ErrUnknownType is returned for datagrams of an unrecognised message type.
var ErrUnknownType = errors.New("unknown message type")

// ErrStale is returned for movement or melee updates that are not newer than
// the last accepted one on their channel.
var ErrStale = errors.New("stale sequence")

// ViolationError reports a protocol violation that was penalized.
type ViolationError struct {
	Violation trust.Violation
	Banned    bool
}

func (e *ViolationError) Error() string {
	if e.Banned {
		return fmt.Sprintf("%s: session banned", e.Violation)
	}
	return e.Violation.String()
}
