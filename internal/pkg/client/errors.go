package client

import "github.com/pkg/errors"

// ErrJoinTimeout indicates that the server did not answer JOIN in time.
var ErrJoinTimeout = errors.New("join timed out")

// ErrAttackNotRelayed indicates that the server did not relay the client's own attack in time.
var ErrAttackNotRelayed = errors.New("attack not relayed")

// ErrClientClosed indicates that the transport stopped delivering datagrams.
var ErrClientClosed = errors.New("client closed")
