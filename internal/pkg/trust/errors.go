package trust

import "github.com/pkg/errors"

// ErrNegativePenalty is returned when a penalty would raise a trust score.
var ErrNegativePenalty = errors.New("negative penalty")
