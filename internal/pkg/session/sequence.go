package session

import "strconv"

// Sequence is the last accepted message id on one ordering channel.
type Sequence uint32

// Advance accepts id if it is strictly newer than the stored value and
// records it. Stale, duplicate and reordered ids are rejected.
func (s *Sequence) Advance(id uint32) bool {
	if id <= uint32(*s) {
		return false
	}
	*s = Sequence(id)
	return true
}

func (s Sequence) String() string {
	return strconv.FormatUint(uint64(s), 10)
}
