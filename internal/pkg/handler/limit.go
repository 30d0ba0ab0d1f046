package handler

import (
	"net/netip"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per endpoint. It is owned by the dispatch
// goroutine.
type Limiter struct {
	limit   rate.Limit
	burst   int
	buckets map[netip.AddrPort]*rate.Limiter
}

// NewLimiter allows each endpoint perSecond datagrams with bursts of burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[netip.AddrPort]*rate.Limiter),
	}
}

// Allow reports whether a datagram from ep may be processed at now.
func (l *Limiter) Allow(ep netip.AddrPort, now time.Time) bool {
	b, ok := l.buckets[ep]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[ep] = b
	}
	return b.AllowN(now, 1)
}

// Prune drops buckets that have refilled completely; a fresh bucket would
// behave the same.
func (l *Limiter) Prune(now time.Time) int {
	n := 0
	for ep, b := range l.buckets {
		if b.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, ep)
			n++
		}
	}
	return n
}

// Len returns the number of tracked endpoints.
func (l *Limiter) Len() int {
	return len(l.buckets)
}
