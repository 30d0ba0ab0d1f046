package session

import (
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InitialTrust is the trust score of a freshly admitted session.
const InitialTrust = 3

// reservedIDs are never handed out, so the first session id is reservedIDs+1.
const reservedIDs = 100

// Store is the session registry. Sessions returned by a Store are owned by
// the dispatch goroutine; only the registry map itself is safe for
// concurrent use.
type Store interface {
	Admit(endpoint netip.AddrPort, now time.Time) (*Session, error)
	Get(endpoint netip.AddrPort) (*Session, error)
	Remove(endpoint netip.AddrPort, now time.Time) error
	Evict(endpoint netip.AddrPort) error
	Each(fn func(*Session))
	Len() int
	Banned(endpoint netip.AddrPort) (time.Time, bool)
}

// Pending is a reliable message waiting for its acknowledgment.
type Pending struct {
	SentAt   time.Time
	Raw      []byte
	Attempts int
}

// Session is the server side state of one connected endpoint.
type Session struct {
	ID       uint32
	Endpoint netip.AddrPort
	TraceID  uuid.UUID
	JoinedAt time.Time

	X, Y float32

	Movement Sequence
	Melee    Sequence

	Pending map[uint32]*Pending
	Trust   int
}

// MemoryStore keeps sessions and the blacklist in memory for the lifetime of
// the process.
type MemoryStore struct {
	sessions  map[netip.AddrPort]*Session
	blacklist map[netip.AddrPort]time.Time
	lastID    uint32
	mu        sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[netip.AddrPort]*Session),
		blacklist: make(map[netip.AddrPort]time.Time),
		lastID:    reservedIDs,
	}
}

// Admit registers a new session for endpoint. If the endpoint already has a
// live session, that session is returned along with ErrSessionAlreadyExists.
func (p *MemoryStore) Admit(endpoint netip.AddrPort, now time.Time) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sess, ok := p.sessions[endpoint]; ok {
		return sess, ErrSessionAlreadyExists
	}
	p.lastID++
	sess := &Session{
		ID:       p.lastID,
		Endpoint: endpoint,
		TraceID:  uuid.New(),
		JoinedAt: now,
		Pending:  make(map[uint32]*Pending),
		Trust:    InitialTrust,
	}
	p.sessions[endpoint] = sess
	return sess, nil
}

func (p *MemoryStore) Get(endpoint netip.AddrPort) (*Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if sess, ok := p.sessions[endpoint]; ok {
		return sess, nil
	}
	return nil, ErrSessionNotFound
}

// Remove deletes the session of endpoint and bans the endpoint.
func (p *MemoryStore) Remove(endpoint netip.AddrPort, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[endpoint]; !ok {
		return ErrSessionNotFound
	}
	delete(p.sessions, endpoint)
	p.blacklist[endpoint] = now
	return nil
}

// Evict deletes the session of endpoint without banning it.
func (p *MemoryStore) Evict(endpoint netip.AddrPort) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[endpoint]; !ok {
		return ErrSessionNotFound
	}
	delete(p.sessions, endpoint)
	return nil
}

// Each calls fn for every live session in ascending id order. fn may remove
// sessions from the store.
func (p *MemoryStore) Each(fn func(*Session)) {
	p.mu.RLock()
	all := make([]*Session, 0, len(p.sessions))
	for _, sess := range p.sessions {
		all = append(all, sess)
	}
	p.mu.RUnlock()
	slices.SortFunc(all, func(a, b *Session) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for _, sess := range all {
		fn(sess)
	}
}

func (p *MemoryStore) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Banned reports whether endpoint is blacklisted and when it was banned.
func (p *MemoryStore) Banned(endpoint netip.AddrPort) (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	at, ok := p.blacklist[endpoint]
	return at, ok
}

// Blacklist returns a copy of the banned endpoints.
func (p *MemoryStore) Blacklist() map[netip.AddrPort]time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[netip.AddrPort]time.Time, len(p.blacklist))
	for k, v := range p.blacklist {
		out[k] = v
	}
	return out
}
