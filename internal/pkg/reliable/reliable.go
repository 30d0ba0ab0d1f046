// Package reliable layers acknowledged delivery on top of the unreliable
// transport. Reliable messages are kept per session until the client
// acknowledges them and are retransmitted byte for byte by Sweep.
package reliable

import (
	"context"
	"net/netip"
	"slices"
	"time"

	"dungeon/internal/pkg/log"
	"dungeon/internal/pkg/session"
	"dungeon/internal/pkg/transport"
	"dungeon/internal/pkg/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Defaults.
const (
	DefaultInterval       = 3 * time.Second
	DefaultMaxRetransmits = 10
	DefaultMaxBackoff     = 30 * time.Second
)

// Manager owns the global message counter and the retransmission policy.
// It is not safe for concurrent use.
type Manager struct {
	store     session.Store
	transport transport.Transport
	next      uint32

	interval       time.Duration
	maxRetransmits int
	backoff        bool
	maxBackoff     time.Duration

	now     func() time.Time
	onEvict func(*session.Session)
	logger  logrus.FieldLogger
}

// Cfg configures a Manager.
type Cfg func(*Manager) error

// WithInterval sets how long a reliable message may stay unacknowledged
// before it is retransmitted.
func WithInterval(d time.Duration) Cfg {
	return func(m *Manager) error {
		if d <= 0 {
			return errors.Errorf("invalid retransmission interval %s", d)
		}
		m.interval = d
		return nil
	}
}

// WithMaxRetransmits sets how many times a message is retransmitted before
// its session is evicted. Zero retransmits forever.
func WithMaxRetransmits(n int) Cfg {
	return func(m *Manager) error {
		if n < 0 {
			return errors.Errorf("invalid max retransmits %d", n)
		}
		m.maxRetransmits = n
		return nil
	}
}

// WithBackoff doubles the retransmission interval after every attempt, up to
// max.
func WithBackoff(max time.Duration) Cfg {
	return func(m *Manager) error {
		if max <= 0 {
			return errors.Errorf("invalid max backoff %s", max)
		}
		m.backoff = true
		m.maxBackoff = max
		return nil
	}
}

// WithClock sets the clock used to timestamp sends.
func WithClock(now func() time.Time) Cfg {
	return func(m *Manager) error {
		if now == nil {
			return errors.New("nil clock")
		}
		m.now = now
		return nil
	}
}

// WithEvictHook registers fn to run after a session has been evicted for
// exhausting its retransmissions.
func WithEvictHook(fn func(*session.Session)) Cfg {
	return func(m *Manager) error {
		m.onEvict = fn
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Cfg {
	return func(m *Manager) error {
		m.logger = l
		return nil
	}
}

// NewManager creates a Manager sending over t.
func NewManager(store session.Store, t transport.Transport, cfgs ...Cfg) (*Manager, error) {
	if store == nil || t == nil {
		return nil, errors.New("reliable manager needs a store and a transport")
	}
	m := &Manager{
		store:          store,
		transport:      t,
		interval:       DefaultInterval,
		maxRetransmits: DefaultMaxRetransmits,
		maxBackoff:     DefaultMaxBackoff,
		now:            time.Now,
		logger:         logger,
	}
	for _, cfg := range cfgs {
		if err := cfg(m); err != nil {
			return nil, errors.Wrap(err, "apply Manager cfg failed")
		}
	}
	return m, nil
}

// NextID returns the next global message id.
func (m *Manager) NextID() uint32 {
	id := m.next
	m.next++
	return id
}

// Send transmits a message to sess once and keeps it pending until it is
// acknowledged. The message stays pending when the first send fails, so the
// sweep retries it.
func (m *Manager) Send(ctx context.Context, sess *session.Session, t wire.Type, payload []byte) (uint32, error) {
	id := m.NextID()
	raw := wire.Encode(t, id, payload)
	err := m.transport.Send(ctx, raw, sess.Endpoint)
	sess.Pending[id] = &session.Pending{SentAt: m.now(), Raw: raw}
	return id, errors.Wrapf(err, "send reliable %s failed", t)
}

// SendUnreliable transmits a message once without tracking it.
func (m *Manager) SendUnreliable(ctx context.Context, to netip.AddrPort, t wire.Type, payload []byte) (uint32, error) {
	id := m.NextID()
	err := m.transport.Send(ctx, wire.Encode(t, id, payload), to)
	return id, errors.Wrapf(err, "send %s failed", t)
}

// Acknowledge confirms delivery of the reliable message ackedID. It returns
// ErrUnknownAck if sess has no such pending message.
func (m *Manager) Acknowledge(sess *session.Session, ackedType wire.Type, ackedID uint32) error {
	p, ok := sess.Pending[ackedID]
	if !ok {
		return ErrUnknownAck
	}
	delete(sess.Pending, ackedID)
	m.logger.WithFields(log.SessionToFields(sess)).WithFields(logrus.Fields{
		"acked_type": ackedType.String(),
		"acked_id":   ackedID,
		"attempts":   p.Attempts,
	}).Debug("ack confirmed")
	return nil
}

// SweepResult summarises one retransmission sweep.
type SweepResult struct {
	Resent  int
	Failed  int
	Evicted int
}

// due returns how long a message that has been retransmitted attempts times
// waits before its next retransmission.
func (m *Manager) due(attempts int) time.Duration {
	if !m.backoff {
		return m.interval
	}
	if attempts > 16 {
		attempts = 16
	}
	d := m.interval << attempts
	if d > m.maxBackoff || d <= 0 {
		return m.maxBackoff
	}
	return d
}

// Sweep retransmits every pending message whose retransmission interval has
// elapsed at now. A session holding a message that already used up its
// retransmissions is evicted. Only retransmissions the transport accepted
// count towards the limit.
func (m *Manager) Sweep(ctx context.Context, now time.Time) SweepResult {
	var res SweepResult
	m.store.Each(func(sess *session.Session) {
		ids := make([]uint32, 0, len(sess.Pending))
		for id := range sess.Pending {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			p := sess.Pending[id]
			if now.Sub(p.SentAt) < m.due(p.Attempts) {
				continue
			}
			if m.maxRetransmits > 0 && p.Attempts >= m.maxRetransmits {
				m.evict(sess, id)
				res.Evicted++
				return
			}
			p.SentAt = now
			if err := m.transport.Send(ctx, p.Raw, sess.Endpoint); err != nil {
				res.Failed++
				m.logger.WithFields(log.SessionToFields(sess)).WithError(err).Warn("retransmission failed")
				continue
			}
			p.Attempts++
			res.Resent++
		}
	})
	return res
}

func (m *Manager) evict(sess *session.Session, id uint32) {
	if err := m.store.Evict(sess.Endpoint); err != nil {
		m.logger.WithFields(log.SessionToFields(sess)).WithError(err).Error("evict session failed")
		return
	}
	m.logger.WithFields(log.SessionToFields(sess)).WithField("message", id).
		Warn("session evicted after unacknowledged retransmissions")
	if m.onEvict != nil {
		m.onEvict(sess)
	}
}
