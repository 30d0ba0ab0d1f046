// Package trust implements trust decay for sessions: protocol violations
// lower a session's trust score and a session whose score drops to zero or
// below is removed and its endpoint blacklisted.
package trust

import (
	"fmt"
	"time"

	"dungeon/internal/pkg/log"
	"dungeon/internal/pkg/session"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Violation is a protocol violation with a configured penalty.
type Violation int

// Violations.
const (
	DuplicateJoin Violation = iota
	MalformedAck
	UnknownAck
	MalformedLength
	Spoof
	MeleeReplay
)

func (v Violation) String() string {
	switch v {
	case DuplicateJoin:
		return "duplicate join"
	case MalformedAck:
		return "malformed ack"
	case UnknownAck:
		return "unknown ack"
	case MalformedLength:
		return "malformed length"
	case Spoof:
		return "player id spoof"
	case MeleeReplay:
		return "melee replay"
	}
	return fmt.Sprintf("violation(%d)", int(v))
}

// Schedule holds the penalty applied for each violation.
type Schedule struct {
	DuplicateJoin   int `yaml:"duplicate_join" validate:"min=0"`
	MalformedAck    int `yaml:"malformed_ack" validate:"min=0"`
	UnknownAck      int `yaml:"unknown_ack" validate:"min=0"`
	MalformedLength int `yaml:"malformed_length" validate:"min=0"`
	Spoof           int `yaml:"spoof" validate:"min=0"`
	MeleeReplay     int `yaml:"melee_replay" validate:"min=0"`
}

// DefaultSchedule returns the standard penalties. Replayed melee actions are
// dropped without penalty by default.
func DefaultSchedule() Schedule {
	return Schedule{
		DuplicateJoin:   1,
		MalformedAck:    2,
		UnknownAck:      1,
		MalformedLength: 1,
		Spoof:           5,
		MeleeReplay:     0,
	}
}

// Amount returns the penalty for v.
func (s Schedule) Amount(v Violation) int {
	switch v {
	case DuplicateJoin:
		return s.DuplicateJoin
	case MalformedAck:
		return s.MalformedAck
	case UnknownAck:
		return s.UnknownAck
	case MalformedLength:
		return s.MalformedLength
	case Spoof:
		return s.Spoof
	case MeleeReplay:
		return s.MeleeReplay
	}
	return 0
}

// Manager applies penalties and bans sessions whose trust is exhausted.
type Manager struct {
	store    session.Store
	schedule Schedule
	now      func() time.Time
	onBan    func(*session.Session)
	logger   logrus.FieldLogger
}

// Cfg configures a Manager.
type Cfg func(*Manager) error

// WithSchedule sets the penalty schedule.
func WithSchedule(s Schedule) Cfg {
	return func(m *Manager) error {
		m.schedule = s
		return nil
	}
}

// WithClock sets the clock used to timestamp bans.
func WithClock(now func() time.Time) Cfg {
	return func(m *Manager) error {
		if now == nil {
			return errors.New("nil clock")
		}
		m.now = now
		return nil
	}
}

// WithBanHook registers fn to run after a session has been banned.
func WithBanHook(fn func(*session.Session)) Cfg {
	return func(m *Manager) error {
		m.onBan = fn
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

// NewManager creates a Manager that removes banned sessions from store.
func NewManager(store session.Store, cfgs ...Cfg) (*Manager, error) {
	if store == nil {
		return nil, errors.New("nil session store")
	}
	m := &Manager{
		store:    store,
		schedule: DefaultSchedule(),
		now:      time.Now,
		logger:   logger,
	}
	for _, cfg := range cfgs {
		if err := cfg(m); err != nil {
			return nil, errors.Wrap(err, "apply Manager cfg failed")
		}
	}
	return m, nil
}

// Schedule returns the active penalty schedule.
func (m *Manager) Schedule() Schedule {
	return m.schedule
}

// Punish applies the scheduled penalty for v to sess.
func (m *Manager) Punish(sess *session.Session, v Violation) (bool, error) {
	return m.Penalize(sess, m.schedule.Amount(v), v.String())
}

// Penalize subtracts amount from the trust score of sess. When the score
// reaches zero or below the session is removed from the store, its endpoint
// is blacklisted and Penalize reports true.
func (m *Manager) Penalize(sess *session.Session, amount int, reason string) (bool, error) {
	if amount < 0 {
		return false, ErrNegativePenalty
	}
	if amount == 0 {
		return false, nil
	}
	sess.Trust -= amount
	fields := log.SessionToFields(sess)
	fields["reason"] = reason
	fields["penalty"] = amount
	if sess.Trust > 0 {
		m.logger.WithFields(fields).Warn("trust penalty applied")
		return false, nil
	}
	if err := m.store.Remove(sess.Endpoint, m.now()); err != nil {
		return false, errors.Wrap(err, "remove banned session failed")
	}
	m.logger.WithFields(fields).Warn("session banned")
	if m.onBan != nil {
		m.onBan(sess)
	}
	return true, nil
}
