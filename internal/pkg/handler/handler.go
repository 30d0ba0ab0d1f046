package handler

import (
	"context"
	"net/netip"
	"time"

	"dungeon/internal/pkg/log"
	"dungeon/internal/pkg/reliable"
	"dungeon/internal/pkg/session"
	"dungeon/internal/pkg/transport"
	"dungeon/internal/pkg/trust"
	"dungeon/internal/pkg/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// meleeCanAttack is the attack flag relayed with every accepted melee action.
const meleeCanAttack = 1

// Handler dispatches received datagrams. It is not safe for concurrent use:
// all calls must come from the dispatch goroutine.
type Handler struct {
	store    session.Store
	trust    *trust.Manager
	reliable *reliable.Manager
	limiter  *Limiter

	enforceBlacklist bool

	now    func() time.Time
	logger logrus.FieldLogger
}

// Cfg configures a Handler.
type Cfg func(*Handler) error

// WithSessionStore sets the session store.
func WithSessionStore(store session.Store) Cfg {
	return func(h *Handler) error {
		h.store = store
		return nil
	}
}

// WithTrust sets the trust manager.
func WithTrust(m *trust.Manager) Cfg {
	return func(h *Handler) error {
		h.trust = m
		return nil
	}
}

// WithReliable sets the reliable delivery manager.
func WithReliable(m *reliable.Manager) Cfg {
	return func(h *Handler) error {
		h.reliable = m
		return nil
	}
}

// WithLimiter enables per-endpoint ingress rate limiting.
func WithLimiter(l *Limiter) Cfg {
	return func(h *Handler) error {
		h.limiter = l
		return nil
	}
}

// WithBlacklistEnforced makes JOIN consult the blacklist.
func WithBlacklistEnforced(enforce bool) Cfg {
	return func(h *Handler) error {
		h.enforceBlacklist = enforce
		return nil
	}
}

// WithClock sets the clock.
func WithClock(now func() time.Time) Cfg {
	return func(h *Handler) error {
		if now == nil {
			return errors.New("nil clock")
		}
		h.now = now
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Cfg {
	return func(h *Handler) error {
		h.logger = l
		return nil
	}
}

// NewHandler creates a new Handler.
func NewHandler(cfgs ...Cfg) (*Handler, error) {
	h := &Handler{
		now:    time.Now,
		logger: logger,
	}
	for _, cfg := range cfgs {
		if err := cfg(h); err != nil {
			return nil, errors.Wrap(err, "apply handler cfg failed")
		}
	}
	if h.store == nil || h.trust == nil || h.reliable == nil {
		return nil, errors.New("handler needs a session store, a trust manager and a reliable manager")
	}
	return h, nil
}

// Handle processes one datagram to completion. The returned error describes
// why the datagram was dropped or what failed while handling it; none of
// them leave the handler in an unusable state.
func (h *Handler) Handle(ctx context.Context, d transport.Datagram) error {
	if h.limiter != nil && !h.limiter.Allow(d.From, h.now()) {
		return ErrRateLimited
	}
	hdr, payload, err := wire.DecodeHeader(d.Data)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"endpoint": d.From.String(),
			"len":      len(d.Data),
		}).Warn("ignoring broken packet")
		return errors.Wrap(err, "decode header failed")
	}
	h.logger.WithFields(log.HeaderToFields(d.From, hdr)).Trace("received message")

	if hdr.Type == wire.TypeJoin {
		return h.handleJoin(ctx, d.From)
	}

	var handle func(context.Context, *session.Session, wire.Header, []byte, int) error
	switch hdr.Type {
	case wire.TypeAck:
		handle = h.handleAck
	case wire.TypePosition:
		handle = h.handlePosition
	case wire.TypeMelee:
		handle = h.handleMelee
	default:
		return ErrUnknownType
	}
	sess, err := h.store.Get(d.From)
	if err != nil {
		return errors.Wrapf(err, "%s from %s", hdr.Type, d.From)
	}
	return handle(ctx, sess, hdr, payload, len(d.Data))
}

// Sweep runs the periodic maintenance: retransmissions and limiter pruning.
func (h *Handler) Sweep(ctx context.Context) reliable.SweepResult {
	now := h.now()
	if h.limiter != nil {
		h.limiter.Prune(now)
	}
	return h.reliable.Sweep(ctx, now)
}

func (h *Handler) violation(sess *session.Session, v trust.Violation) error {
	banned, err := h.trust.Punish(sess, v)
	if err != nil {
		return errors.Wrapf(err, "penalize %s failed", v)
	}
	return &ViolationError{Violation: v, Banned: banned}
}

func (h *Handler) handleJoin(ctx context.Context, from netip.AddrPort) error {
	if h.enforceBlacklist {
		if at, banned := h.store.Banned(from); banned {
			h.logger.WithFields(logrus.Fields{
				"endpoint":  from.String(),
				"banned_at": at.Format(time.RFC3339),
			}).Info("banned endpoint attempted to join")
			return ErrBanned
		}
	}
	sess, err := h.store.Admit(from, h.now())
	if errors.Is(err, session.ErrSessionAlreadyExists) {
		return h.violation(sess, trust.DuplicateJoin)
	}
	if err != nil {
		return errors.Wrap(err, "admit session failed")
	}
	h.logger.WithFields(log.SessionToFields(sess)).Info("a new player joined")
	_, err = h.reliable.Send(ctx, sess, wire.TypeWelcome, wire.EncodeWelcome(sess.ID))
	return errors.Wrap(err, "send welcome failed")
}

func (h *Handler) handleAck(_ context.Context, sess *session.Session, _ wire.Header, payload []byte, _ int) error {
	ack, err := wire.DecodeAck(payload)
	if err != nil {
		h.logger.WithFields(log.SessionToFields(sess)).Warn("ack not right size")
		return h.violation(sess, trust.MalformedAck)
	}
	err = h.reliable.Acknowledge(sess, ack.Type, ack.ID)
	if errors.Is(err, reliable.ErrUnknownAck) {
		h.logger.WithFields(log.SessionToFields(sess)).WithField("acked_id", ack.ID).Warn("failed ack check")
		return h.violation(sess, trust.UnknownAck)
	}
	return err
}

func (h *Handler) handlePosition(ctx context.Context, sess *session.Session, hdr wire.Header, payload []byte, size int) error {
	if size != wire.PositionDatagramSize {
		return h.violation(sess, trust.MalformedLength)
	}
	pos, err := wire.DecodePosition(payload)
	if err != nil {
		return h.violation(sess, trust.MalformedLength)
	}
	if pos.PlayerID != sess.ID {
		h.logger.WithFields(log.SessionToFields(sess)).WithField("player", pos.PlayerID).Warn("invalid player id")
		return h.violation(sess, trust.Spoof)
	}
	if !sess.Movement.Advance(hdr.ID) {
		return ErrStale
	}
	sess.X, sess.Y = pos.X, pos.Y

	out := wire.EncodePosition(pos)
	var firstErr error
	h.store.Each(func(other *session.Session) {
		if other.Endpoint == sess.Endpoint {
			return
		}
		if _, err := h.reliable.SendUnreliable(ctx, other.Endpoint, wire.TypePosition, out); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return errors.Wrap(firstErr, "broadcast position failed")
}

func (h *Handler) handleMelee(ctx context.Context, sess *session.Session, hdr wire.Header, payload []byte, size int) error {
	if size != wire.MeleeDatagramSize {
		return h.violation(sess, trust.MalformedLength)
	}
	playerID, err := wire.DecodeMeleeRequest(payload)
	if err != nil {
		return h.violation(sess, trust.MalformedLength)
	}
	if playerID != sess.ID {
		h.logger.WithFields(log.SessionToFields(sess)).WithField("player", playerID).Warn("invalid player id")
		return h.violation(sess, trust.Spoof)
	}
	if !sess.Melee.Advance(hdr.ID) {
		h.logger.WithFields(log.SessionToFields(sess)).WithFields(logrus.Fields{
			"id":   hdr.ID,
			"last": sess.Melee.String(),
		}).Warn("invalid melee message id")
		if h.trust.Schedule().Amount(trust.MeleeReplay) == 0 {
			return ErrStale
		}
		return h.violation(sess, trust.MeleeReplay)
	}
	h.logger.WithFields(log.SessionToFields(sess)).Info("player used melee attack")

	out := wire.EncodeMeleeBroadcast(wire.Melee{PlayerID: playerID, CanAttack: meleeCanAttack})
	var firstErr error
	h.store.Each(func(other *session.Session) {
		if _, err := h.reliable.Send(ctx, other, wire.TypeMelee, out); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return errors.Wrap(firstErr, "broadcast melee failed")
}
