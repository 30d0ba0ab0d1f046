package client

import (
	"context"
	"math/rand"
	"net/netip"
	"time"

	"dungeon/internal/pkg/transport"
	"dungeon/internal/pkg/wire"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Defaults for the demo client.
const (
	DefaultTickerInterval = 100 * time.Millisecond
	DefaultMoves          = 20
	DefaultJoinTimeout    = 10 * time.Second
	DefaultFinishTimeout  = 10 * time.Second
)

// Stats counts what a client saw during Run.
type Stats struct {
	PositionsSent     int
	PositionsReceived int
	MeleesReceived    int
	Acked             int
}

// Client is a demo player: it joins, walks around and attacks once.
type Client struct {
	server    netip.AddrPort
	transport transport.Transport
	owned     bool

	ticker        time.Duration
	moves         int
	joinTimeout   time.Duration
	finishTimeout time.Duration

	runID     uuid.UUID
	sessionID uint32
	movement  uint32
	melee     uint32
	x, y      float32
	stats     Stats

	logger logrus.FieldLogger
}

// Cfg configures a Client.
type Cfg func(*Client) error

// WithServerAddr sets the server endpoint.
func WithServerAddr(addr netip.AddrPort) Cfg {
	return func(c *Client) error {
		if !addr.IsValid() {
			return errors.New("invalid server address")
		}
		c.server = addr
		return nil
	}
}

// WithServerPort sets the server endpoint to the given port on localhost.
func WithServerPort(p uint16) Cfg {
	return WithServerAddr(netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), p))
}

// WithTransport sets the transport. The client does not close a transport
// it was given.
func WithTransport(t transport.Transport) Cfg {
	return func(c *Client) error {
		c.transport = t
		return nil
	}
}

// WithTickerInterval sets the interval between position updates.
func WithTickerInterval(d time.Duration) Cfg {
	return func(c *Client) error {
		if d <= 0 {
			return errors.Errorf("ticker interval must be positive, got %s", d)
		}
		c.ticker = d
		return nil
	}
}

// WithMoves sets how many position updates are sent before the attack.
func WithMoves(n int) Cfg {
	return func(c *Client) error {
		if n < 0 {
			return errors.Errorf("moves must not be negative, got %d", n)
		}
		c.moves = n
		return nil
	}
}

// WithJoinTimeout sets how long to wait for WELCOME.
func WithJoinTimeout(d time.Duration) Cfg {
	return func(c *Client) error {
		c.joinTimeout = d
		return nil
	}
}

// WithFinishTimeout sets how long to wait for the server to relay the attack.
func WithFinishTimeout(d time.Duration) Cfg {
	return func(c *Client) error {
		c.finishTimeout = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Cfg {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfgs ...Cfg) (*Client, error) {
	c := &Client{
		ticker:        DefaultTickerInterval,
		moves:         DefaultMoves,
		joinTimeout:   DefaultJoinTimeout,
		finishTimeout: DefaultFinishTimeout,
		logger:        logger,
	}
	for _, cfg := range cfgs {
		if err := cfg(c); err != nil {
			return nil, errors.Wrap(err, "apply Client cfg failed")
		}
	}
	if !c.server.IsValid() {
		return nil, errors.New("client needs a server address")
	}
	c.runID = uuid.New()
	c.logger = c.logger.WithField("run", c.runID.String())
	return c, nil
}

// SessionID returns the id assigned by the server, or 0 before WELCOME.
func (c *Client) SessionID() uint32 {
	return c.sessionID
}

// Stats returns the counters of the last Run.
func (c *Client) Stats() Stats {
	return c.stats
}

// Run joins the server, sends the configured number of position updates,
// attacks once and returns nil when the server relayed the attack back.
// Cancelling ctx before that is an error.
func (c *Client) Run(ctx context.Context) error {
	if c.transport == nil {
		udp, err := transport.ListenUDP(":0")
		if err != nil {
			return errors.Wrap(err, "listen failed")
		}
		c.transport = udp
		c.owned = true
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.owned {
		defer c.transport.Close()
	}
	in := c.recv(ctx)

	if err := c.join(ctx, in); err != nil {
		return err
	}

	ticker := time.NewTicker(c.ticker)
	defer ticker.Stop()
	var finish <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "run interrupted before the attack was relayed")
		case d, ok := <-in:
			if !ok {
				return ErrClientClosed
			}
			done, err := c.handle(ctx, d)
			if err != nil {
				return err
			}
			if done {
				c.logger.WithFields(c.fields()).Info("client completed successfully")
				return nil
			}
		case <-ticker.C:
			if c.movement < uint32(c.moves) {
				if err := c.move(ctx); err != nil {
					return err
				}
				continue
			}
			if c.melee == 0 {
				if err := c.attack(ctx); err != nil {
					return err
				}
				finish = time.After(c.finishTimeout)
			}
		case <-finish:
			return ErrAttackNotRelayed
		}
	}
}

func (c *Client) recv(ctx context.Context) <-chan transport.Datagram {
	out := make(chan transport.Datagram)
	go func() {
		defer close(out)
		for {
			d, err := c.transport.Recv(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.WithError(err).Warn("receive failed")
				}
				return
			}
			if d.From != c.server {
				continue
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (c *Client) send(ctx context.Context, t wire.Type, id uint32, payload []byte) error {
	return errors.Wrapf(c.transport.Send(ctx, wire.Encode(t, id, payload), c.server), "send %s failed", t)
}

func (c *Client) join(ctx context.Context, in <-chan transport.Datagram) error {
	if err := c.send(ctx, wire.TypeJoin, 0, nil); err != nil {
		return err
	}
	c.logger.WithField("server", c.server.String()).Info("joining")
	timeout := time.After(c.joinTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return ErrJoinTimeout
		case d, ok := <-in:
			if !ok {
				return ErrClientClosed
			}
			if _, err := c.handle(ctx, d); err != nil {
				return err
			}
			if c.sessionID != 0 {
				c.logger.WithFields(c.fields()).Info("joined")
				return nil
			}
		}
	}
}

// handle processes one datagram from the server and reports whether the
// client has seen its own attack relayed.
func (c *Client) handle(ctx context.Context, d transport.Datagram) (bool, error) {
	hdr, payload, err := wire.DecodeHeader(d.Data)
	if err != nil {
		c.logger.WithError(err).Warn("ignoring broken packet")
		return false, nil
	}
	switch hdr.Type {
	case wire.TypeWelcome:
		id, err := wire.DecodeWelcome(payload)
		if err != nil {
			c.logger.WithError(err).Warn("ignoring broken welcome")
			return false, nil
		}
		if err := c.ack(ctx, hdr); err != nil {
			return false, err
		}
		if c.sessionID == 0 {
			c.sessionID = id
		}
	case wire.TypePosition:
		pos, err := wire.DecodePosition(payload)
		if err != nil {
			c.logger.WithError(err).Warn("ignoring broken position")
			return false, nil
		}
		c.stats.PositionsReceived++
		c.logger.WithFields(logrus.Fields{
			"player": pos.PlayerID,
			"x":      pos.X,
			"y":      pos.Y,
		}).Debug("player moved")
	case wire.TypeMelee:
		m, err := wire.DecodeMeleeBroadcast(payload)
		if err != nil {
			c.logger.WithError(err).Warn("ignoring broken melee")
			return false, nil
		}
		if err := c.ack(ctx, hdr); err != nil {
			return false, err
		}
		c.stats.MeleesReceived++
		c.logger.WithField("player", m.PlayerID).Debug("player attacked")
		return c.melee > 0 && m.PlayerID == c.sessionID, nil
	default:
		c.logger.WithField("type", hdr.Type.String()).Debug("ignoring message")
	}
	return false, nil
}

func (c *Client) ack(ctx context.Context, hdr wire.Header) error {
	c.stats.Acked++
	return c.send(ctx, wire.TypeAck, 0, wire.EncodeAck(wire.Ack{Type: hdr.Type, ID: hdr.ID}))
}

func (c *Client) move(ctx context.Context) error {
	c.x += rand.Float32()*2 - 1 // nolint: gosec // we don't need high security here
	c.y += rand.Float32()*2 - 1 // nolint: gosec // we don't need high security here
	c.movement++
	c.stats.PositionsSent++
	return c.send(ctx, wire.TypePosition, c.movement, wire.EncodePosition(wire.Position{
		PlayerID: c.sessionID,
		X:        c.x,
		Y:        c.y,
	}))
}

func (c *Client) attack(ctx context.Context) error {
	c.melee++
	c.logger.WithFields(c.fields()).Info("attacking")
	return c.send(ctx, wire.TypeMelee, c.melee, wire.EncodeMeleeRequest(c.sessionID))
}

func (c *Client) fields() logrus.Fields {
	return logrus.Fields{
		"session":            c.sessionID,
		"positions_sent":     c.stats.PositionsSent,
		"positions_received": c.stats.PositionsReceived,
		"melees_received":    c.stats.MeleesReceived,
	}
}
