package server

import (
	"context"
	"sync"
	"time"

	"dungeon/internal/pkg/handler"
	"dungeon/internal/pkg/reliable"
	"dungeon/internal/pkg/session"
	"dungeon/internal/pkg/transport"
	"dungeon/internal/pkg/wire"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Defaults for the dispatch loop.
const (
	DefaultSweepInterval = 250 * time.Millisecond
	DefaultQueueSize     = 256
)

// Server runs the dispatch loop of the session server.
type Server struct {
	transport transport.Transport
	handler   *handler.Handler
	sweep     time.Duration
	queue     int
	onStatus  func(serving bool)
	logger    logrus.FieldLogger
}

// Cfg configures a Server.
type Cfg func(*Server) error

// WithTransport sets the datagram transport.
func WithTransport(t transport.Transport) Cfg {
	return func(s *Server) error {
		s.transport = t
		return nil
	}
}

// WithHandler sets the datagram handler.
func WithHandler(h *handler.Handler) Cfg {
	return func(s *Server) error {
		s.handler = h
		return nil
	}
}

// WithSweepInterval sets how often pending reliable messages are checked
// for retransmission.
func WithSweepInterval(d time.Duration) Cfg {
	return func(s *Server) error {
		if d <= 0 {
			return errors.Errorf("sweep interval must be positive, got %s", d)
		}
		s.sweep = d
		return nil
	}
}

// WithQueueSize sets how many received datagrams may wait for the dispatch
// goroutine.
func WithQueueSize(n int) Cfg {
	return func(s *Server) error {
		if n < 0 {
			return errors.Errorf("queue size must not be negative, got %d", n)
		}
		s.queue = n
		return nil
	}
}

// WithStatusHook sets a function called with true when the dispatch loop
// starts and with false when it stops.
func WithStatusHook(fn func(serving bool)) Cfg {
	return func(s *Server) error {
		s.onStatus = fn
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Cfg {
	return func(s *Server) error {
		s.logger = l
		return nil
	}
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfgs ...Cfg) (*Server, error) {
	s := &Server{
		sweep:  DefaultSweepInterval,
		queue:  DefaultQueueSize,
		logger: logger,
	}
	for _, cfg := range cfgs {
		if err := cfg(s); err != nil {
			return nil, errors.Wrap(err, "apply Server cfg failed")
		}
	}
	if s.transport == nil {
		return nil, errors.New("server needs a transport")
	}
	if s.handler == nil {
		return nil, errors.New("server needs a handler")
	}
	return s, nil
}

// Run dispatches datagrams and sweeps for retransmissions until ctx is
// cancelled or the transport fails. The transport is closed on return.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	in := make(chan transport.Datagram, s.queue)
	errc := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.read(ctx, in, errc)
	}()
	defer func() {
		cancel()
		if err := s.transport.Close(); err != nil {
			s.logger.WithError(err).Warn("close transport failed")
		}
		wg.Wait()
		s.setStatus(false)
	}()

	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()
	s.setStatus(true)
	s.logger.WithField("addr", s.transport.LocalAddr().String()).Info("server listening")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return errors.Wrap(err, "receive failed")
		case d := <-in:
			s.dispatch(ctx, d)
		case <-ticker.C:
			res := s.handler.Sweep(ctx)
			if res != (reliable.SweepResult{}) {
				s.logger.WithFields(logrus.Fields{
					"resent":  res.Resent,
					"failed":  res.Failed,
					"evicted": res.Evicted,
				}).Debug("sweep done")
			}
		}
	}
}

// read moves datagrams from the transport to the dispatch goroutine.
func (s *Server) read(ctx context.Context, in chan<- transport.Datagram, errc chan<- error) {
	for {
		d, err := s.transport.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				errc <- err
			}
			return
		}
		select {
		case in <- d:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, d transport.Datagram) {
	err := s.handler.Handle(ctx, d)
	if err == nil {
		return
	}
	entry := s.logger.WithError(err).WithField("endpoint", d.From.String())
	var verr *handler.ViolationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, wire.ErrShortPacket),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, handler.ErrStale),
		errors.Is(err, handler.ErrUnknownType),
		errors.Is(err, handler.ErrRateLimited),
		errors.Is(err, handler.ErrBanned):
		entry.Debug("datagram dropped")
	default:
		entry.Warn("handle datagram failed")
	}
}

func (s *Server) setStatus(serving bool) {
	if s.onStatus != nil {
		s.onStatus(serving)
	}
}
