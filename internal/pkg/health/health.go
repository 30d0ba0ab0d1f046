// Package health exposes the state of the session server over the standard
// gRPC health checking protocol.
package health

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// ServiceName is the name the session server reports its status under. The
// empty name reports the same status.
const ServiceName = "dungeon.SessionServer"

// DefaultReportInterval is how often the session count is logged.
const DefaultReportInterval = time.Minute

// Service serves grpc.health.v1.Health.
type Service struct {
	server *grpc.Server
	health *health.Server

	sessions func() int
	report   time.Duration

	logger logrus.FieldLogger
}

// Cfg configures a Service.
type Cfg func(*Service) error

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Cfg {
	return func(s *Service) error {
		s.logger = l
		return nil
	}
}

// WithSessionCount sets a function reporting the number of live sessions.
// It is called from the health goroutine.
func WithSessionCount(fn func() int) Cfg {
	return func(s *Service) error {
		s.sessions = fn
		return nil
	}
}

// WithReportInterval sets how often the session count is logged.
func WithReportInterval(d time.Duration) Cfg {
	return func(s *Service) error {
		if d <= 0 {
			return errors.Errorf("report interval must be positive, got %s", d)
		}
		s.report = d
		return nil
	}
}

// NewService creates a Service reporting NOT_SERVING until SetServing is called.
func NewService(cfgs ...Cfg) (*Service, error) {
	s := &Service{
		server: grpc.NewServer(),
		health: health.NewServer(),
		report: DefaultReportInterval,
		logger: logger,
	}
	for _, cfg := range cfgs {
		if err := cfg(s); err != nil {
			return nil, errors.Wrap(err, "apply health Service cfg failed")
		}
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.SetServing(false)
	return s, nil
}

// SetServing updates the reported status.
func (s *Service) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	s.logger.WithFields(s.fields()).WithField("status", status.String()).Debug("health status changed")
}

// Sessions returns the number of live sessions, or 0 without a session count.
func (s *Service) Sessions() int {
	if s.sessions == nil {
		return 0
	}
	return s.sessions()
}

func (s *Service) fields() logrus.Fields {
	return logrus.Fields{"sessions": s.Sessions()}
}

// Serve accepts health checks on lis until ctx is cancelled and periodically
// logs the session count.
func (s *Service) Serve(ctx context.Context, lis net.Listener) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		ticker := time.NewTicker(s.report)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.server.GracefulStop()
				return
			case <-stopped:
				return
			case <-ticker.C:
				if s.sessions != nil {
					s.logger.WithFields(s.fields()).Info("session count")
				}
			}
		}
	}()
	s.logger.WithField("addr", lis.Addr().String()).Info("health service listening")
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errors.Wrap(err, "serve health failed")
	}
	return nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Service) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s failed", addr)
	}
	return s.Serve(ctx, lis)
}
