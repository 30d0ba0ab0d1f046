package apps

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"dungeon/internal/pkg/handler"
	"dungeon/internal/pkg/health"
	"dungeon/internal/pkg/reliable"
	"dungeon/internal/pkg/server"
	"dungeon/internal/pkg/session"
	"dungeon/internal/pkg/transport"
	"dungeon/internal/pkg/trust"
	"dungeon/internal/pkg/validate"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// ServerAppCfg configures a ServerApp.
type ServerAppCfg interface {
	ApplyServerApp(*ServerApp) error
}

// RateLimit configures per-endpoint ingress limiting. A zero PerSecond
// disables it.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second" validate:"min=0"`
	Burst     int     `yaml:"burst" validate:"required_with=PerSecond,min=0"`
}

// Policy holds the tunable protocol behaviour of the server.
type Policy struct {
	RetransmitInterval time.Duration `yaml:"retransmit_interval" validate:"gt=0"`
	// MaxRetransmits of 0 retransmits forever.
	MaxRetransmits int `yaml:"max_retransmits" validate:"min=0"`
	// MaxBackoff of 0 retransmits at a fixed interval.
	MaxBackoff       time.Duration  `yaml:"max_backoff" validate:"min=0"`
	EnforceBlacklist bool           `yaml:"enforce_blacklist"`
	Trust            trust.Schedule `yaml:"trust"`
	RateLimit        RateLimit      `yaml:"rate_limit"`
}

// DefaultPolicy returns the policy used when no policy file is given.
func DefaultPolicy() Policy {
	return Policy{
		RetransmitInterval: reliable.DefaultInterval,
		MaxRetransmits:     reliable.DefaultMaxRetransmits,
		Trust:              trust.DefaultSchedule(),
	}
}

// ServerApp is the dungeon session server application.
type ServerApp struct {
	Bind string `validate:"required,ip"`
	// Port 0 binds any free port.
	Port          uint16
	HealthPort    uint16
	SweepInterval time.Duration `validate:"gt=0"`
	Policy        Policy

	// Ready, when set, receives the bound UDP address once the socket is open.
	Ready chan<- net.Addr
}

// NewServerApp creates a new ServerApp.
func NewServerApp(cfgs ...ServerAppCfg) (*ServerApp, error) {
	app := &ServerApp{
		Bind:          "0.0.0.0",
		SweepInterval: server.DefaultSweepInterval,
		Policy:        DefaultPolicy(),
	}
	for _, cfg := range cfgs {
		if err := cfg.ApplyServerApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ServerApp cfg failed")
		}
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ServerApp failed")
	}
	return app, nil
}

// Run serves until ctx is cancelled.
func (app *ServerApp) Run(ctx context.Context, _ []string) error {
	udp, err := transport.ListenUDP(net.JoinHostPort(app.Bind, strconv.Itoa(int(app.Port))))
	if err != nil {
		return errors.Wrap(err, "listen failed")
	}
	store := session.NewMemoryStore()
	var scfgs []server.Cfg
	var hs *health.Service
	if app.HealthPort != 0 {
		hs, err = health.NewService(health.WithSessionCount(store.Len))
		if err != nil {
			_ = udp.Close()
			return errors.Wrap(err, "create health service failed")
		}
		scfgs = append(scfgs, server.WithStatusHook(hs.SetServing))
	}
	srv, err := app.newServer(store, udp, scfgs...)
	if err != nil {
		_ = udp.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	if hs != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr := net.JoinHostPort(app.Bind, strconv.Itoa(int(app.HealthPort)))
			if err := hs.ListenAndServe(ctx, addr); err != nil {
				logger.WithError(err).Error("health service failed")
			}
		}()
	}
	if app.Ready != nil {
		app.Ready <- udp.LocalAddr()
	}

	err = srv.Run(ctx)
	cancel()
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return errors.Wrap(err, "run server failed")
}

func (app *ServerApp) newServer(store session.Store, t transport.Transport, extra ...server.Cfg) (*server.Server, error) {
	p := app.Policy
	tm, err := trust.NewManager(store, trust.WithSchedule(p.Trust))
	if err != nil {
		return nil, errors.Wrap(err, "create trust manager failed")
	}
	rcfgs := []reliable.Cfg{
		reliable.WithInterval(p.RetransmitInterval),
		reliable.WithMaxRetransmits(p.MaxRetransmits),
	}
	if p.MaxBackoff > 0 {
		rcfgs = append(rcfgs, reliable.WithBackoff(p.MaxBackoff))
	}
	rm, err := reliable.NewManager(store, t, rcfgs...)
	if err != nil {
		return nil, errors.Wrap(err, "create reliable manager failed")
	}
	hcfgs := []handler.Cfg{
		handler.WithSessionStore(store),
		handler.WithTrust(tm),
		handler.WithReliable(rm),
		handler.WithBlacklistEnforced(p.EnforceBlacklist),
	}
	if p.RateLimit.PerSecond > 0 {
		hcfgs = append(hcfgs, handler.WithLimiter(handler.NewLimiter(p.RateLimit.PerSecond, p.RateLimit.Burst)))
	}
	h, err := handler.NewHandler(hcfgs...)
	if err != nil {
		return nil, errors.Wrap(err, "create handler failed")
	}
	scfgs := append([]server.Cfg{
		server.WithTransport(t),
		server.WithHandler(h),
		server.WithSweepInterval(app.SweepInterval),
	}, extra...)
	srv, err := server.NewServer(scfgs...)
	return srv, errors.Wrap(err, "create server failed")
}
