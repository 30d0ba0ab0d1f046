package apps

import (
	"context"
	"net/netip"
	"time"

	"dungeon/internal/pkg/client"
	"dungeon/internal/pkg/validate"

	"github.com/pkg/errors"
)

// ClientAppCfg configures a ClientApp.
type ClientAppCfg interface {
	ApplyClientApp(*ClientApp) error
}

// ClientApp is the demo dungeon client application.
type ClientApp struct {
	Host           string        `validate:"required,ip"`
	Port           uint16        `validate:"required"`
	TickerInterval time.Duration `validate:"gt=0"`
	Moves          int           `validate:"min=0"`
}

// NewClientApp creates a new ClientApp.
func NewClientApp(cfgs ...ClientAppCfg) (*ClientApp, error) {
	app := &ClientApp{
		Host:           "127.0.0.1",
		TickerInterval: client.DefaultTickerInterval,
		Moves:          client.DefaultMoves,
	}
	for _, cfg := range cfgs {
		if err := cfg.ApplyClientApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ClientApp cfg failed")
		}
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ClientApp failed")
	}
	return app, nil
}

// Run plays one demo round against the server.
func (app *ClientApp) Run(ctx context.Context, _ []string) error {
	host, err := netip.ParseAddr(app.Host)
	if err != nil {
		return errors.Wrap(err, "parse host failed")
	}
	c, err := client.NewClient(
		client.WithServerAddr(netip.AddrPortFrom(host, app.Port)),
		client.WithTickerInterval(app.TickerInterval),
		client.WithMoves(app.Moves),
	)
	if err != nil {
		return errors.Wrap(err, "create client failed")
	}
	return errors.Wrap(c.Run(ctx), "run client failed")
}
