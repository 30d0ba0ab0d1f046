package cfg

import (
	"dungeon/internal"
	"dungeon/internal/app/apps"
)

// BindCfg is configuration for the address the server binds to.
type BindCfg struct {
	addr string
}

// NewBindCfg creates a new BindCfg from the given config.
func NewBindCfg(addr string) *BindCfg {
	return &BindCfg{addr: addr}
}

// BindFromEnv creates a new BindCfg from the current environment.
func BindFromEnv() *BindCfg {
	return &BindCfg{addr: internal.Bind}
}

// ApplyServerApp applies the BindCfg to a ServerApp.
func (cfg BindCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.Bind = cfg.addr
	return nil
}
