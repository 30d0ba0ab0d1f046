package cfg

import (
	"time"

	"dungeon/internal"
	"dungeon/internal/app/apps"
)

// SweepCfg is configuration for the retransmission sweep cadence.
type SweepCfg struct {
	interval time.Duration
}

// NewSweepCfg creates a new SweepCfg from the given config.
func NewSweepCfg(interval time.Duration) *SweepCfg {
	return &SweepCfg{interval: interval}
}

// SweepFromEnv creates a new SweepCfg from the current environment.
func SweepFromEnv() *SweepCfg {
	return &SweepCfg{interval: time.Duration(internal.ServerSweepMS) * time.Millisecond}
}

// ApplyServerApp applies the SweepCfg to a ServerApp.
func (cfg SweepCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.SweepInterval = cfg.interval
	return nil
}

// PlayCfg is configuration for how the demo client plays.
type PlayCfg struct {
	ticker time.Duration
	moves  int
}

// NewPlayCfg creates a new PlayCfg from the given config.
func NewPlayCfg(ticker time.Duration, moves int) *PlayCfg {
	return &PlayCfg{ticker: ticker, moves: moves}
}

// PlayFromEnv creates a new PlayCfg from the current environment.
func PlayFromEnv() *PlayCfg {
	return &PlayCfg{
		ticker: time.Duration(internal.ClientTickerMS) * time.Millisecond,
		moves:  internal.ClientMoves,
	}
}

// ApplyClientApp applies the PlayCfg to a ClientApp.
func (cfg PlayCfg) ApplyClientApp(app *apps.ClientApp) error {
	app.TickerInterval = cfg.ticker
	app.Moves = cfg.moves
	return nil
}
