// Package internal holds the process-wide settings shared by the dungeon
// commands: flag descriptors, their environment fallbacks and validation.
package internal

import (
	"io/fs"
	"os"

	"dungeon/internal/pkg/validate"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Settings populated from flags or the environment.
var (
	Env        string
	LogLevel   string
	Bind       string
	Port       int
	HealthPort int
	ConfigPath string

	ServerSweepMS int

	ClientTickerMS int
	ClientMoves    int
)

// Flag describes a command line flag with an environment variable fallback.
type Flag struct {
	Name  string
	Env   string
	Usage string

	str    *string
	strDef string
	num    *int
	numDef int

	flag *pflag.Flag
}

// Flag definitions.
var (
	EnvFlag = Flag{
		Name: "env", Env: "DUNGEON_ENV", Usage: "deployment environment (development, production)",
		str: &Env, strDef: "development",
	}
	LogLevelFlag = Flag{
		Name: "log-level", Env: "DUNGEON_LOG_LEVEL", Usage: "log level (trace, debug, info, warn, error)",
		str: &LogLevel, strDef: "info",
	}
	BindFlag = Flag{
		Name: "bind", Env: "DUNGEON_BIND", Usage: "address the UDP socket binds to",
		str: &Bind, strDef: "0.0.0.0",
	}
	PortFlag = Flag{
		Name: "port", Env: "DUNGEON_PORT", Usage: "UDP port of the session server",
		num: &Port, numDef: 9999,
	}
	HealthPortFlag = Flag{
		Name: "health-port", Env: "DUNGEON_HEALTH_PORT", Usage: "gRPC health port, 0 disables it",
		num: &HealthPort, numDef: 9998,
	}
	ConfigFlag = Flag{
		Name: "config", Env: "DUNGEON_CONFIG", Usage: "optional YAML policy file",
		str: &ConfigPath,
	}
	ServerSweepMSFlag = Flag{
		Name: "sweep-ms", Env: "DUNGEON_SWEEP_MS", Usage: "interval between retransmission sweeps in milliseconds",
		num: &ServerSweepMS, numDef: 250,
	}
	ClientTickerMSFlag = Flag{
		Name: "ticker-ms", Env: "DUNGEON_CLIENT_TICKER_MS", Usage: "interval between client position updates in milliseconds",
		num: &ClientTickerMS, numDef: 100,
	}
	ClientMovesFlag = Flag{
		Name: "moves", Env: "DUNGEON_CLIENT_MOVES", Usage: "number of position updates the client sends before exiting",
		num: &ClientMoves, numDef: 20,
	}
)

var registered []*Flag

// RegisterCommandFlags registers flags as persistent flags on cmd.
func RegisterCommandFlags(cmd *cobra.Command, flags []*Flag) error {
	set := cmd.PersistentFlags()
	for _, f := range flags {
		switch {
		case f.str != nil:
			set.StringVar(f.str, f.Name, f.strDef, f.Usage+" [$"+f.Env+"]")
		case f.num != nil:
			set.IntVar(f.num, f.Name, f.numDef, f.Usage+" [$"+f.Env+"]")
		default:
			return errors.Errorf("flag %s has no value", f.Name)
		}
		f.flag = set.Lookup(f.Name)
		registered = append(registered, f)
	}
	return nil
}

// env holds the settings to validate. Settings of flags the running command
// did not register are zero and skipped.
type env struct {
	Env        string `validate:"oneof=development production test"`
	LogLevel   string `validate:"oneof=trace debug info warn error"`
	Bind       string `validate:"omitempty,ip"`
	Port       int    `validate:"min=0,max=65535"`
	HealthPort int    `validate:"min=0,max=65535"`
	SweepMS    int    `validate:"omitempty,min=1"`
	TickerMS   int    `validate:"omitempty,min=1"`
	Moves      int    `validate:"min=0"`
}

// ValidateEnv loads a .env file when present, applies environment variables
// to flags that were not set on the command line and validates the result.
func ValidateEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "load .env failed")
	}
	for _, f := range registered {
		v, ok := os.LookupEnv(f.Env)
		if !ok || f.flag == nil || f.flag.Changed {
			continue
		}
		if err := f.flag.Value.Set(v); err != nil {
			return errors.Wrapf(err, "parse $%s failed", f.Env)
		}
	}
	return errors.Wrap(validate.Validate().Struct(env{
		Env:        Env,
		LogLevel:   LogLevel,
		Bind:       Bind,
		Port:       Port,
		HealthPort: HealthPort,
		SweepMS:    ServerSweepMS,
		TickerMS:   ClientTickerMS,
		Moves:      ClientMoves,
	}), "validate env failed")
}
