package cfg

import (
	"bytes"
	"io"
	"os"

	"dungeon/internal"
	"dungeon/internal/app/apps"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileCfg is the server policy read from a YAML file. Keys missing from the
// file keep their default value.
//
//	retransmit_interval: 3s
//	max_retransmits: 10
//	max_backoff: 30s
//	enforce_blacklist: true
//	trust:
//	  spoof: 5
//	  melee_replay: 1
//	rate_limit:
//	  per_second: 50
//	  burst: 100
type FileCfg struct {
	policy apps.Policy
}

// NewFileCfg parses the policy in data.
func NewFileCfg(data []byte) (*FileCfg, error) {
	policy := apps.DefaultPolicy()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&policy); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode policy failed")
	}
	return &FileCfg{policy: policy}, nil
}

// LoadFileCfg reads the policy file at path.
func LoadFileCfg(path string) (*FileCfg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s failed", path)
	}
	return NewFileCfg(data)
}

// FileFromEnv reads the policy file named in the current environment, or
// returns the default policy when none is named.
func FileFromEnv() (*FileCfg, error) {
	if internal.ConfigPath == "" {
		return &FileCfg{policy: apps.DefaultPolicy()}, nil
	}
	return LoadFileCfg(internal.ConfigPath)
}

// ApplyServerApp applies the FileCfg to a ServerApp.
func (cfg FileCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.Policy = cfg.policy
	return nil
}
