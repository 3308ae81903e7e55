package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Template renders cfg as a config file.
func Template(cfg Config) ([]byte, error) {
	raw := fileConfig{
		Address:       cfg.Address,
		Port:          cfg.Port,
		Timeout:       cfg.Timeout.String(),
		Retries:       cfg.Retries,
		Verbosity:     cfg.Verbosity,
		MCTPVerbosity: cfg.MCTPVerbosity,
		NoInit:        cfg.NoInit,
		PoolSize:      cfg.PoolSize,
		Backoff: fileBackoff{
			Initial:    cfg.Backoff.InitialDelay.String(),
			Max:        cfg.Backoff.MaxDelay.String(),
			Multiplier: cfg.Backoff.Multiplier,
			Jitter:     cfg.Backoff.Jitter,
		},
		SSH: fileSSH{
			Jump:                  cfg.SSH.Jump,
			User:                  cfg.SSH.User,
			KeyPath:               cfg.SSH.KeyPath,
			KnownHosts:            cfg.SSH.KnownHosts,
			InsecureIgnoreHostKey: cfg.SSH.InsecureIgnoreHostKey,
		},
		Serve: fileServe{
			Listen:      cfg.Serve.Listen,
			Refresh:     cfg.Serve.Refresh.String(),
			CorsOrigins: cfg.Serve.CorsOrigins,
		},
	}
	return toml.Marshal(raw)
}

// WriteTemplate writes the default config to path, creating its directory.
func WriteTemplate(path string, overwrite bool) error {
	data, err := Template(Default())
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
