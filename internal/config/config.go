// Package config loads the cxlctl configuration file and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/cxlctl/internal/action"
	"github.com/danmuck/cxlctl/internal/transport"
)

const (
	EnvAddress       = "CXLCTL_TCP_ADDRESS"
	EnvPort          = "CXLCTL_TCP_PORT"
	EnvVerbosity     = "CXLCTL_VERBOSITY"
	EnvMCTPVerbosity = "CXLCTL_MCTP_VERBOSITY"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Address       string
	Port          int
	Timeout       time.Duration
	Retries       int
	Verbosity     uint64
	MCTPVerbosity uint64
	NoInit        bool
	PoolSize      int
	Backoff       transport.BackoffConfig
	SSH           SSHConfig
	Serve         ServeConfig
}

// SSHConfig names an optional jump host that carries the switch connection.
type SSHConfig struct {
	Jump                  string
	User                  string
	KeyPath               string
	KnownHosts            string
	InsecureIgnoreHostKey bool
}

type ServeConfig struct {
	Listen      string
	Refresh     time.Duration
	CorsOrigins []string
}

func Default() Config {
	t := transport.DefaultConfig()
	return Config{
		Address:  t.Address,
		Port:     t.Port,
		Timeout:  action.DefaultTimeout,
		Retries:  0,
		PoolSize: t.PoolSize,
		Backoff:  t.Backoff,
		Serve: ServeConfig{
			Listen:      ":9109",
			Refresh:     30 * time.Second,
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

// DefaultPath is config.toml under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "cxlctl", "config.toml")
}

type fileConfig struct {
	Address       string      `toml:"address"`
	Port          int         `toml:"port"`
	Timeout       string      `toml:"timeout"`
	Retries       int         `toml:"retries"`
	Verbosity     uint64      `toml:"verbosity"`
	MCTPVerbosity uint64      `toml:"mctp_verbosity"`
	NoInit        bool        `toml:"no_init"`
	PoolSize      int         `toml:"pool_size"`
	Backoff       fileBackoff `toml:"backoff"`
	SSH           fileSSH     `toml:"ssh"`
	Serve         fileServe   `toml:"serve"`
}

type fileBackoff struct {
	Initial    string  `toml:"initial"`
	Max        string  `toml:"max"`
	Multiplier float64 `toml:"multiplier"`
	Jitter     bool    `toml:"jitter"`
}

type fileSSH struct {
	Jump                  string `toml:"jump"`
	User                  string `toml:"user"`
	KeyPath               string `toml:"key_path"`
	KnownHosts            string `toml:"known_hosts"`
	InsecureIgnoreHostKey bool   `toml:"insecure_ignore_host_key"`
}

type fileServe struct {
	Listen      string   `toml:"listen"`
	Refresh     string   `toml:"refresh"`
	CorsOrigins []string `toml:"cors_origins"`
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file yields the defaults unless mustExist is set.
func Load(path string, mustExist bool) (Config, error) {
	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || mustExist {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("timeout") {
		if cfg.Timeout, err = parseDuration("timeout", raw.Timeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("retries") {
		cfg.Retries = raw.Retries
	}
	if meta.IsDefined("verbosity") {
		cfg.Verbosity = raw.Verbosity
	}
	if meta.IsDefined("mctp_verbosity") {
		cfg.MCTPVerbosity = raw.MCTPVerbosity
	}
	if meta.IsDefined("no_init") {
		cfg.NoInit = raw.NoInit
	}
	if meta.IsDefined("pool_size") {
		cfg.PoolSize = raw.PoolSize
	}

	if meta.IsDefined("backoff", "initial") {
		if cfg.Backoff.InitialDelay, err = parseDuration("backoff.initial", raw.Backoff.Initial); err != nil {
			return err
		}
	}
	if meta.IsDefined("backoff", "max") {
		if cfg.Backoff.MaxDelay, err = parseDuration("backoff.max", raw.Backoff.Max); err != nil {
			return err
		}
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Backoff.Jitter = raw.Backoff.Jitter
	}

	if meta.IsDefined("ssh") {
		cfg.SSH = SSHConfig{
			Jump:                  strings.TrimSpace(raw.SSH.Jump),
			User:                  strings.TrimSpace(raw.SSH.User),
			KeyPath:               strings.TrimSpace(raw.SSH.KeyPath),
			KnownHosts:            strings.TrimSpace(raw.SSH.KnownHosts),
			InsecureIgnoreHostKey: raw.SSH.InsecureIgnoreHostKey,
		}
	}

	if meta.IsDefined("serve", "listen") {
		cfg.Serve.Listen = strings.TrimSpace(raw.Serve.Listen)
	}
	if meta.IsDefined("serve", "refresh") {
		if cfg.Serve.Refresh, err = parseDuration("serve.refresh", raw.Serve.Refresh); err != nil {
			return err
		}
	}
	if meta.IsDefined("serve", "cors_origins") {
		cfg.Serve.CorsOrigins = raw.Serve.CorsOrigins
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvAddress)); v != "" {
		cfg.Address = v
	}
	if v := strings.TrimSpace(getenv(EnvPort)); v != "" {
		port, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvPort, err)
		}
		cfg.Port = int(port)
	}
	if v := strings.TrimSpace(getenv(EnvVerbosity)); v != "" {
		mask, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvVerbosity, err)
		}
		cfg.Verbosity = mask
	}
	if v := strings.TrimSpace(getenv(EnvMCTPVerbosity)); v != "" {
		mask, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvMCTPVerbosity, err)
		}
		cfg.MCTPVerbosity = mask
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalid)
	}
	if c.Port <= 0 || c.Port > 0xFFFF {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative", ErrInvalid)
	}
	if c.PoolSize < 2 {
		return fmt.Errorf("%w: pool_size must be at least 2", ErrInvalid)
	}
	if c.Serve.Refresh < 0 {
		return fmt.Errorf("%w: serve.refresh must not be negative", ErrInvalid)
	}
	return nil
}

// Transport derives the connection settings of the action bus.
func (c Config) Transport() (transport.Config, error) {
	t := transport.DefaultConfig()
	t.Address = c.Address
	t.Port = c.Port
	t.Timeout = c.Timeout
	t.Retries = c.Retries
	t.PoolSize = c.PoolSize
	t.Verbosity = c.MCTPVerbosity
	t.Backoff = c.Backoff
	if c.SSH.Jump == "" {
		return t, nil
	}

	host, port := c.SSH.Jump, 0
	if h, p, err := net.SplitHostPort(c.SSH.Jump); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return transport.Config{}, fmt.Errorf("%w: ssh.jump port %q", ErrInvalid, p)
		}
		host, port = h, n
	}
	t.SSH = &transport.SSHConfig{
		Host:                        host,
		Port:                        port,
		User:                        c.SSH.User,
		KeyPath:                     c.SSH.KeyPath,
		KnownHostsPath:              c.SSH.KnownHosts,
		InsecureSkipHostKeyChecking: c.SSH.InsecureIgnoreHostKey,
		Timeout:                     t.DialTimeout,
	}
	return t, nil
}

// Action is the submission policy for every request.
func (c Config) Action() action.Config {
	return action.Config{Retries: c.Retries, Timeout: c.Timeout}
}
