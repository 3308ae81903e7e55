package transport

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// BackoffConfig defines the spacing of request retries.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines how the client reaches and talks to a switch endpoint.
type Config struct {
	Address      string
	Port         int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Timeout      time.Duration
	Retries      int
	PoolSize     int
	SourceEID    uint8
	DestEID      uint8
	Verbosity    uint64
	Backoff      BackoffConfig
	SSH          *SSHConfig
}

func DefaultConfig() Config {
	return Config{
		Address:      "127.0.0.1",
		Port:         2508,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		Timeout:      10 * time.Second,
		Retries:      0,
		PoolSize:     32,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
	}
}

// Endpoint is the host:port of the switch.
func (c Config) Endpoint() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("transport: address is required")
	}
	if c.Port <= 0 || c.Port > 0xFFFF {
		return fmt.Errorf("transport: invalid port %d", c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("transport: timeout must be positive")
	}
	if c.Retries < 0 {
		return fmt.Errorf("transport: retries must not be negative")
	}
	if c.PoolSize < 2 {
		return fmt.Errorf("transport: pool size must be at least 2")
	}
	return nil
}
