package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Dialer opens the stream carrying MCTP frames.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SSHConfig routes the switch connection through an SSH jump host on the
// management network.
type SSHConfig struct {
	Host                        string
	Port                        int
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

// NewDialer returns a direct TCP dialer, or an SSH jump dialer when cfg
// names one.
func NewDialer(cfg Config) (Dialer, error) {
	if cfg.SSH == nil || strings.TrimSpace(cfg.SSH.Host) == "" {
		return &net.Dialer{Timeout: cfg.DialTimeout}, nil
	}
	return &SSHDialer{Config: *cfg.SSH}, nil
}

// SSHDialer dials the switch from the far side of an SSH connection.
type SSHDialer struct {
	Config SSHConfig
}

func (d *SSHDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	client, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ssh jump %s: %w", d.Config.Host, err)
	}
	return &jumpConn{Conn: conn, client: client}, nil
}

// jumpConn closes the SSH client along with the tunneled stream.
type jumpConn struct {
	net.Conn
	client *ssh.Client
}

func (c *jumpConn) Close() error {
	err := c.Conn.Close()
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (d *SSHDialer) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := d.address()
	if err != nil {
		return nil, err
	}

	config, err := d.clientConfig()
	if err != nil {
		return nil, err
	}

	nd := net.Dialer{Timeout: d.Config.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (d *SSHDialer) address() (string, error) {
	host := strings.TrimSpace(d.Config.Host)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}

	if d.Config.Port != 0 {
		return net.JoinHostPort(host, strconv.Itoa(d.Config.Port)), nil
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}

	return net.JoinHostPort(host, "22"), nil
}

func (d *SSHDialer) clientConfig() (*ssh.ClientConfig, error) {
	if d.Config.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}

	signer, err := d.signer()
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if d.Config.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := d.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            d.Config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.Config.Timeout,
	}, nil
}

func (d *SSHDialer) signer() (ssh.Signer, error) {
	if d.Config.KeyPath == "" {
		return nil, fmt.Errorf("ssh key path is required")
	}

	privateKey, err := os.ReadFile(d.Config.KeyPath)
	if err != nil {
		return nil, err
	}

	if len(d.Config.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, d.Config.Passphrase)
	}

	return ssh.ParsePrivateKey(privateKey)
}

func (d *SSHDialer) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(d.Config.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	return knownhosts.New(path)
}
