package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/cxlctl/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAddress, EnvPort, EnvVerbosity, EnvMCTPVerbosity} {
		t.Setenv(k, "")
	}
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	path := writeFile(t, `
address = "10.0.0.7"
timeout = "2s"
retries = 3

[backoff]
max = "500ms"

[ssh]
jump = "bastion.lab:2222"
user = "fm"

[serve]
listen = "127.0.0.1:9200"
`)
	cfg, err := Load(path, true)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, "10.0.0.7", cfg.Address)
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.MaxDelay)
	assert.Equal(t, def.Backoff.InitialDelay, cfg.Backoff.InitialDelay)
	assert.Equal(t, "127.0.0.1:9200", cfg.Serve.Listen)
	assert.Equal(t, def.Serve.Refresh, cfg.Serve.Refresh)

	tc, err := cfg.Transport()
	require.NoError(t, err)
	require.NotNil(t, tc.SSH)
	assert.Equal(t, "bastion.lab", tc.SSH.Host)
	assert.Equal(t, 2222, tc.SSH.Port)
	assert.Equal(t, "fm", tc.SSH.User)
	assert.Equal(t, 3, tc.Retries)
	assert.Equal(t, 3, cfg.Action().Retries)
}

func TestTransportJumpWithoutPort(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	cfg.SSH.Jump = "bastion.lab"
	cfg.SSH.User = "fm"

	tc, err := cfg.Transport()
	require.NoError(t, err)
	require.NotNil(t, tc.SSH)
	assert.Equal(t, "bastion.lab", tc.SSH.Host)
	assert.Zero(t, tc.SSH.Port)

	cfg.SSH.Jump = "bastion.lab:ssh"
	_, err = cfg.Transport()
	require.ErrorIs(t, err, ErrInvalid)
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(path, true)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	t.Setenv(EnvAddress, "192.168.1.20")
	t.Setenv(EnvPort, "0x9cc")
	t.Setenv(EnvVerbosity, "3")
	t.Setenv(EnvMCTPVerbosity, "0x4")
	path := writeFile(t, "address = \"10.0.0.7\"\nport = 4000\n")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", cfg.Address)
	assert.Equal(t, 2508, cfg.Port)
	assert.Equal(t, uint64(3), cfg.Verbosity)
	assert.Equal(t, uint64(4), cfg.MCTPVerbosity)
}

func TestBadValues(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)

	_, err := Load(writeFile(t, "timeout = \"soon\"\n"), true)
	assert.ErrorContains(t, err, "parse timeout")

	_, err = Load(writeFile(t, "port = 0\n"), true)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeFile(t, "pool_size = 1\n"), true)
	assert.ErrorIs(t, err, ErrInvalid)

	t.Setenv(EnvPort, "seventy")
	_, err = Load(writeFile(t, ""), true)
	assert.ErrorContains(t, err, EnvPort)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Retries = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg = Default()
	cfg.Timeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestWriteTemplateRoundTrip(t *testing.T) {
	testlog.Start(t)
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cxlctl", "config.toml")

	require.NoError(t, WriteTemplate(path, false))
	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	assert.Error(t, WriteTemplate(path, false))
	assert.NoError(t, WriteTemplate(path, true))
}
