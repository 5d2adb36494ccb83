package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_lsb/internal/spec"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simulacra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	config, err := NewConfig("")
	require.NoError(t, err)
	require.Equal(t, NewDefaultConfig(), config)
	require.Equal(t, uint32(log.InfoLevel), config.LogLevel)
	require.Equal(t, spec.DEFAULT_PREFIX, config.Output.Prefix)
	require.Equal(t, spec.PBKDF2_ITERS, config.Key.Iterations)
	require.Equal(t, DefaultDomain, config.DNS.Domain)
}

func TestNewConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
output:
  dir: /tmp/stego
  prefix: hidden_
key:
  passphrase:
    salt: pepper
    iterations: 5000
dns:
  domain: covert.example.org.
  addr: 127.0.0.1:8053
  http: 127.0.0.1:8080
  storage: /tmp/records.json
  chunk:
    payload: 100
  ttl: 30
  timeout: 2s
  retention: 1h
  concurrency: 8
`)
	config, err := NewConfig(path)
	require.NoError(t, err)
	require.Equal(t, uint32(log.DebugLevel), config.LogLevel)
	require.Equal(t, "/tmp/stego", config.Output.Dir)
	require.Equal(t, "hidden_", config.Output.Prefix)
	require.Equal(t, "pepper", config.Key.Salt)
	require.Equal(t, 5000, config.Key.Iterations)
	require.Equal(t, "covert.example.org.", config.DNS.Domain)
	require.Equal(t, "127.0.0.1:8053", config.DNS.Addr)
	require.Equal(t, "127.0.0.1:8080", config.DNS.HTTPAddr)
	require.Equal(t, "/tmp/records.json", config.DNS.Storage)
	require.Equal(t, 100, config.DNS.ChunkPayload)
	require.Equal(t, uint32(30), config.DNS.TTL)
	require.Equal(t, 2*time.Second, config.DNS.Timeout)
	require.Equal(t, time.Hour, config.DNS.Retention)
	require.Equal(t, 8, config.DNS.Concurrency)
}

func TestNewConfigPartialKeepsDefaults(t *testing.T) {
	config, err := NewConfig(writeConfig(t, "output:\n  prefix: x_\n"))
	require.NoError(t, err)
	require.Equal(t, "x_", config.Output.Prefix)
	require.Equal(t, spec.DEFAULT_SALT, config.Key.Salt)
	require.Equal(t, DefaultDNSAddr, config.DNS.Addr)
	require.Zero(t, config.DNS.Retention)
	require.Equal(t, 4, config.DNS.Concurrency)
}

func TestNewConfigErrors(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = NewConfig(writeConfig(t, "log:\n  level: loud\n"))
	require.Error(t, err)

	_, err = NewConfig(writeConfig(t, "key:\n  passphrase:\n    iterations: 0\n"))
	require.Error(t, err)

	_, err = NewConfig(writeConfig(t, "dns:\n  timeout: soon\n"))
	require.Error(t, err)

	_, err = NewConfig(writeConfig(t, "dns:\n  concurrency: 0\n"))
	require.Error(t, err)
}
