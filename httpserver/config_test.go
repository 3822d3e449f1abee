/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-msglimit/config"
)

func loadConfig(t *testing.T, data string, cfg *Config) error {
	t.Helper()
	return config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
}

func TestConfig_Load(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		require.NoError(t, loadConfig(t, "{}", cfg))
		wantCfg := NewDefaultConfig()
		require.Equal(t, wantCfg, cfg)
	})

	t.Run("all values", func(t *testing.T) {
		cfgData := `
server:
  address: "127.0.0.1:9090"
  requestIDHeader: X-Trace-ID
  timeouts:
    write: 2m
    read: 20s
    readHeader: 5s
    idle: 3m
    shutdown: 10s
  limits:
    maxBodySize: 64K
  tls:
    enabled: true
    cert: /etc/msglimit/cert.pem
    key: /etc/msglimit/key.pem
`
		cfg := NewConfig()
		require.NoError(t, loadConfig(t, cfgData, cfg))
		require.Equal(t, "127.0.0.1:9090", cfg.Address)
		require.Equal(t, "X-Trace-ID", cfg.RequestIDHeader)
		require.Equal(t, TimeoutsConfig{
			Write:      config.TimeDuration(2 * time.Minute),
			Read:       config.TimeDuration(20 * time.Second),
			ReadHeader: config.TimeDuration(5 * time.Second),
			Idle:       config.TimeDuration(3 * time.Minute),
			Shutdown:   config.TimeDuration(10 * time.Second),
		}, cfg.Timeouts)
		require.Equal(t, config.ByteSize(64*1024), cfg.Limits.MaxBodySize)
		require.Equal(t, TLSConfig{Enabled: true, Certificate: "/etc/msglimit/cert.pem", Key: "/etc/msglimit/key.pem"}, cfg.TLS)
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfg := NewConfig(WithKeyPrefix("api.server"))
		require.NoError(t, loadConfig(t, "api:\n  server:\n    unixSocketPath: /tmp/msglimit.sock\n", cfg))
		require.Equal(t, "/tmp/msglimit.sock", cfg.UnixSocketPath)
		require.Equal(t, DefaultAddress, cfg.Address)
	})
}

func TestConfig_LoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		wantErr string
	}{
		{
			name:    "no address",
			cfgData: "server:\n  address: \"\"\n",
			wantErr: "server.address: either address or unixSocketPath should be set",
		},
		{
			name:    "negative timeout",
			cfgData: "server:\n  timeouts:\n    shutdown: -1s\n",
			wantErr: "server.timeouts.shutdown: should be >= 0",
		},
		{
			name:    "tls without key",
			cfgData: "server:\n  tls:\n    enabled: true\n    cert: cert.pem\n",
			wantErr: "server.tls.key: both cert and key should be set",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, loadConfig(t, tt.cfgData, NewConfig()), tt.wantErr)
		})
	}
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("address: \":8081\"\ntimeouts:\n  shutdown: 3s\nlimits:\n  maxBodySize: 1M\n"), &cfg))
	require.Equal(t, ":8081", cfg.Address)
	require.Equal(t, config.TimeDuration(3*time.Second), cfg.Timeouts.Shutdown)
	require.Equal(t, config.ByteSize(1024*1024), cfg.Limits.MaxBodySize)
}
