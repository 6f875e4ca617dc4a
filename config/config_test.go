package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"/ip4/0.0.0.0/tcp/0"}, cfg.Transport.ListenAddrs)
	assert.False(t, cfg.Discovery.EnableMDNS)
	assert.Equal(t, 6, cfg.PubSub.D)
	assert.Equal(t, 5*time.Minute, cfg.Discovery.Interval.Duration())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no transport", func(c *Config) {
			c.Transport.EnableTCP, c.Transport.EnableWebSocket, c.Transport.EnableQUIC = false, false, false
		}},
		{"bad listen addr", func(c *Config) { c.Transport.ListenAddrs = []string{"tcp://1.2.3.4"} }},
		{"bad bootstrap addr", func(c *Config) { c.Discovery.Bootstrap = []string{"not-a-multiaddr"} }},
		{"passphrase without file", func(c *Config) { c.Identity.Passphrase = "secret" }},
		{"degree order", func(c *Config) { c.PubSub.Dlo = 8 }},
		{"backoff order", func(c *Config) { c.Swarm.BackoffMax = Duration(time.Millisecond) }},
		{"small window", func(c *Config) { c.Security.MaxStreamWindow = 1024 }},
		{"bad metrics addr", func(c *Config) { c.Metrics.Enabled, c.Metrics.ListenAddr = true, "9100" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrInvalid)
}

func TestDuration_JSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1m30s","b":1000}`), &v))
	assert.Equal(t, 90*time.Second, v.A.Duration())
	assert.Equal(t, time.Microsecond, v.B.Duration())

	out, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"soon"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshchat.json")
	data := `{
		"transport": {"listen_addrs": ["/ip4/127.0.0.1/tcp/4001/ws"]},
		"discovery": {"bootstrap": ["/dnsaddr/bootstrap.example.org"], "enable_mdns": true},
		"swarm": {"idle_timeout": "2m"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001/ws"}, cfg.Transport.ListenAddrs)
	assert.True(t, cfg.Discovery.EnableMDNS)
	assert.Equal(t, 2*time.Minute, cfg.Swarm.IdleTimeout.Duration())
	// 文件中没有的字段保持默认
	assert.True(t, cfg.Transport.EnableTCP)
	assert.Equal(t, 12, cfg.PubSub.Dhi)

	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.json")))
}

func TestFromJSON_RoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Discovery.Bootstrap = []string{"/ip4/10.0.0.1/tcp/4001"}
	data, err := cfg.JSON()
	require.NoError(t, err)

	got, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = FromJSON([]byte("{"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvListen:       "/ip4/0.0.0.0/tcp/4001, /ip4/0.0.0.0/udp/4001/quic-v1",
		EnvBootstrap:    "/dnsaddr/a.example.org,,/ip4/1.2.3.4/tcp/4001",
		EnvIdentityFile: "/var/lib/meshchat/key",
		EnvDataDir:      "/var/lib/meshchat",
		EnvMDNS:         "true",
	}
	cfg := NewConfig()
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, []string{"/ip4/0.0.0.0/tcp/4001", "/ip4/0.0.0.0/udp/4001/quic-v1"}, cfg.Transport.ListenAddrs)
	assert.Equal(t, []string{"/dnsaddr/a.example.org", "/ip4/1.2.3.4/tcp/4001"}, cfg.Discovery.Bootstrap)
	assert.Equal(t, "/var/lib/meshchat/key", cfg.Identity.KeyFile)
	assert.Equal(t, "", cfg.Identity.Passphrase)
	assert.True(t, cfg.Discovery.EnableMDNS)
	assert.Equal(t, "/var/lib/meshchat/peerstore", cfg.Storage.PeerstorePath())
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_Process(t *testing.T) {
	t.Setenv(EnvMDNS, "1")
	t.Setenv(EnvDataDir, "/tmp/mc")
	cfg := NewConfig()
	cfg.ApplyEnv()
	assert.True(t, cfg.Discovery.EnableMDNS)
	assert.Equal(t, "/tmp/mc/identity.key", cfg.Storage.IdentityPath())
}
