package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relayd.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[global]
log_level = "debug"

[telemetry]
enabled = true
listen_addr = "127.0.0.1:6060"

[[chains]]
id = "ibc-0"
rpc_addr = "http://localhost:26657"
rpc_timeout = "5s"
poll_interval = "250ms"

[[chains]]
id = "ibc-1"
rpc_addr = "http://localhost:26658"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Global.LogLevel)
	require.True(t, cfg.Telemetry.Enabled)
	require.Len(t, cfg.Chains, 2)
	require.Equal(t, 5*time.Second, cfg.Chains[0].RPCTimeout.Std())
	require.Equal(t, 250*time.Millisecond, cfg.Chains[0].PollInterval.Std())

	// Defaults apply where the file is silent.
	require.Equal(t, defaultRPCTimeout, cfg.Chains[1].RPCTimeout.Std())
	require.Equal(t, defaultPollInterval, cfg.Chains[1].PollInterval.Std())
}

func TestLoadRejectsDuplicateChains(t *testing.T) {
	path := writeConfig(t, `
[[chains]]
id = "ibc-0"
rpc_addr = "http://localhost:26657"

[[chains]]
id = "ibc-0"
rpc_addr = "http://localhost:26658"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "duplicate chain id")
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
[[chains]]
id = "ibc-0"
rpc_addr = "http://localhost:26657"
wss_addr = "ws://localhost:26657"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown field")
}

func TestLoadRejectsMissingRPCAddr(t *testing.T) {
	path := writeConfig(t, `
[[chains]]
id = "ibc-0"
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "rpc_addr is required")
}

func TestFindChain(t *testing.T) {
	cfg := &Config{Chains: []ChainConfig{{ID: "ibc-0"}, {ID: "ibc-1"}}}

	require.NotNil(t, cfg.FindChain("ibc-0"))
	require.Equal(t, cfg.Chains[1].ID, cfg.FindChain("ibc-1").ID)
	require.Nil(t, cfg.FindChain("ibc-9"))
	require.True(t, cfg.HasChain("ibc-0"))
	require.False(t, cfg.HasChain("ibc-9"))
}
