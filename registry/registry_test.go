package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/config"
	"github.com/crosschain/relayd/ibc"
)

func testConfig() *config.Config {
	hour := config.Duration(time.Hour)
	return &config.Config{Chains: []config.ChainConfig{
		{ID: "ibc-0", RPCAddr: "http://localhost:26657", PollInterval: hour},
		{ID: "ibc-1", RPCAddr: "http://localhost:26658", PollInterval: hour},
	}}
}

func mockFactory(t *testing.T) DriverFactory {
	t.Helper()
	return func(cc config.ChainConfig) (chain.Driver, error) {
		return chain.NewMock(cc.ID), nil
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(testConfig(), WithDriverFactory(mockFactory(t)))
	t.Cleanup(func() { _ = r.ShutdownAll() })
	return r
}

func TestGetOrSpawnDedup(t *testing.T) {
	r := newTestRegistry(t)

	handles := make([]chain.Handle, 0, 10)
	for i := 0; i < 10; i++ {
		h, err := r.GetOrSpawn("ibc-0")
		require.NoError(t, err)
		handles = append(handles, h)
	}

	require.Equal(t, 1, r.Size())
	for _, h := range handles[1:] {
		require.Equal(t, handles[0], h, "handles must refer to the same runtime")
	}
}

func TestSpawnIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	started, err := r.Spawn("ibc-0")
	require.NoError(t, err)
	require.True(t, started)

	started, err = r.Spawn("ibc-0")
	require.NoError(t, err)
	require.False(t, started)

	require.Equal(t, 1, r.Size())
}

func TestSpawnNotConfigured(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.GetOrSpawn("ibc-9")
	var notConfigured *ChainNotConfiguredError
	require.ErrorAs(t, err, &notConfigured)
	require.Equal(t, ibc.ChainID("ibc-9"), notConfigured.ChainID)
	require.Equal(t, 0, r.Size())
}

func TestSpawnFactoryError(t *testing.T) {
	boom := errors.New("dial failed")
	r := New(testConfig(), WithDriverFactory(func(config.ChainConfig) (chain.Driver, error) {
		return nil, boom
	}))

	_, err := r.GetOrSpawn("ibc-0")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, r.Size())
}

func TestShutdown(t *testing.T) {
	r := newTestRegistry(t)

	h, err := r.GetOrSpawn("ibc-0")
	require.NoError(t, err)

	r.Shutdown("ibc-0")
	require.Equal(t, 0, r.Size())

	// The old handle observes the terminated runtime.
	_, err = h.QueryLatestHeight()
	require.ErrorIs(t, err, chain.ErrRuntimeStopped)

	// Shutting down an absent chain is a no-op.
	r.Shutdown("ibc-0")
}

func TestChains(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.GetOrSpawn("ibc-0")
	require.NoError(t, err)
	_, err = r.GetOrSpawn("ibc-1")
	require.NoError(t, err)

	ids := make(map[ibc.ChainID]bool)
	for _, h := range r.Chains() {
		ids[h.ID()] = true
	}
	require.Equal(t, map[ibc.ChainID]bool{"ibc-0": true, "ibc-1": true}, ids)
}
