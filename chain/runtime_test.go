package chain

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/crosschain/relayd/ibc"
)

func newTestRuntime(t *testing.T, mock *Mock, poll time.Duration) *Runtime {
	t.Helper()
	rt := NewRuntime(mock, poll, log.Root())
	t.Cleanup(rt.Stop)
	return rt
}

func TestRuntimeQueries(t *testing.T) {
	mock := NewMock("ibc-0")
	end := ibc.ChannelEnd{
		State:          ibc.ChannelOpen,
		ConnectionHops: []ibc.ConnectionID{"conn-0"},
		Counterparty:   ibc.ChannelCounterparty{PortID: "transfer", ChannelID: "ch-1"},
	}
	mock.SetChannel("transfer", "ch-0", end)

	h := newTestRuntime(t, mock, time.Hour).Handle()

	require.Equal(t, ibc.ChainID("ibc-0"), h.ID())

	got, err := h.QueryChannel("transfer", "ch-0", ibc.ZeroHeight())
	require.NoError(t, err)
	require.Equal(t, end, got)

	_, err = h.QueryChannel("transfer", "ch-9", ibc.ZeroHeight())
	require.Error(t, err)

	chans, err := h.QueryChannels()
	require.NoError(t, err)
	require.Len(t, chans, 1)
	require.Equal(t, ibc.ChannelID("ch-0"), chans[0].ChannelID)
}

func TestRuntimeSharedHandles(t *testing.T) {
	rt := newTestRuntime(t, NewMock("ibc-0"), time.Hour)

	h1 := rt.Handle()
	h2 := rt.Handle()
	require.Equal(t, h1, h2, "handles from one runtime must be equivalent")
}

func TestRuntimeStop(t *testing.T) {
	mock := NewMock("ibc-0")
	rt := NewRuntime(mock, time.Hour, log.Root())
	h := rt.Handle()

	rt.Stop()
	require.True(t, mock.Closed())

	_, err := h.QueryLatestHeight()
	require.ErrorIs(t, err, ErrRuntimeStopped)
	_, err = h.Subscribe()
	require.ErrorIs(t, err, ErrRuntimeStopped)
}

func TestMonitorEmitsBatches(t *testing.T) {
	mock := NewMock("ibc-0")
	rt := newTestRuntime(t, mock, 5*time.Millisecond)

	sub, err := rt.Handle().Subscribe()
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Drain whatever the monitor emits for the initial head.
	drainUntilQuiet(sub)

	send := ibc.SendPacket{Packet: ibc.Packet{Sequence: 1, SourcePort: "transfer", SourceChannel: "ch-0"}}
	height := mock.AddBlock(send)

	batch := waitForBatch(t, sub, height)
	require.Equal(t, ibc.ChainID("ibc-0"), batch.ChainID)
	require.GreaterOrEqual(t, len(batch.Events), 2)
	require.Equal(t, ibc.NewBlock{Height: height}, batch.Events[0], "batches lead with the NewBlock marker")
	require.Equal(t, send, batch.Events[1])
}

func TestMonitorRecoversFromErrors(t *testing.T) {
	mock := NewMock("ibc-0")
	rt := newTestRuntime(t, mock, 5*time.Millisecond)

	sub, err := rt.Handle().Subscribe()
	require.NoError(t, err)
	defer sub.Unsubscribe()
	drainUntilQuiet(sub)

	mock.SetError(errors.New("rpc down"))
	time.Sleep(30 * time.Millisecond)
	mock.SetError(nil)

	height := mock.AddBlock()
	batch := waitForBatch(t, sub, height)
	require.Equal(t, height, batch.Height)
}

func drainUntilQuiet(sub *Subscription) {
	for {
		select {
		case <-sub.Batches():
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

func waitForBatch(t *testing.T, sub *Subscription, height ibc.Height) ibc.EventBatch {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case batch := <-sub.Batches():
			if batch.Height == height {
				return batch
			}
		case <-deadline:
			t.Fatalf("no batch at height %s", height)
		}
	}
}
