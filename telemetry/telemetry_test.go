package telemetry

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/stretchr/testify/require"
)

func TestServiceAppliesUpdates(t *testing.T) {
	metrics.Enabled = true

	state := NewState()
	service := NewService(state)
	go service.Run()
	defer service.Stop()

	sink := service.Sink()
	sink.Send(MetricUpdate{Kind: TxCount, Delta: 3})
	sink.Send(MetricUpdate{Kind: TxSuccess, Delta: 2})
	sink.Send(MetricUpdate{Kind: TxFailed, Delta: 1})
	sink.Send(MetricUpdate{Kind: IbcRecvPacket, Delta: 5})

	require.Eventually(t, func() bool {
		return state.txCount.Snapshot().Count() == 3 &&
			state.txSuccess.Snapshot().Count() == 2 &&
			state.txFailed.Snapshot().Count() == 1 &&
			state.recvPacket.Snapshot().Count() == 5
	}, 2*time.Second, 5*time.Millisecond, "updates were not applied")
}

func TestServiceUpdatesAreAdditive(t *testing.T) {
	metrics.Enabled = true

	state := NewState()
	service := NewService(state)
	go service.Run()
	defer service.Stop()

	sink := service.Sink()
	sink.Send(MetricUpdate{Kind: RelayChainsNumber, Delta: 1})
	sink.Send(MetricUpdate{Kind: RelayChainsNumber, Delta: 1})

	require.Eventually(t, func() bool {
		return state.relayChains.Snapshot().Count() == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNopSink(t *testing.T) {
	// Must accept updates without blocking or panicking.
	NopSink{}.Send(MetricUpdate{Kind: TxCount, Delta: 1})
}
