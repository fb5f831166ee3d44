// Package telemetry maintains the relayer's operational counters. The
// core emits MetricUpdate values into a sink; a single service goroutine
// drains them in FIFO order into the metrics registry, which the CLI can
// expose over a Prometheus endpoint.
package telemetry

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
)

// Kind enumerates the counters the core updates.
type Kind int

const (
	RelayChainsNumber Kind = iota
	RelayChannelsNumber
	TxCount
	TxSuccess
	TxFailed
	IbcAcknowledgePacket
	IbcRecvPacket
	IbcTransferSend
	IbcTransferReceive
	TimeoutPacket
)

// MetricUpdate is one additive counter increment.
type MetricUpdate struct {
	Kind  Kind
	Delta uint64
}

// Sink accepts counter updates. Implementations must not block the
// caller.
type Sink interface {
	Send(MetricUpdate)
}

// NopSink discards all updates.
type NopSink struct{}

func (NopSink) Send(MetricUpdate) {}

// State holds the registered counters.
type State struct {
	relayChains   metrics.Counter
	relayChannels metrics.Counter
	txCount       metrics.Counter
	txSuccess     metrics.Counter
	txFailed      metrics.Counter
	ackPacket     metrics.Counter
	recvPacket    metrics.Counter
	transferSend  metrics.Counter
	transferRecv  metrics.Counter
	timeoutPacket metrics.Counter
}

// NewState registers the relayer counters in the default registry.
func NewState() *State {
	return &State{
		relayChains:   metrics.NewRegisteredCounter("relayd/chains", nil),
		relayChannels: metrics.NewRegisteredCounter("relayd/channels", nil),
		txCount:       metrics.NewRegisteredCounter("relayd/tx/count", nil),
		txSuccess:     metrics.NewRegisteredCounter("relayd/tx/success", nil),
		txFailed:      metrics.NewRegisteredCounter("relayd/tx/failed", nil),
		ackPacket:     metrics.NewRegisteredCounter("relayd/ibc/acknowledge_packet", nil),
		recvPacket:    metrics.NewRegisteredCounter("relayd/ibc/recv_packet", nil),
		transferSend:  metrics.NewRegisteredCounter("relayd/ibc/transfer_send", nil),
		transferRecv:  metrics.NewRegisteredCounter("relayd/ibc/transfer_receive", nil),
		timeoutPacket: metrics.NewRegisteredCounter("relayd/ibc/timeout_packet", nil),
	}
}

func (s *State) apply(u MetricUpdate) {
	c := s.counter(u.Kind)
	if c == nil {
		return
	}
	c.Inc(int64(u.Delta))
}

func (s *State) counter(k Kind) metrics.Counter {
	switch k {
	case RelayChainsNumber:
		return s.relayChains
	case RelayChannelsNumber:
		return s.relayChannels
	case TxCount:
		return s.txCount
	case TxSuccess:
		return s.txSuccess
	case TxFailed:
		return s.txFailed
	case IbcAcknowledgePacket:
		return s.ackPacket
	case IbcRecvPacket:
		return s.recvPacket
	case IbcTransferSend:
		return s.transferSend
	case IbcTransferReceive:
		return s.transferRecv
	case TimeoutPacket:
		return s.timeoutPacket
	default:
		return nil
	}
}

// Service drains updates off a single receiver into the counter state.
type Service struct {
	state *State
	lg    log.Logger
	ch    chan MetricUpdate
	quit  chan struct{}
}

const sinkBuffer = 1024

// NewService returns a service around the given state.
func NewService(state *State) *Service {
	return &Service{
		state: state,
		lg:    log.New("module", "telemetry"),
		ch:    make(chan MetricUpdate, sinkBuffer),
		quit:  make(chan struct{}),
	}
}

// Sink returns the sink feeding this service.
func (s *Service) Sink() Sink { return serviceSink{s} }

// Run applies updates until Stop is called. It is the only consumer of
// the sink channel.
func (s *Service) Run() {
	for {
		select {
		case u := <-s.ch:
			s.state.apply(u)
		case <-s.quit:
			return
		}
	}
}

// Stop terminates Run.
func (s *Service) Stop() { close(s.quit) }

type serviceSink struct{ s *Service }

// Send enqueues an update without blocking. Updates are dropped when the
// buffer is full.
func (k serviceSink) Send(u MetricUpdate) {
	select {
	case k.s.ch <- u:
	default:
		k.s.lg.Debug("telemetry buffer full, dropping update", "kind", u.Kind)
	}
}
