// Package supervisor demultiplexes the event streams of every
// configured chain into per-object workers. The supervisor owns the
// chain registry and the worker table; workers own nothing but chain
// handles and their inbox.
package supervisor

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/config"
	"github.com/crosschain/relayd/ibc"
	"github.com/crosschain/relayd/registry"
	"github.com/crosschain/relayd/telemetry"
)

// Supervisor listens for events on all configured chains and dispatches
// them to the worker owning each event's object.
type Supervisor struct {
	cfg     *config.Config
	reg     *registry.Registry
	workers map[Object]*WorkerHandle
	sink    telemetry.Sink
	lg      log.Logger

	quit chan struct{}
	stop sync.Once
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithTelemetry routes counter updates to the given sink.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(s *Supervisor) { s.sink = sink }
}

// WithRegistryOptions forwards options to the supervisor's registry.
// Tests use this to substitute chain drivers.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(s *Supervisor) { s.reg = registry.New(s.cfg, opts...) }
}

// New returns a supervisor over the given configuration, with an empty
// worker table.
func New(cfg *config.Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		reg:     registry.New(cfg),
		workers: make(map[Object]*WorkerHandle),
		sink:    telemetry.NopSink{},
		lg:      log.New("module", "supervisor"),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type chainSub struct {
	handle chain.Handle
	sub    *chain.Subscription
}

// Run subscribes to every configured chain, spawns the initial workers,
// and enters the dispatch loop. It returns only on startup failure, on
// loss of every subscription, on a batch whose chain id differs from the
// chain it arrived from, or after Stop.
func (s *Supervisor) Run() error {
	subs := make([]chainSub, 0, len(s.cfg.Chains))
	for _, chainCfg := range s.cfg.Chains {
		spawned, err := s.reg.Spawn(chainCfg.ID)
		if err != nil {
			return err
		}
		if spawned {
			s.sink.Send(telemetry.MetricUpdate{Kind: telemetry.RelayChainsNumber, Delta: 1})
		}
		handle, err := s.reg.GetOrSpawn(chainCfg.ID)
		if err != nil {
			return err
		}
		sub, err := handle.Subscribe()
		if err != nil {
			return fmt.Errorf("subscribing to chain %s: %w", chainCfg.ID, err)
		}
		subs = append(subs, chainSub{handle: handle, sub: sub})
	}

	if err := s.spawnInitialWorkers(); err != nil {
		return err
	}

	return s.dispatch(subs)
}

// Stop makes Run shut the registry down and return. Workers are not
// interrupted; they die with the process.
func (s *Supervisor) Stop() {
	s.stop.Do(func() { close(s.quit) })
}

// dispatch is the main loop: a fair multi-way receive over all chain
// subscriptions, processing each batch to completion before the next.
func (s *Supervisor) dispatch(subs []chainSub) error {
	cases := make([]reflect.SelectCase, len(subs)+1)
	for i, cs := range subs {
		cases[i] = reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(cs.sub.Batches()),
		}
	}
	quitIdx := len(subs)
	cases[quitIdx] = reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(s.quit),
	}

	live := len(subs)
	for {
		chosen, value, ok := reflect.Select(cases)
		if chosen == quitIdx {
			s.lg.Info("supervisor stopping")
			if err := s.reg.ShutdownAll(); err != nil {
				s.lg.Warn("registry shutdown reported errors", "err", err)
			}
			return nil
		}
		if !ok {
			s.lg.Warn("subscription terminated", "chain", subs[chosen].handle.ID())
			// A nil channel never becomes ready again.
			cases[chosen].Chan = reflect.ValueOf((<-chan ibc.EventBatch)(nil))
			live--
			if live == 0 {
				return errors.New("all chain subscriptions terminated")
			}
			continue
		}

		batch := value.Interface().(ibc.EventBatch)
		if err := s.processBatch(subs[chosen].handle, batch); err != nil {
			return err
		}
	}
}

// spawnInitialWorkers builds the initial worker set from the channels
// present on every configured chain.
func (s *Supervisor) spawnInitialWorkers() error {
	for _, chainCfg := range s.cfg.Chains {
		handle, err := s.reg.GetOrSpawn(chainCfg.ID)
		if err != nil {
			return err
		}
		chans, err := handle.QueryChannels()
		if err != nil {
			return fmt.Errorf("querying channels of chain %s: %w", chainCfg.ID, err)
		}
		for _, channel := range chans {
			if err := s.spawnWorkersForChannel(handle, channel); err != nil {
				return err
			}
		}
	}
	return nil
}

// spawnWorkersForChannel installs the client and channel-path workers
// for one channel, if its connection and counterparty warrant them.
// Channels that are not fully open yet, and channels whose counterparty
// chain is not configured, are skipped without error.
func (s *Supervisor) spawnWorkersForChannel(handle chain.Handle, channel ibc.IdentifiedChannelEnd) error {
	s.lg.Trace("resolving connection and client for channel",
		"chain", handle.ID(), "channel", channel.ChannelID)

	ccc, err := channelConnectionClient(handle, channel.PortID, channel.ChannelID)
	if err != nil {
		var chanNotOpen *ChannelNotOpenError
		var connNotOpen *ConnectionNotOpenError
		if errors.As(err, &chanNotOpen) || errors.As(err, &connNotOpen) {
			s.lg.Warn("ignoring channel: it (or its connection) is not open",
				"chain", handle.ID(), "channel", channel.ChannelID)
			return nil
		}
		return fmt.Errorf("unable to spawn workers for channel/chain pair %s/%s: %w",
			channel.ChannelID, handle.ID(), err)
	}

	client := ccc.Client
	if !s.cfg.HasChain(client.State.ChainID) {
		// The counterparty is not ours to relay for.
		return nil
	}

	counterparty, err := s.reg.GetOrSpawn(client.State.ChainID)
	if err != nil {
		return err
	}
	pair := ChainHandlePair{A: handle, B: counterparty}

	clientObj := Client{
		DstChainID:  handle.ID(),
		DstClientID: client.ClientID,
		SrcChainID:  client.State.ChainID,
	}
	s.installWorker(clientObj, pair)

	pathObj := UnidirectionalChannelPath{
		DstChainID:   counterparty.ID(),
		SrcChainID:   handle.ID(),
		SrcChannelID: channel.ChannelID,
		SrcPortID:    channel.PortID,
	}
	s.installWorker(pathObj, pair)

	return nil
}

// installWorker spawns a worker for the object unless one exists.
func (s *Supervisor) installWorker(obj Object, pair ChainHandlePair) *WorkerHandle {
	if existing, ok := s.workers[obj]; ok {
		return existing
	}
	handle := spawnWorker(pair, obj, s.sink)
	s.workers[obj] = handle
	if _, isPath := obj.(UnidirectionalChannelPath); isPath {
		s.sink.Send(telemetry.MetricUpdate{Kind: telemetry.RelayChannelsNumber, Delta: 1})
	}
	return handle
}

// processBatch classifies one batch and forwards its events to the
// owning workers, spawning them on demand. The NewBlock marker fans out
// to every channel-path worker sourced on the emitting chain.
func (s *Supervisor) processBatch(src chain.Handle, batch ibc.EventBatch) error {
	if src.ID() != batch.ChainID {
		return &BatchSourceMismatchError{HandleID: src.ID(), BatchID: batch.ChainID}
	}

	collected := s.collectEvents(src, batch)

	for obj, events := range collected.PerObject {
		if len(events) == 0 {
			continue
		}
		s.lg.Debug("dispatching events", "chain", batch.ChainID,
			"object", obj.ShortName(), "count", len(events))

		srcHandle, err := s.reg.GetOrSpawn(obj.SrcChain())
		if err != nil {
			s.lg.Warn("dropping events for unavailable chain",
				"object", obj.ShortName(), "err", err)
			continue
		}
		dstHandle, err := s.reg.GetOrSpawn(obj.DstChain())
		if err != nil {
			s.lg.Warn("dropping events for unavailable chain",
				"object", obj.ShortName(), "err", err)
			continue
		}

		wk := s.workerForObject(obj, srcHandle, dstHandle)
		if err := wk.SendEvents(batch.Height, events, batch.ChainID); err != nil {
			s.lg.Error("failed to forward events", "object", obj.ShortName(), "err", err)
		}
	}

	if collected.NewBlock != nil {
		for obj, wk := range s.workers {
			path, isPath := obj.(UnidirectionalChannelPath)
			if !isPath || path.SrcChainID != src.ID() {
				continue
			}
			if err := wk.SendNewBlock(batch.Height, *collected.NewBlock); err != nil {
				s.lg.Error("failed to forward new block", "object", obj.ShortName(), "err", err)
			}
		}
	}

	return nil
}

// workerForObject returns the worker owning the object, spawning one
// over (src, dst) when none exists.
func (s *Supervisor) workerForObject(obj Object, src, dst chain.Handle) *WorkerHandle {
	if wk, ok := s.workers[obj]; ok {
		return wk
	}
	return s.installWorker(obj, ChainHandlePair{A: src, B: dst})
}
