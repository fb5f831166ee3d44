package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/eapache/channels"
	"github.com/ethereum/go-ethereum/log"

	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/ibc"
	"github.com/crosschain/relayd/relay"
	"github.com/crosschain/relayd/telemetry"
)

// Idle times between worker loop iterations.
const (
	clientWorkerIdle = 600 * time.Millisecond
	pathWorkerIdle   = 100 * time.Millisecond
)

// ErrWorkerExited is returned by sends to a worker whose task has
// finished.
var ErrWorkerExited = errors.New("worker has exited")

// ChainHandlePair is the pair of chain handles a worker operates on.
type ChainHandlePair struct {
	A chain.Handle
	B chain.Handle
}

// Swap returns the pair with its handles exchanged.
func (p ChainHandlePair) Swap() ChainHandlePair {
	return ChainHandlePair{A: p.B, B: p.A}
}

// workerCmd is one command in a worker's inbox.
type workerCmd interface {
	isWorkerCmd()
}

// cmdIbcEvents carries a batch of events for the worker's object.
type cmdIbcEvents struct {
	batch ibc.EventBatch
}

// cmdNewBlock announces a new source-chain block.
type cmdNewBlock struct {
	height   ibc.Height
	newBlock ibc.NewBlock
}

func (cmdIbcEvents) isWorkerCmd() {}
func (cmdNewBlock) isWorkerCmd()  {}

// WorkerHandle is the supervisor's sending end of a worker: an unbounded
// FIFO inbox plus completion tracking.
type WorkerHandle struct {
	object Object
	cmds   *channels.InfiniteChannel
	done   chan struct{}
}

// SendEvents forwards a batch of events to the worker. The send never
// blocks; it fails only when the worker has exited.
func (h *WorkerHandle) SendEvents(height ibc.Height, events []ibc.Event, chainID ibc.ChainID) error {
	return h.send(cmdIbcEvents{batch: ibc.EventBatch{ChainID: chainID, Height: height, Events: events}})
}

// SendNewBlock forwards a NewBlock event to the worker.
func (h *WorkerHandle) SendNewBlock(height ibc.Height, nb ibc.NewBlock) error {
	return h.send(cmdNewBlock{height: height, newBlock: nb})
}

func (h *WorkerHandle) send(cmd workerCmd) error {
	select {
	case <-h.done:
		return fmt.Errorf("%w: %s", ErrWorkerExited, h.object.ShortName())
	default:
	}
	h.cmds.In() <- cmd
	return nil
}

// Join blocks until the worker task finishes.
func (h *WorkerHandle) Join() { <-h.done }

// worker processes the commands routed to one object.
type worker struct {
	chains ChainHandlePair
	object Object
	sink   telemetry.Sink
	lg     log.Logger

	cmds *channels.InfiniteChannel
	done chan struct{}

	clientIdle time.Duration
	pathIdle   time.Duration
}

// spawnWorker starts a worker for the object over the given chain pair
// and returns its handle.
func spawnWorker(pair ChainHandlePair, object Object, sink telemetry.Sink) *WorkerHandle {
	w := newWorker(pair, object, sink)
	w.lg.Debug("spawned worker", "a", pair.A.ID(), "b", pair.B.ID())
	return w.start()
}

func newWorker(pair ChainHandlePair, object Object, sink telemetry.Sink) *worker {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &worker{
		chains:     pair,
		object:     object,
		sink:       sink,
		lg:         log.New("worker", object.ShortName()),
		cmds:       channels.NewInfiniteChannel(),
		done:       make(chan struct{}),
		clientIdle: clientWorkerIdle,
		pathIdle:   pathWorkerIdle,
	}
}

func (w *worker) start() *WorkerHandle {
	go w.run()
	return &WorkerHandle{object: w.object, cmds: w.cmds, done: w.done}
}

// run dispatches on the object variant and logs the task's outcome. A
// failed worker is not restarted; its object stays abandoned until the
// supervisor restarts.
func (w *worker) run() {
	defer close(w.done)

	var err error
	switch obj := w.object.(type) {
	case Client:
		err = w.runClient(obj)
	case UnidirectionalChannelPath:
		err = w.runUniChanPath(obj)
	default:
		err = fmt.Errorf("unknown object variant %T", w.object)
	}

	if err != nil {
		w.lg.Error("worker error", "err", err)
	}
	w.lg.Info("worker exits")
}

// tryRecv performs a non-blocking receive on the worker's inbox.
func (w *worker) tryRecv() (workerCmd, bool) {
	select {
	case v, ok := <-w.cmds.Out():
		if !ok {
			return nil, false
		}
		return v.(workerCmd), true
	default:
		return nil, false
	}
}

// detect runs one misbehaviour pass, reporting whether later checks can
// be skipped: evidence already submitted, or the chain cannot support
// detection at all.
func (w *worker) detect(client *relay.ForeignClient, update *ibc.UpdateClient) bool {
	switch client.DetectMisbehaviour(update) {
	case relay.EvidenceSubmitted, relay.CannotExecute:
		return true
	default:
		return false
	}
}

// runClient keeps a client object alive: periodic refresh, with
// misbehaviour detection on every counterparty update.
func (w *worker) runClient(obj Client) error {
	dst, src := w.chains.A, w.chains.B
	if dst.ID() != obj.DstChainID {
		dst, src = src, dst
	}
	client := relay.NewForeignClient(obj.DstClientID, dst, src, w.sink)

	w.lg.Info("running initial misbehaviour detection", "client", client.String())
	skipMisbehaviour := w.detect(client, nil)

	w.lg.Info("running client worker loop", "client", client.String(),
		"skip_misbehaviour", skipMisbehaviour)
	for {
		time.Sleep(w.clientIdle)

		if err := client.Refresh(); err != nil {
			var expired *relay.ExpiredOrFrozenError
			if errors.As(err, &expired) {
				return err
			}
			w.lg.Warn("client refresh failed", "err", err)
		}

		if skipMisbehaviour {
			continue
		}

		cmd, ok := w.tryRecv()
		if !ok {
			continue
		}
		events, ok := cmd.(cmdIbcEvents)
		if !ok {
			continue
		}
		for _, ev := range events.batch.Events {
			if update, isUpdate := ev.(ibc.UpdateClient); isUpdate {
				w.lg.Debug("client updated", "height", update.ConsensusHeight)
				// The result is deliberately unused: evidence submitted
				// here freezes the client, which the next refresh
				// observes and exits on.
				w.detect(client, &update)
			}
		}
	}
}

// runUniChanPath keeps a channel-path object alive: merge incoming
// events into the relay schedule, re-drive outstanding packets on new
// source blocks, and execute whatever became eligible.
func (w *worker) runUniChanPath(obj UnidirectionalChannelPath) error {
	src, dst := w.chains.A, w.chains.B
	if src.ID() != obj.SrcChainID {
		src, dst = dst, src
	}

	link, err := relay.NewLink(src, dst, obj.SrcPortID, obj.SrcChannelID, w.sink)
	if err != nil {
		return err
	}
	closed, err := link.IsClosed()
	if err != nil {
		return err
	}
	if closed {
		w.lg.Warn("channel is closed, exiting")
		return nil
	}

	for {
		if cmd, ok := w.tryRecv(); ok {
			switch c := cmd.(type) {
			case cmdIbcEvents:
				if err := link.AToB.UpdateSchedule(c.batch); err != nil {
					return err
				}
			case cmdNewBlock:
				if err := link.AToB.ClearPackets(c.height); err != nil {
					return err
				}
			}
		}

		if err := link.AToB.RefreshSchedule(); err != nil {
			return err
		}
		if err := link.AToB.ExecuteSchedule(); err != nil {
			return err
		}

		time.Sleep(w.pathIdle)
	}
}
