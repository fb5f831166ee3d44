package chain

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/crosschain/relayd/ibc"
)

const subscriptionBuffer = 64

// Runtime runs a chain endpoint: a single goroutine owning the driver,
// plus an event monitor feeding subscriptions. Access goes through
// Handle; requests travel over a call channel carrying reply channels,
// so the driver never sees concurrent use.
type Runtime struct {
	id     ibc.ChainID
	driver Driver
	lg     log.Logger

	calls chan rtCall
	quit  chan struct{}
	done  chan struct{}
	stop  sync.Once

	feed event.FeedOf[ibc.EventBatch]
}

type rtCall struct {
	do    func(Driver) (interface{}, error)
	reply chan rtResult
}

type rtResult struct {
	value interface{}
	err   error
}

// NewRuntime starts a runtime around the driver and begins monitoring
// its event stream at the given poll interval.
func NewRuntime(driver Driver, pollInterval time.Duration, lg log.Logger) *Runtime {
	rt := &Runtime{
		id:     driver.ChainID(),
		driver: driver,
		lg:     lg.New("chain", driver.ChainID()),
		calls:  make(chan rtCall),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go rt.run()
	go rt.runMonitor(pollInterval)
	return rt
}

// ID returns the chain identifier this runtime serves.
func (rt *Runtime) ID() ibc.ChainID { return rt.id }

// Handle returns a shared reference to this runtime. All handles from
// one runtime are equivalent.
func (rt *Runtime) Handle() Handle { return runtimeHandle{rt} }

// Stop terminates the runtime and closes the driver. Safe to call more
// than once.
func (rt *Runtime) Stop() {
	rt.stop.Do(func() { close(rt.quit) })
	<-rt.done
}

func (rt *Runtime) run() {
	defer close(rt.done)
	for {
		select {
		case c := <-rt.calls:
			v, err := c.do(rt.driver)
			c.reply <- rtResult{v, err}
		case <-rt.quit:
			if err := rt.driver.Close(); err != nil {
				rt.lg.Warn("driver did not close cleanly", "err", err)
			}
			return
		}
	}
}

// call routes one driver operation through the runtime goroutine.
func (rt *Runtime) call(do func(Driver) (interface{}, error)) (interface{}, error) {
	reply := make(chan rtResult, 1)
	select {
	case rt.calls <- rtCall{do: do, reply: reply}:
	case <-rt.quit:
		return nil, ErrRuntimeStopped
	}
	select {
	case r := <-reply:
		return r.value, r.err
	case <-rt.quit:
		return nil, ErrRuntimeStopped
	}
}

func (rt *Runtime) subscribe() *Subscription {
	ch := make(chan ibc.EventBatch, subscriptionBuffer)
	return &Subscription{batches: ch, sub: rt.feed.Subscribe(ch)}
}

// runtimeHandle implements Handle on top of a runtime.
type runtimeHandle struct {
	rt *Runtime
}

func (h runtimeHandle) ID() ibc.ChainID { return h.rt.id }

func (h runtimeHandle) Subscribe() (*Subscription, error) {
	select {
	case <-h.rt.quit:
		return nil, ErrRuntimeStopped
	default:
	}
	return h.rt.subscribe(), nil
}

func (h runtimeHandle) QueryLatestHeight() (ibc.Height, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.LatestHeight() })
	if err != nil {
		return ibc.Height{}, err
	}
	return v.(ibc.Height), nil
}

func (h runtimeHandle) QueryChannels() ([]ibc.IdentifiedChannelEnd, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.Channels() })
	if err != nil {
		return nil, err
	}
	return v.([]ibc.IdentifiedChannelEnd), nil
}

func (h runtimeHandle) QueryChannel(port ibc.PortID, channel ibc.ChannelID, height ibc.Height) (ibc.ChannelEnd, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.Channel(port, channel, height) })
	if err != nil {
		return ibc.ChannelEnd{}, err
	}
	return v.(ibc.ChannelEnd), nil
}

func (h runtimeHandle) QueryConnection(id ibc.ConnectionID, height ibc.Height) (ibc.ConnectionEnd, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.Connection(id, height) })
	if err != nil {
		return ibc.ConnectionEnd{}, err
	}
	return v.(ibc.ConnectionEnd), nil
}

func (h runtimeHandle) QueryClientState(id ibc.ClientID, height ibc.Height) (ibc.ClientState, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.ClientState(id, height) })
	if err != nil {
		return ibc.ClientState{}, err
	}
	return v.(ibc.ClientState), nil
}

func (h runtimeHandle) QueryConsensusState(id ibc.ClientID, height ibc.Height) (ibc.ConsensusState, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.ConsensusState(id, height) })
	if err != nil {
		return ibc.ConsensusState{}, err
	}
	return v.(ibc.ConsensusState), nil
}

func (h runtimeHandle) QueryPacketCommitments(port ibc.PortID, channel ibc.ChannelID) ([]uint64, ibc.Height, error) {
	type result struct {
		seqs   []uint64
		height ibc.Height
	}
	v, err := h.rt.call(func(d Driver) (interface{}, error) {
		seqs, height, err := d.PacketCommitments(port, channel)
		return result{seqs, height}, err
	})
	if err != nil {
		return nil, ibc.Height{}, err
	}
	r := v.(result)
	return r.seqs, r.height, nil
}

func (h runtimeHandle) QueryUnreceivedPackets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.UnreceivedPackets(port, channel, seqs) })
	if err != nil {
		return nil, err
	}
	return v.([]uint64), nil
}

func (h runtimeHandle) QueryUnreceivedAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.UnreceivedAcks(port, channel, seqs) })
	if err != nil {
		return nil, err
	}
	return v.([]uint64), nil
}

func (h runtimeHandle) QueryPackets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.Packet, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.Packets(port, channel, seqs) })
	if err != nil {
		return nil, err
	}
	return v.([]ibc.Packet), nil
}

func (h runtimeHandle) QueryPacketAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.PacketAck, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.PacketAcks(port, channel, seqs) })
	if err != nil {
		return nil, err
	}
	return v.([]ibc.PacketAck), nil
}

func (h runtimeHandle) BuildHeader(trusted, target ibc.Height) (ibc.SignedHeader, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.SignedHeader(trusted, target) })
	if err != nil {
		return ibc.SignedHeader{}, err
	}
	return v.(ibc.SignedHeader), nil
}

func (h runtimeHandle) SendMsgs(msgs []ibc.Msg) ([]ibc.Event, error) {
	v, err := h.rt.call(func(d Driver) (interface{}, error) { return d.Submit(msgs) })
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]ibc.Event), nil
}

func (h runtimeHandle) Shutdown() error {
	h.rt.Stop()
	return nil
}
