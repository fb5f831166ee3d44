// Package chain provides the runtime for a single chain endpoint and the
// handle through which the rest of the relayer talks to it. A runtime is
// one goroutine owning a Driver; handles are cheap shared references that
// serialize their calls through the runtime.
package chain

import (
	"errors"

	"github.com/ethereum/go-ethereum/event"

	"github.com/crosschain/relayd/ibc"
)

// ErrRuntimeStopped is returned by handle calls after the runtime has
// been shut down.
var ErrRuntimeStopped = errors.New("chain runtime stopped")

// Handle is a shared, thread-safe reference to a running chain endpoint.
// All handles obtained from the same runtime refer to the same underlying
// endpoint.
type Handle interface {
	// ID returns the chain identifier.
	ID() ibc.ChainID

	// Subscribe taps the chain's event stream. Each subscription gets an
	// independently buffered channel of batches; unsubscribing drops it.
	Subscribe() (*Subscription, error)

	// QueryLatestHeight returns the endpoint's current height.
	QueryLatestHeight() (ibc.Height, error)

	// QueryChannels returns all channel ends on the chain.
	QueryChannels() ([]ibc.IdentifiedChannelEnd, error)

	// QueryChannel returns one channel end. A zero height queries the
	// latest state.
	QueryChannel(port ibc.PortID, channel ibc.ChannelID, height ibc.Height) (ibc.ChannelEnd, error)

	// QueryConnection returns one connection end.
	QueryConnection(id ibc.ConnectionID, height ibc.Height) (ibc.ConnectionEnd, error)

	// QueryClientState returns the state of an on-chain light client.
	QueryClientState(id ibc.ClientID, height ibc.Height) (ibc.ClientState, error)

	// QueryConsensusState returns the consensus state a client stores for
	// the given height.
	QueryConsensusState(id ibc.ClientID, height ibc.Height) (ibc.ConsensusState, error)

	// QueryPacketCommitments returns the sequences of packets sent on the
	// channel whose commitments are still present, with the query height.
	QueryPacketCommitments(port ibc.PortID, channel ibc.ChannelID) ([]uint64, ibc.Height, error)

	// QueryUnreceivedPackets filters seqs down to those not yet received
	// on this chain.
	QueryUnreceivedPackets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error)

	// QueryUnreceivedAcks filters seqs down to those whose
	// acknowledgement has not been processed on this chain.
	QueryUnreceivedAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error)

	// QueryPackets returns the full packet data for sequences sent on the
	// channel.
	QueryPackets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.Packet, error)

	// QueryPacketAcks returns written acknowledgements on the channel,
	// restricted to seqs when non-empty.
	QueryPacketAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.PacketAck, error)

	// BuildHeader builds a signed header for target, verifiable from
	// trusted. A zero target means the latest height.
	BuildHeader(trusted, target ibc.Height) (ibc.SignedHeader, error)

	// SendMsgs signs and submits messages, returning the events they
	// produced.
	SendMsgs(msgs []ibc.Msg) ([]ibc.Event, error)

	// Shutdown terminates the runtime behind this handle.
	Shutdown() error
}

// Subscription is a live tap on a chain's event stream.
type Subscription struct {
	batches chan ibc.EventBatch
	sub     event.Subscription
}

// Batches returns the channel event batches arrive on.
func (s *Subscription) Batches() <-chan ibc.EventBatch { return s.batches }

// Err reports subscription failure; the channel closes on unsubscribe.
func (s *Subscription) Err() <-chan error { return s.sub.Err() }

// Unsubscribe drops the subscription.
func (s *Subscription) Unsubscribe() { s.sub.Unsubscribe() }
