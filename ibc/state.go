package ibc

import (
	"crypto/sha256"
	"time"
)

// ChannelState is the handshake state of a channel end.
type ChannelState int

const (
	ChannelUninitialized ChannelState = iota
	ChannelInit
	ChannelTryOpen
	ChannelOpen
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelInit:
		return "INIT"
	case ChannelTryOpen:
		return "TRYOPEN"
	case ChannelOpen:
		return "OPEN"
	case ChannelClosed:
		return "CLOSED"
	default:
		return "UNINITIALIZED"
	}
}

// Order is the packet delivery ordering of a channel.
type Order int

const (
	Unordered Order = iota
	Ordered
)

// ChannelCounterparty names the opposite channel end.
type ChannelCounterparty struct {
	PortID    PortID
	ChannelID ChannelID
}

// ChannelEnd is a channel end as stored on chain.
type ChannelEnd struct {
	State          ChannelState
	Ordering       Order
	Counterparty   ChannelCounterparty
	ConnectionHops []ConnectionID
	Version        string
}

func (c ChannelEnd) IsOpen() bool   { return c.State == ChannelOpen }
func (c ChannelEnd) IsClosed() bool { return c.State == ChannelClosed }

// ConnectionState is the handshake state of a connection end.
type ConnectionState int

const (
	ConnectionUninitialized ConnectionState = iota
	ConnectionInit
	ConnectionTryOpen
	ConnectionOpen
)

// ConnectionCounterparty names the opposite connection end.
type ConnectionCounterparty struct {
	ClientID     ClientID
	ConnectionID ConnectionID
}

// ConnectionEnd is a connection end as stored on chain.
type ConnectionEnd struct {
	State        ConnectionState
	ClientID     ClientID
	Counterparty ConnectionCounterparty
}

func (c ConnectionEnd) IsOpen() bool { return c.State == ConnectionOpen }

// ClientState is a light client record as stored on chain. A zero
// TrustingPeriod marks a client that does not require refresh.
type ClientState struct {
	ChainID         ChainID
	TrustingPeriod  time.Duration
	LatestHeight    Height
	FrozenHeight    Height
	LatestTimestamp time.Time
}

// IsFrozen reports whether misbehaviour evidence froze the client.
func (c ClientState) IsFrozen() bool { return !c.FrozenHeight.IsZero() }

// RefreshPeriod is the interval after which the client should be updated
// to keep it within its trusting period, or zero when the client does not
// require refresh.
func (c ClientState) RefreshPeriod() time.Duration {
	return c.TrustingPeriod * 2 / 3
}

// ConsensusState is the verified counterparty state a client stores per
// height. HeaderHash is empty on chains that do not expose it.
type ConsensusState struct {
	Timestamp  time.Time
	HeaderHash []byte
}

// SignedHeader is a header with commit, built by a chain endpoint for
// client updates and misbehaviour checks. Raw is the encoded header.
type SignedHeader struct {
	Height    Height
	Timestamp time.Time
	Raw       []byte
}

// Hash is the commitment stored in consensus states for this header.
func (h SignedHeader) Hash() []byte {
	sum := sha256.Sum256(h.Raw)
	return sum[:]
}

// IdentifiedChannelEnd pairs a channel end with its identifiers.
type IdentifiedChannelEnd struct {
	PortID    PortID
	ChannelID ChannelID
	End       ChannelEnd
}

// IdentifiedConnectionEnd pairs a connection end with its identifier.
type IdentifiedConnectionEnd struct {
	ConnectionID ConnectionID
	End          ConnectionEnd
}

// IdentifiedClientState pairs a client state with its identifier.
type IdentifiedClientState struct {
	ClientID ClientID
	State    ClientState
}

// PacketAck pairs a received packet with the acknowledgement written for
// it.
type PacketAck struct {
	Packet Packet
	Ack    []byte
}
