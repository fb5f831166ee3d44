package chain

import "github.com/crosschain/relayd/ibc"

// Driver performs the actual endpoint I/O for a runtime: queries,
// transaction submission and header construction. Drivers need not be
// safe for concurrent use; the runtime serializes all access.
type Driver interface {
	ChainID() ibc.ChainID
	LatestHeight() (ibc.Height, error)

	// BlockEvents returns the relayer-relevant events of one block,
	// excluding the NewBlock marker, which the monitor synthesizes.
	BlockEvents(height ibc.Height) ([]ibc.Event, error)

	Channels() ([]ibc.IdentifiedChannelEnd, error)
	Channel(port ibc.PortID, channel ibc.ChannelID, height ibc.Height) (ibc.ChannelEnd, error)
	Connection(id ibc.ConnectionID, height ibc.Height) (ibc.ConnectionEnd, error)
	ClientState(id ibc.ClientID, height ibc.Height) (ibc.ClientState, error)
	ConsensusState(id ibc.ClientID, height ibc.Height) (ibc.ConsensusState, error)

	PacketCommitments(port ibc.PortID, channel ibc.ChannelID) ([]uint64, ibc.Height, error)
	UnreceivedPackets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error)
	UnreceivedAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error)
	Packets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.Packet, error)
	PacketAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.PacketAck, error)

	SignedHeader(trusted, target ibc.Height) (ibc.SignedHeader, error)
	Submit(msgs []ibc.Msg) ([]ibc.Event, error)

	Close() error
}
