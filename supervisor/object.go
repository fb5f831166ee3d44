package supervisor

import (
	"fmt"

	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/ibc"
)

// Object identifies one relay responsibility. Each distinct object owns
// exactly one worker, and every event the supervisor collects is routed
// to its object's worker. Objects are comparable values; the supervisor
// uses them as worker-table keys.
type Object interface {
	SrcChain() ibc.ChainID
	DstChain() ibc.ChainID
	ShortName() string

	isObject()
}

// Client is the responsibility of keeping the light client DstClientID
// on DstChainID (tracking SrcChainID) refreshed and honest.
type Client struct {
	DstChainID  ibc.ChainID
	DstClientID ibc.ClientID
	SrcChainID  ibc.ChainID
}

func (c Client) SrcChain() ibc.ChainID { return c.SrcChainID }
func (c Client) DstChain() ibc.ChainID { return c.DstChainID }
func (c Client) isObject()             {}

func (c Client) ShortName() string {
	return fmt.Sprintf("%s -> %s:%s", c.SrcChainID, c.DstChainID, c.DstClientID)
}

// UnidirectionalChannelPath is the responsibility of relaying packets
// from (SrcPortID, SrcChannelID) on SrcChainID to its counterparty on
// DstChainID.
type UnidirectionalChannelPath struct {
	DstChainID   ibc.ChainID
	SrcChainID   ibc.ChainID
	SrcChannelID ibc.ChannelID
	SrcPortID    ibc.PortID
}

func (p UnidirectionalChannelPath) SrcChain() ibc.ChainID { return p.SrcChainID }
func (p UnidirectionalChannelPath) DstChain() ibc.ChainID { return p.DstChainID }
func (p UnidirectionalChannelPath) isObject()             {}

func (p UnidirectionalChannelPath) ShortName() string {
	return fmt.Sprintf("%s/%s:%s -> %s", p.SrcChannelID, p.SrcPortID, p.SrcChainID, p.DstChainID)
}

// ChannelConnectionClient is the resolved chain state behind a channel
// end: the channel, its first-hop connection, and that connection's
// client. Computed on demand; never cached across batches.
type ChannelConnectionClient struct {
	Channel    ibc.IdentifiedChannelEnd
	Connection ibc.IdentifiedConnectionEnd
	Client     ibc.IdentifiedClientState
}

// channelConnectionClient resolves a channel end to its connection and
// client. The channel and connection must both be open.
func channelConnectionClient(h chain.Handle, port ibc.PortID, channel ibc.ChannelID) (*ChannelConnectionClient, error) {
	channelEnd, err := h.QueryChannel(port, channel, ibc.ZeroHeight())
	if err != nil {
		return nil, &QueryFailedError{Err: err}
	}
	if !channelEnd.IsOpen() {
		return nil, &ChannelNotOpenError{ChannelID: channel, ChainID: h.ID()}
	}
	if len(channelEnd.ConnectionHops) == 0 {
		return nil, &MissingConnectionHopsError{ChannelID: channel, ChainID: h.ID()}
	}
	connectionID := channelEnd.ConnectionHops[0]

	connectionEnd, err := h.QueryConnection(connectionID, ibc.ZeroHeight())
	if err != nil {
		return nil, &QueryFailedError{Err: err}
	}
	if !connectionEnd.IsOpen() {
		return nil, &ConnectionNotOpenError{
			ConnectionID: connectionID,
			ChannelID:    channel,
			ChainID:      h.ID(),
		}
	}

	clientState, err := h.QueryClientState(connectionEnd.ClientID, ibc.ZeroHeight())
	if err != nil {
		return nil, &QueryFailedError{Err: err}
	}

	return &ChannelConnectionClient{
		Channel:    ibc.IdentifiedChannelEnd{PortID: port, ChannelID: channel, End: channelEnd},
		Connection: ibc.IdentifiedConnectionEnd{ConnectionID: connectionID, End: connectionEnd},
		Client:     ibc.IdentifiedClientState{ClientID: connectionEnd.ClientID, State: clientState},
	}, nil
}

// counterpartyChain resolves the chain on the far side of a channel end.
func counterpartyChain(src chain.Handle, channel ibc.ChannelID, port ibc.PortID) (ibc.ChainID, error) {
	ccc, err := channelConnectionClient(src, port, channel)
	if err != nil {
		return "", err
	}
	return ccc.Client.State.ChainID, nil
}

// objectForUpdateClient builds the client object for an update observed
// on dst. Clients without a refresh requirement have no worker and
// resolve to an error.
func objectForUpdateClient(e ibc.UpdateClient, dst chain.Handle) (Object, error) {
	clientState, err := dst.QueryClientState(e.ClientID, ibc.ZeroHeight())
	if err != nil {
		return nil, &QueryFailedError{Err: err}
	}
	if clientState.RefreshPeriod() == 0 {
		return nil, fmt.Errorf("client %s on chain %s does not require refresh", e.ClientID, dst.ID())
	}
	return Client{
		DstChainID:  dst.ID(),
		DstClientID: e.ClientID,
		SrcChainID:  clientState.ChainID,
	}, nil
}

// objectForChannelOpen builds the client object for a channel handshake
// event observed on dst.
func objectForChannelOpen(attrs ibc.ChannelAttributes, dst chain.Handle) (Object, error) {
	if attrs.ChannelID == "" {
		return nil, fmt.Errorf("channel id missing in handshake event on chain %s", dst.ID())
	}
	ccc, err := channelConnectionClient(dst, attrs.PortID, attrs.ChannelID)
	if err != nil {
		return nil, err
	}
	if ccc.Client.State.RefreshPeriod() == 0 {
		return nil, fmt.Errorf("client %s on chain %s does not require refresh",
			ccc.Client.ClientID, dst.ID())
	}
	return Client{
		DstChainID:  dst.ID(),
		DstClientID: ccc.Client.ClientID,
		SrcChainID:  ccc.Client.State.ChainID,
	}, nil
}

// objectForSendPacket builds the channel-path object for a packet sent
// on src.
func objectForSendPacket(e ibc.SendPacket, src chain.Handle) (Object, error) {
	dstChain, err := counterpartyChain(src, e.Packet.SourceChannel, e.Packet.SourcePort)
	if err != nil {
		return nil, err
	}
	return UnidirectionalChannelPath{
		DstChainID:   dstChain,
		SrcChainID:   src.ID(),
		SrcChannelID: e.Packet.SourceChannel,
		SrcPortID:    e.Packet.SourcePort,
	}, nil
}

// objectForWriteAck builds the channel-path object for an ack written on
// src. The ack lives on the packet's destination end.
func objectForWriteAck(e ibc.WriteAcknowledgement, src chain.Handle) (Object, error) {
	dstChain, err := counterpartyChain(src, e.Packet.DestinationChannel, e.Packet.DestinationPort)
	if err != nil {
		return nil, err
	}
	return UnidirectionalChannelPath{
		DstChainID:   dstChain,
		SrcChainID:   src.ID(),
		SrcChannelID: e.Packet.DestinationChannel,
		SrcPortID:    e.Packet.DestinationPort,
	}, nil
}

// objectForTimeoutPacket builds the channel-path object for a timeout
// processed on src.
func objectForTimeoutPacket(e ibc.TimeoutPacket, src chain.Handle) (Object, error) {
	dstChain, err := counterpartyChain(src, e.Packet.SourceChannel, e.Packet.SourcePort)
	if err != nil {
		return nil, err
	}
	return UnidirectionalChannelPath{
		DstChainID:   dstChain,
		SrcChainID:   src.ID(),
		SrcChannelID: e.SrcChannelID,
		SrcPortID:    e.SrcPortID,
	}, nil
}

// objectForCloseInit builds the channel-path object for a close
// initiated on src.
func objectForCloseInit(e ibc.CloseInitChannel, src chain.Handle) (Object, error) {
	dstChain, err := counterpartyChain(src, e.ChannelID, e.PortID)
	if err != nil {
		return nil, err
	}
	return UnidirectionalChannelPath{
		DstChainID:   dstChain,
		SrcChainID:   src.ID(),
		SrcChannelID: e.ChannelID,
		SrcPortID:    e.PortID,
	}, nil
}
