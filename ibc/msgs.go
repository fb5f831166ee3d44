package ibc

// Msg is a message submitted to a chain endpoint. Encoding and signing
// are the endpoint driver's concern; the relayer only assembles them.
type Msg interface {
	MsgType() string
}

// MsgUpdateClient advances a light client with a new signed header.
type MsgUpdateClient struct {
	ClientID ClientID
	Header   SignedHeader
}

// MsgRecvPacket delivers a packet to its destination chain.
type MsgRecvPacket struct {
	Packet      Packet
	ProofHeight Height
}

// MsgAcknowledgement delivers a written acknowledgement back to the
// packet's source chain.
type MsgAcknowledgement struct {
	Packet      Packet
	Ack         []byte
	ProofHeight Height
}

// MsgTimeoutPacket proves to the source chain that a packet can no longer
// be delivered.
type MsgTimeoutPacket struct {
	Packet           Packet
	ProofHeight      Height
	NextSequenceRecv uint64
}

// MsgChannelCloseConfirm completes a channel close on the counterparty.
type MsgChannelCloseConfirm struct {
	PortID      PortID
	ChannelID   ChannelID
	ProofHeight Height
}

// MsgSubmitMisbehaviour freezes a client with conflicting headers.
type MsgSubmitMisbehaviour struct {
	ClientID ClientID
	Header1  SignedHeader
	Header2  SignedHeader
}

func (MsgUpdateClient) MsgType() string        { return "update_client" }
func (MsgRecvPacket) MsgType() string          { return "recv_packet" }
func (MsgAcknowledgement) MsgType() string     { return "acknowledgement" }
func (MsgTimeoutPacket) MsgType() string       { return "timeout_packet" }
func (MsgChannelCloseConfirm) MsgType() string { return "channel_close_confirm" }
func (MsgSubmitMisbehaviour) MsgType() string  { return "submit_misbehaviour" }
