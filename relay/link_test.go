package relay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/ibc"
)

const (
	srcPort    ibc.PortID    = "transfer"
	srcChannel ibc.ChannelID = "ch-0"
)

func newTestLink(t *testing.T) (*Link, *chain.Mock, *chain.Mock) {
	t.Helper()
	src := chain.NewMock("ibc-0")
	dst := chain.NewMock("ibc-1")
	src.SetChannel(srcPort, srcChannel, ibc.ChannelEnd{
		State:          ibc.ChannelOpen,
		ConnectionHops: []ibc.ConnectionID{"conn-0"},
		Counterparty:   ibc.ChannelCounterparty{PortID: "transfer", ChannelID: "ch-1"},
	})

	link, err := NewLink(handleFor(t, src), handleFor(t, dst), srcPort, srcChannel, nil)
	require.NoError(t, err)
	return link, src, dst
}

func testPacket(seq uint64) ibc.Packet {
	return ibc.Packet{
		Sequence:           seq,
		SourcePort:         srcPort,
		SourceChannel:      srcChannel,
		DestinationPort:    "transfer",
		DestinationChannel: "ch-1",
		Data:               []byte("payload"),
	}
}

func TestNewLinkUnknownChannel(t *testing.T) {
	src := chain.NewMock("ibc-0")
	dst := chain.NewMock("ibc-1")

	_, err := NewLink(handleFor(t, src), handleFor(t, dst), srcPort, "ch-9", nil)
	require.Error(t, err)
}

func TestIsClosed(t *testing.T) {
	link, src, _ := newTestLink(t)

	closed, err := link.IsClosed()
	require.NoError(t, err)
	require.False(t, closed)

	src.SetChannel(srcPort, srcChannel, ibc.ChannelEnd{State: ibc.ChannelClosed})
	closed, err = link.IsClosed()
	require.NoError(t, err)
	require.True(t, closed)
}

func TestUpdateScheduleExecute(t *testing.T) {
	link, _, dst := newTestLink(t)
	path := link.AToB

	height := ibc.NewHeight(1, 10)
	batch := ibc.EventBatch{
		ChainID: "ibc-0",
		Height:  height,
		Events: []ibc.Event{
			ibc.SendPacket{Packet: testPacket(1)},
			ibc.WriteAcknowledgement{Packet: testPacket(2), Ack: []byte("ok")},
		},
	}
	require.NoError(t, path.UpdateSchedule(batch))

	// Nothing is submitted until the schedule is refreshed and executed.
	require.Empty(t, dst.Submitted())

	require.NoError(t, path.RefreshSchedule())
	require.NoError(t, path.ExecuteSchedule())

	submitted := dst.Submitted()
	require.Len(t, submitted, 1)
	require.Len(t, submitted[0], 2)

	recv, ok := submitted[0][0].(ibc.MsgRecvPacket)
	require.True(t, ok, "expected MsgRecvPacket, got %T", submitted[0][0])
	require.Equal(t, uint64(1), recv.Packet.Sequence)
	require.Equal(t, height.Increment(), recv.ProofHeight)

	ack, ok := submitted[0][1].(ibc.MsgAcknowledgement)
	require.True(t, ok, "expected MsgAcknowledgement, got %T", submitted[0][1])
	require.Equal(t, []byte("ok"), ack.Ack)
}

func TestExecuteScheduleEmpty(t *testing.T) {
	link, _, dst := newTestLink(t)

	require.NoError(t, link.AToB.RefreshSchedule())
	require.NoError(t, link.AToB.ExecuteSchedule())
	require.Empty(t, dst.Submitted())
}

func TestClearPackets(t *testing.T) {
	link, src, dst := newTestLink(t)
	path := link.AToB

	// Sequences 1 and 2 are outstanding on src; dst has received 1.
	src.SetCommitments(srcPort, srcChannel, 1, 2)
	src.SetPacket(srcPort, srcChannel, testPacket(1))
	src.SetPacket(srcPort, srcChannel, testPacket(2))
	dst.MarkReceived("transfer", "ch-1", 1)

	// An ack for sequence 7 is written on src; dst has not consumed it.
	src.SetAck(srcPort, srcChannel, ibc.PacketAck{Packet: testPacket(7), Ack: []byte("late")})

	height := ibc.NewHeight(1, 20)
	require.NoError(t, path.ClearPackets(height))
	require.NoError(t, path.RefreshSchedule())
	require.NoError(t, path.ExecuteSchedule())

	submitted := dst.Submitted()
	require.Len(t, submitted, 1)
	require.Len(t, submitted[0], 2)

	recv, ok := submitted[0][0].(ibc.MsgRecvPacket)
	require.True(t, ok, "expected MsgRecvPacket, got %T", submitted[0][0])
	require.Equal(t, uint64(2), recv.Packet.Sequence, "only the unreceived packet is re-driven")

	ack, ok := submitted[0][1].(ibc.MsgAcknowledgement)
	require.True(t, ok, "expected MsgAcknowledgement, got %T", submitted[0][1])
	require.Equal(t, uint64(7), ack.Packet.Sequence)
}

func TestClearPacketsNothingOutstanding(t *testing.T) {
	link, _, dst := newTestLink(t)

	require.NoError(t, link.AToB.ClearPackets(ibc.NewHeight(1, 20)))
	require.NoError(t, link.AToB.RefreshSchedule())
	require.NoError(t, link.AToB.ExecuteSchedule())
	require.Empty(t, dst.Submitted())
}
