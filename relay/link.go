package relay

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/ibc"
	"github.com/crosschain/relayd/telemetry"
)

const transferPort ibc.PortID = "transfer"

// Link relays packets over one channel path between two chains. Only the
// src→dst direction is driven here; the reverse direction is a separate
// link owned by a separate worker.
type Link struct {
	AToB *RelayPath
}

// NewLink builds a link for the channel (srcPort, srcChannel) on src,
// verifying that the channel exists.
func NewLink(src, dst chain.Handle, srcPort ibc.PortID, srcChannel ibc.ChannelID, sink telemetry.Sink) (*Link, error) {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	if _, err := src.QueryChannel(srcPort, srcChannel, ibc.ZeroHeight()); err != nil {
		return nil, fmt.Errorf("link: channel %s/%s on %s: %w", srcPort, srcChannel, src.ID(), err)
	}
	return &Link{
		AToB: &RelayPath{
			src:        src,
			dst:        dst,
			srcPort:    srcPort,
			srcChannel: srcChannel,
			sink:       sink,
			lg: log.New("path", fmt.Sprintf("%s/%s:%s->%s",
				srcChannel, srcPort, src.ID(), dst.ID())),
		},
	}, nil
}

// IsClosed reports whether the underlying channel end has been closed.
func (l *Link) IsClosed() (bool, error) {
	end, err := l.AToB.src.QueryChannel(l.AToB.srcPort, l.AToB.srcChannel, ibc.ZeroHeight())
	if err != nil {
		return false, fmt.Errorf("link: querying channel state: %w", err)
	}
	return end.IsClosed(), nil
}

// relayOp is one message awaiting submission, with the time it becomes
// eligible.
type relayOp struct {
	msg     ibc.Msg
	readyAt time.Time
}

// RelayPath drives the src→dst direction of a link: it turns source
// events into relay messages, keeps a schedule of pending operations,
// and submits the eligible ones.
type RelayPath struct {
	src        chain.Handle
	dst        chain.Handle
	srcPort    ibc.PortID
	srcChannel ibc.ChannelID
	lg         log.Logger
	sink       telemetry.Sink

	pending []relayOp
	ready   []ibc.Msg
}

// UpdateSchedule merges a batch of source-chain events into the relay
// plan.
func (p *RelayPath) UpdateSchedule(batch ibc.EventBatch) error {
	proofHeight := batch.Height.Increment()
	for _, ev := range batch.Events {
		switch e := ev.(type) {
		case ibc.SendPacket:
			p.schedule(ibc.MsgRecvPacket{Packet: e.Packet, ProofHeight: proofHeight})
			if e.Packet.SourcePort == transferPort {
				p.sink.Send(telemetry.MetricUpdate{Kind: telemetry.IbcTransferSend, Delta: 1})
			}
		case ibc.WriteAcknowledgement:
			p.schedule(ibc.MsgAcknowledgement{Packet: e.Packet, Ack: e.Ack, ProofHeight: proofHeight})
		case ibc.TimeoutPacket:
			p.schedule(ibc.MsgTimeoutPacket{Packet: e.Packet, ProofHeight: proofHeight})
		case ibc.CloseInitChannel:
			p.schedule(ibc.MsgChannelCloseConfirm{
				PortID:      e.CounterpartyPortID,
				ChannelID:   e.CounterpartyChannelID,
				ProofHeight: proofHeight,
			})
		}
	}
	return nil
}

// ClearPackets drives outstanding traffic at a new source block: packets
// sent but not received, and acknowledgements written but not processed.
func (p *RelayPath) ClearPackets(height ibc.Height) error {
	srcEnd, err := p.src.QueryChannel(p.srcPort, p.srcChannel, ibc.ZeroHeight())
	if err != nil {
		return fmt.Errorf("clear: querying source channel: %w", err)
	}
	cp := srcEnd.Counterparty

	// Un-received packets: commitments on src minus receipts on dst.
	commitments, _, err := p.src.QueryPacketCommitments(p.srcPort, p.srcChannel)
	if err != nil {
		return fmt.Errorf("clear: querying packet commitments: %w", err)
	}
	if len(commitments) > 0 {
		unreceived, err := p.dst.QueryUnreceivedPackets(cp.PortID, cp.ChannelID, commitments)
		if err != nil {
			return fmt.Errorf("clear: querying unreceived packets: %w", err)
		}
		if len(unreceived) > 0 {
			packets, err := p.src.QueryPackets(p.srcPort, p.srcChannel, unreceived)
			if err != nil {
				return fmt.Errorf("clear: querying packet data: %w", err)
			}
			p.lg.Info("clearing unreceived packets", "count", len(packets), "height", height)
			for _, pkt := range packets {
				p.schedule(ibc.MsgRecvPacket{Packet: pkt, ProofHeight: height})
			}
		}
	}

	// Un-processed acknowledgements: acks written on src minus those the
	// counterparty has consumed.
	acks, err := p.src.QueryPacketAcks(p.srcPort, p.srcChannel, nil)
	if err != nil {
		return fmt.Errorf("clear: querying packet acks: %w", err)
	}
	if len(acks) > 0 {
		seqs := make([]uint64, 0, len(acks))
		for _, a := range acks {
			seqs = append(seqs, a.Packet.Sequence)
		}
		unprocessed, err := p.dst.QueryUnreceivedAcks(cp.PortID, cp.ChannelID, seqs)
		if err != nil {
			return fmt.Errorf("clear: querying unreceived acks: %w", err)
		}
		if len(unprocessed) > 0 {
			want := make(map[uint64]bool, len(unprocessed))
			for _, s := range unprocessed {
				want[s] = true
			}
			cleared := 0
			for _, a := range acks {
				if want[a.Packet.Sequence] {
					p.schedule(ibc.MsgAcknowledgement{Packet: a.Packet, Ack: a.Ack, ProofHeight: height})
					cleared++
				}
			}
			p.lg.Info("clearing unprocessed acks", "count", cleared, "height", height)
		}
	}

	return nil
}

// RefreshSchedule promotes pending operations whose scheduled time has
// passed into the ready queue.
func (p *RelayPath) RefreshSchedule() error {
	if len(p.pending) == 0 {
		return nil
	}
	now := time.Now()
	kept := p.pending[:0]
	for _, op := range p.pending {
		if op.readyAt.After(now) {
			kept = append(kept, op)
			continue
		}
		p.ready = append(p.ready, op.msg)
	}
	p.pending = kept
	return nil
}

// ExecuteSchedule submits the ready operations as one transaction batch.
func (p *RelayPath) ExecuteSchedule() error {
	if len(p.ready) == 0 {
		return nil
	}
	msgs := p.ready
	p.ready = nil

	p.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TxCount, Delta: uint64(len(msgs))})
	if _, err := p.dst.SendMsgs(msgs); err != nil {
		p.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TxFailed, Delta: uint64(len(msgs))})
		return fmt.Errorf("executing schedule: %w", err)
	}
	p.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TxSuccess, Delta: uint64(len(msgs))})

	for _, m := range msgs {
		switch msg := m.(type) {
		case ibc.MsgRecvPacket:
			p.sink.Send(telemetry.MetricUpdate{Kind: telemetry.IbcRecvPacket, Delta: 1})
			if msg.Packet.SourcePort == transferPort {
				p.sink.Send(telemetry.MetricUpdate{Kind: telemetry.IbcTransferReceive, Delta: 1})
			}
		case ibc.MsgAcknowledgement:
			p.sink.Send(telemetry.MetricUpdate{Kind: telemetry.IbcAcknowledgePacket, Delta: 1})
		case ibc.MsgTimeoutPacket:
			p.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TimeoutPacket, Delta: 1})
		}
	}

	p.lg.Debug("executed schedule", "msgs", len(msgs))
	return nil
}

func (p *RelayPath) schedule(msg ibc.Msg) {
	p.pending = append(p.pending, relayOp{msg: msg, readyAt: time.Now()})
}
