package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/crosschain/relayd/config"
	"github.com/crosschain/relayd/ibc"
)

// rpcDriver talks JSON-RPC to a chain endpoint daemon exposing the ibc_*
// namespace. One driver per runtime; the runtime serializes calls.
type rpcDriver struct {
	id      ibc.ChainID
	client  *rpc.Client
	timeout time.Duration
}

// NewRPCDriver dials the endpoint named in the chain configuration.
func NewRPCDriver(cfg config.ChainConfig) (Driver, error) {
	client, err := rpc.Dial(cfg.RPCAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing chain %s at %s: %w", cfg.ID, cfg.RPCAddr, err)
	}
	return &rpcDriver{
		id:      cfg.ID,
		client:  client,
		timeout: cfg.RPCTimeout.Std(),
	}, nil
}

func (d *rpcDriver) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.timeout)
}

func (d *rpcDriver) ChainID() ibc.ChainID { return d.id }

func (d *rpcDriver) Close() error {
	d.client.Close()
	return nil
}

// Wire types. Heights travel as {revision_number, revision_height},
// binary payloads as base64.

type rpcHeight struct {
	RevisionNumber uint64 `json:"revision_number"`
	RevisionHeight uint64 `json:"revision_height"`
}

func (h rpcHeight) decode() ibc.Height {
	return ibc.Height{RevisionNumber: h.RevisionNumber, RevisionHeight: h.RevisionHeight}
}

func encodeHeight(h ibc.Height) rpcHeight {
	return rpcHeight{RevisionNumber: h.RevisionNumber, RevisionHeight: h.RevisionHeight}
}

type rpcPacket struct {
	Sequence           uint64    `json:"sequence"`
	SourcePort         string    `json:"source_port"`
	SourceChannel      string    `json:"source_channel"`
	DestinationPort    string    `json:"destination_port"`
	DestinationChannel string    `json:"destination_channel"`
	Data               string    `json:"data"`
	TimeoutHeight      rpcHeight `json:"timeout_height"`
	TimeoutTimestamp   uint64    `json:"timeout_timestamp"`
}

func (p rpcPacket) decode() ibc.Packet {
	data, _ := base64.StdEncoding.DecodeString(p.Data)
	return ibc.Packet{
		Sequence:           p.Sequence,
		SourcePort:         ibc.PortID(p.SourcePort),
		SourceChannel:      ibc.ChannelID(p.SourceChannel),
		DestinationPort:    ibc.PortID(p.DestinationPort),
		DestinationChannel: ibc.ChannelID(p.DestinationChannel),
		Data:               data,
		TimeoutHeight:      p.TimeoutHeight.decode(),
		TimeoutTimestamp:   p.TimeoutTimestamp,
	}
}

type rpcChannelEnd struct {
	State                 string   `json:"state"`
	Ordering              string   `json:"ordering"`
	CounterpartyPortID    string   `json:"counterparty_port_id"`
	CounterpartyChannelID string   `json:"counterparty_channel_id"`
	ConnectionHops        []string `json:"connection_hops"`
	Version               string   `json:"version"`
}

func (c rpcChannelEnd) decode() ibc.ChannelEnd {
	hops := make([]ibc.ConnectionID, 0, len(c.ConnectionHops))
	for _, h := range c.ConnectionHops {
		hops = append(hops, ibc.ConnectionID(h))
	}
	end := ibc.ChannelEnd{
		Counterparty: ibc.ChannelCounterparty{
			PortID:    ibc.PortID(c.CounterpartyPortID),
			ChannelID: ibc.ChannelID(c.CounterpartyChannelID),
		},
		ConnectionHops: hops,
		Version:        c.Version,
	}
	switch c.State {
	case "INIT":
		end.State = ibc.ChannelInit
	case "TRYOPEN":
		end.State = ibc.ChannelTryOpen
	case "OPEN":
		end.State = ibc.ChannelOpen
	case "CLOSED":
		end.State = ibc.ChannelClosed
	}
	if c.Ordering == "ORDERED" {
		end.Ordering = ibc.Ordered
	}
	return end
}

type rpcConnectionEnd struct {
	State                  string `json:"state"`
	ClientID               string `json:"client_id"`
	CounterpartyClientID   string `json:"counterparty_client_id"`
	CounterpartyConnection string `json:"counterparty_connection_id"`
}

func (c rpcConnectionEnd) decode() ibc.ConnectionEnd {
	end := ibc.ConnectionEnd{
		ClientID: ibc.ClientID(c.ClientID),
		Counterparty: ibc.ConnectionCounterparty{
			ClientID:     ibc.ClientID(c.CounterpartyClientID),
			ConnectionID: ibc.ConnectionID(c.CounterpartyConnection),
		},
	}
	switch c.State {
	case "INIT":
		end.State = ibc.ConnectionInit
	case "TRYOPEN":
		end.State = ibc.ConnectionTryOpen
	case "OPEN":
		end.State = ibc.ConnectionOpen
	}
	return end
}

type rpcClientState struct {
	ChainID         string    `json:"chain_id"`
	TrustingPeriod  uint64    `json:"trusting_period"` // seconds
	LatestHeight    rpcHeight `json:"latest_height"`
	FrozenHeight    rpcHeight `json:"frozen_height"`
	LatestTimestamp int64     `json:"latest_timestamp"` // unix seconds
}

func (c rpcClientState) decode() ibc.ClientState {
	return ibc.ClientState{
		ChainID:         ibc.ChainID(c.ChainID),
		TrustingPeriod:  time.Duration(c.TrustingPeriod) * time.Second,
		LatestHeight:    c.LatestHeight.decode(),
		FrozenHeight:    c.FrozenHeight.decode(),
		LatestTimestamp: time.Unix(c.LatestTimestamp, 0),
	}
}

type rpcEvent struct {
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

func (d *rpcDriver) LatestHeight() (ibc.Height, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res rpcHeight
	if err := d.client.CallContext(ctx, &res, "ibc_latestHeight"); err != nil {
		return ibc.Height{}, err
	}
	return res.decode(), nil
}

func (d *rpcDriver) BlockEvents(height ibc.Height) ([]ibc.Event, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res []rpcEvent
	if err := d.client.CallContext(ctx, &res, "ibc_blockEvents", encodeHeight(height)); err != nil {
		return nil, err
	}
	events := make([]ibc.Event, 0, len(res))
	for _, raw := range res {
		ev, err := decodeEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s event at %s: %w", raw.Type, height, err)
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}

// decodeEvent maps a wire event to its typed variant. Unknown types
// decode to nil and are skipped; chains emit more than the relayer acts
// on.
func decodeEvent(raw rpcEvent) (ibc.Event, error) {
	switch ibc.EventType(raw.Type) {
	case ibc.TypeUpdateClient:
		var a struct {
			ClientID        string    `json:"client_id"`
			ConsensusHeight rpcHeight `json:"consensus_height"`
			Header          string    `json:"header"`
		}
		if err := json.Unmarshal(raw.Attributes, &a); err != nil {
			return nil, err
		}
		header, _ := base64.StdEncoding.DecodeString(a.Header)
		return ibc.UpdateClient{
			ClientID:        ibc.ClientID(a.ClientID),
			ConsensusHeight: a.ConsensusHeight.decode(),
			Header:          header,
		}, nil
	case ibc.TypeOpenAckChannel, ibc.TypeOpenConfirmChannel:
		var a struct {
			PortID                string `json:"port_id"`
			ChannelID             string `json:"channel_id"`
			ConnectionID          string `json:"connection_id"`
			CounterpartyPortID    string `json:"counterparty_port_id"`
			CounterpartyChannelID string `json:"counterparty_channel_id"`
		}
		if err := json.Unmarshal(raw.Attributes, &a); err != nil {
			return nil, err
		}
		attrs := ibc.ChannelAttributes{
			PortID:                ibc.PortID(a.PortID),
			ChannelID:             ibc.ChannelID(a.ChannelID),
			ConnectionID:          ibc.ConnectionID(a.ConnectionID),
			CounterpartyPortID:    ibc.PortID(a.CounterpartyPortID),
			CounterpartyChannelID: ibc.ChannelID(a.CounterpartyChannelID),
		}
		if ibc.EventType(raw.Type) == ibc.TypeOpenAckChannel {
			return ibc.OpenAckChannel{Attributes: attrs}, nil
		}
		return ibc.OpenConfirmChannel{Attributes: attrs}, nil
	case ibc.TypeCloseInitChannel:
		var a struct {
			PortID                string `json:"port_id"`
			ChannelID             string `json:"channel_id"`
			CounterpartyPortID    string `json:"counterparty_port_id"`
			CounterpartyChannelID string `json:"counterparty_channel_id"`
		}
		if err := json.Unmarshal(raw.Attributes, &a); err != nil {
			return nil, err
		}
		return ibc.CloseInitChannel{
			PortID:                ibc.PortID(a.PortID),
			ChannelID:             ibc.ChannelID(a.ChannelID),
			CounterpartyPortID:    ibc.PortID(a.CounterpartyPortID),
			CounterpartyChannelID: ibc.ChannelID(a.CounterpartyChannelID),
		}, nil
	case ibc.TypeSendPacket:
		var a struct {
			Packet rpcPacket `json:"packet"`
		}
		if err := json.Unmarshal(raw.Attributes, &a); err != nil {
			return nil, err
		}
		return ibc.SendPacket{Packet: a.Packet.decode()}, nil
	case ibc.TypeWriteAcknowledgement:
		var a struct {
			Packet rpcPacket `json:"packet"`
			Ack    string    `json:"ack"`
		}
		if err := json.Unmarshal(raw.Attributes, &a); err != nil {
			return nil, err
		}
		ack, _ := base64.StdEncoding.DecodeString(a.Ack)
		return ibc.WriteAcknowledgement{Packet: a.Packet.decode(), Ack: ack}, nil
	case ibc.TypeTimeoutPacket:
		var a struct {
			Packet rpcPacket `json:"packet"`
		}
		if err := json.Unmarshal(raw.Attributes, &a); err != nil {
			return nil, err
		}
		pkt := a.Packet.decode()
		return ibc.TimeoutPacket{
			Packet:       pkt,
			SrcChannelID: pkt.SourceChannel,
			SrcPortID:    pkt.SourcePort,
		}, nil
	default:
		return nil, nil
	}
}

func (d *rpcDriver) Channels() ([]ibc.IdentifiedChannelEnd, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res []struct {
		PortID    string        `json:"port_id"`
		ChannelID string        `json:"channel_id"`
		Channel   rpcChannelEnd `json:"channel"`
	}
	if err := d.client.CallContext(ctx, &res, "ibc_channels"); err != nil {
		return nil, err
	}
	channels := make([]ibc.IdentifiedChannelEnd, 0, len(res))
	for _, c := range res {
		channels = append(channels, ibc.IdentifiedChannelEnd{
			PortID:    ibc.PortID(c.PortID),
			ChannelID: ibc.ChannelID(c.ChannelID),
			End:       c.Channel.decode(),
		})
	}
	return channels, nil
}

func (d *rpcDriver) Channel(port ibc.PortID, channel ibc.ChannelID, height ibc.Height) (ibc.ChannelEnd, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res rpcChannelEnd
	if err := d.client.CallContext(ctx, &res, "ibc_channel", port, channel, encodeHeight(height)); err != nil {
		return ibc.ChannelEnd{}, err
	}
	return res.decode(), nil
}

func (d *rpcDriver) Connection(id ibc.ConnectionID, height ibc.Height) (ibc.ConnectionEnd, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res rpcConnectionEnd
	if err := d.client.CallContext(ctx, &res, "ibc_connection", id, encodeHeight(height)); err != nil {
		return ibc.ConnectionEnd{}, err
	}
	return res.decode(), nil
}

func (d *rpcDriver) ClientState(id ibc.ClientID, height ibc.Height) (ibc.ClientState, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res rpcClientState
	if err := d.client.CallContext(ctx, &res, "ibc_clientState", id, encodeHeight(height)); err != nil {
		return ibc.ClientState{}, err
	}
	return res.decode(), nil
}

func (d *rpcDriver) ConsensusState(id ibc.ClientID, height ibc.Height) (ibc.ConsensusState, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res struct {
		Timestamp  int64  `json:"timestamp"`
		HeaderHash string `json:"header_hash"`
	}
	if err := d.client.CallContext(ctx, &res, "ibc_consensusState", id, encodeHeight(height)); err != nil {
		return ibc.ConsensusState{}, err
	}
	hash, _ := base64.StdEncoding.DecodeString(res.HeaderHash)
	return ibc.ConsensusState{Timestamp: time.Unix(res.Timestamp, 0), HeaderHash: hash}, nil
}

func (d *rpcDriver) PacketCommitments(port ibc.PortID, channel ibc.ChannelID) ([]uint64, ibc.Height, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res struct {
		Sequences []uint64  `json:"sequences"`
		Height    rpcHeight `json:"height"`
	}
	if err := d.client.CallContext(ctx, &res, "ibc_packetCommitments", port, channel); err != nil {
		return nil, ibc.Height{}, err
	}
	return res.Sequences, res.Height.decode(), nil
}

func (d *rpcDriver) UnreceivedPackets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res []uint64
	if err := d.client.CallContext(ctx, &res, "ibc_unreceivedPackets", port, channel, seqs); err != nil {
		return nil, err
	}
	return res, nil
}

func (d *rpcDriver) UnreceivedAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res []uint64
	if err := d.client.CallContext(ctx, &res, "ibc_unreceivedAcks", port, channel, seqs); err != nil {
		return nil, err
	}
	return res, nil
}

func (d *rpcDriver) Packets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.Packet, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res []rpcPacket
	if err := d.client.CallContext(ctx, &res, "ibc_packets", port, channel, seqs); err != nil {
		return nil, err
	}
	packets := make([]ibc.Packet, 0, len(res))
	for _, p := range res {
		packets = append(packets, p.decode())
	}
	return packets, nil
}

func (d *rpcDriver) PacketAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.PacketAck, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res []struct {
		Packet rpcPacket `json:"packet"`
		Ack    string    `json:"ack"`
	}
	if err := d.client.CallContext(ctx, &res, "ibc_packetAcks", port, channel, seqs); err != nil {
		return nil, err
	}
	acks := make([]ibc.PacketAck, 0, len(res))
	for _, a := range res {
		ack, _ := base64.StdEncoding.DecodeString(a.Ack)
		acks = append(acks, ibc.PacketAck{Packet: a.Packet.decode(), Ack: ack})
	}
	return acks, nil
}

func (d *rpcDriver) SignedHeader(trusted, target ibc.Height) (ibc.SignedHeader, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	var res struct {
		Height    rpcHeight `json:"height"`
		Timestamp int64     `json:"timestamp"`
		Raw       string    `json:"raw"`
	}
	if err := d.client.CallContext(ctx, &res, "ibc_signedHeader", encodeHeight(trusted), encodeHeight(target)); err != nil {
		return ibc.SignedHeader{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(res.Raw)
	if err != nil {
		return ibc.SignedHeader{}, fmt.Errorf("decoding header payload: %w", err)
	}
	return ibc.SignedHeader{
		Height:    res.Height.decode(),
		Timestamp: time.Unix(res.Timestamp, 0),
		Raw:       raw,
	}, nil
}

func (d *rpcDriver) Submit(msgs []ibc.Msg) ([]ibc.Event, error) {
	ctx, cancel := d.ctx()
	defer cancel()
	wire := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		wire = append(wire, map[string]interface{}{"type": m.MsgType(), "msg": m})
	}
	var res []rpcEvent
	if err := d.client.CallContext(ctx, &res, "ibc_submit", wire); err != nil {
		return nil, err
	}
	events := make([]ibc.Event, 0, len(res))
	for _, raw := range res {
		ev, err := decodeEvent(raw)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}
