package chain

import (
	"fmt"
	"sync"

	"github.com/crosschain/relayd/ibc"
)

type channelKey struct {
	port    ibc.PortID
	channel ibc.ChannelID
}

type consensusKey struct {
	client ibc.ClientID
	height ibc.Height
}

// Mock is an in-memory Driver with settable state, used by tests and the
// dev harness. All methods are safe for concurrent use so tests can
// mutate state while a runtime reads it.
type Mock struct {
	id ibc.ChainID

	mu          sync.Mutex
	err         error
	height      ibc.Height
	blocks      map[ibc.Height][]ibc.Event
	channels    map[channelKey]ibc.ChannelEnd
	connections map[ibc.ConnectionID]ibc.ConnectionEnd
	clients     map[ibc.ClientID]ibc.ClientState
	consensus   map[consensusKey]ibc.ConsensusState
	headers     map[ibc.Height]ibc.SignedHeader
	commitments map[channelKey][]uint64
	packets     map[channelKey]map[uint64]ibc.Packet
	acks        map[channelKey][]ibc.PacketAck
	received    map[channelKey]map[uint64]bool
	ackSeen     map[channelKey]map[uint64]bool
	submitted   [][]ibc.Msg
	closed      bool
}

// NewMock returns an empty mock chain at height (0, 1).
func NewMock(id ibc.ChainID) *Mock {
	return &Mock{
		id:          id,
		height:      ibc.NewHeight(0, 1),
		blocks:      make(map[ibc.Height][]ibc.Event),
		channels:    make(map[channelKey]ibc.ChannelEnd),
		connections: make(map[ibc.ConnectionID]ibc.ConnectionEnd),
		clients:     make(map[ibc.ClientID]ibc.ClientState),
		consensus:   make(map[consensusKey]ibc.ConsensusState),
		headers:     make(map[ibc.Height]ibc.SignedHeader),
		commitments: make(map[channelKey][]uint64),
		packets:     make(map[channelKey]map[uint64]ibc.Packet),
		acks:        make(map[channelKey][]ibc.PacketAck),
		received:    make(map[channelKey]map[uint64]bool),
		ackSeen:     make(map[channelKey]map[uint64]bool),
	}
}

// SetError makes every query and submission fail with err until cleared
// with nil.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetLatestHeight moves the chain head.
func (m *Mock) SetLatestHeight(h ibc.Height) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = h
}

// AddBlock commits a new block carrying the given events and returns its
// height.
func (m *Mock) AddBlock(events ...ibc.Event) ibc.Height {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = m.height.Increment()
	m.blocks[m.height] = events
	return m.height
}

// SetChannel installs a channel end.
func (m *Mock) SetChannel(port ibc.PortID, channel ibc.ChannelID, end ibc.ChannelEnd) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelKey{port, channel}] = end
}

// SetConnection installs a connection end.
func (m *Mock) SetConnection(id ibc.ConnectionID, end ibc.ConnectionEnd) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[id] = end
}

// SetClient installs a client state.
func (m *Mock) SetClient(id ibc.ClientID, state ibc.ClientState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[id] = state
}

// SetConsensusState installs the consensus state a client stores for a
// height.
func (m *Mock) SetConsensusState(id ibc.ClientID, height ibc.Height, cs ibc.ConsensusState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consensus[consensusKey{id, height}] = cs
}

// SetHeader fixes the signed header returned for a height.
func (m *Mock) SetHeader(h ibc.SignedHeader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[h.Height] = h
}

// SetCommitments fixes the outstanding packet commitments on a channel.
func (m *Mock) SetCommitments(port ibc.PortID, channel ibc.ChannelID, seqs ...uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitments[channelKey{port, channel}] = seqs
}

// SetPacket stores the packet data for a sent sequence.
func (m *Mock) SetPacket(port ibc.PortID, channel ibc.ChannelID, pkt ibc.Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := channelKey{port, channel}
	if m.packets[key] == nil {
		m.packets[key] = make(map[uint64]ibc.Packet)
	}
	m.packets[key][pkt.Sequence] = pkt
}

// SetAck stores a written acknowledgement on a channel.
func (m *Mock) SetAck(port ibc.PortID, channel ibc.ChannelID, ack ibc.PacketAck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := channelKey{port, channel}
	m.acks[key] = append(m.acks[key], ack)
}

// MarkReceived records sequences as received on this chain.
func (m *Mock) MarkReceived(port ibc.PortID, channel ibc.ChannelID, seqs ...uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := channelKey{port, channel}
	if m.received[key] == nil {
		m.received[key] = make(map[uint64]bool)
	}
	for _, s := range seqs {
		m.received[key][s] = true
	}
}

// MarkAcked records acknowledgement sequences as processed on this chain.
func (m *Mock) MarkAcked(port ibc.PortID, channel ibc.ChannelID, seqs ...uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := channelKey{port, channel}
	if m.ackSeen[key] == nil {
		m.ackSeen[key] = make(map[uint64]bool)
	}
	for _, s := range seqs {
		m.ackSeen[key][s] = true
	}
}

// Submitted returns all message batches submitted so far.
func (m *Mock) Submitted() [][]ibc.Msg {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]ibc.Msg, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// Closed reports whether the driver was shut down.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) ChainID() ibc.ChainID { return m.id }

func (m *Mock) LatestHeight() (ibc.Height, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ibc.Height{}, m.err
	}
	return m.height, nil
}

func (m *Mock) BlockEvents(height ibc.Height) ([]ibc.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.blocks[height], nil
}

func (m *Mock) Channels() ([]ibc.IdentifiedChannelEnd, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]ibc.IdentifiedChannelEnd, 0, len(m.channels))
	for key, end := range m.channels {
		out = append(out, ibc.IdentifiedChannelEnd{PortID: key.port, ChannelID: key.channel, End: end})
	}
	return out, nil
}

func (m *Mock) Channel(port ibc.PortID, channel ibc.ChannelID, _ ibc.Height) (ibc.ChannelEnd, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ibc.ChannelEnd{}, m.err
	}
	end, ok := m.channels[channelKey{port, channel}]
	if !ok {
		return ibc.ChannelEnd{}, fmt.Errorf("channel %s/%s not found on %s", port, channel, m.id)
	}
	return end, nil
}

func (m *Mock) Connection(id ibc.ConnectionID, _ ibc.Height) (ibc.ConnectionEnd, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ibc.ConnectionEnd{}, m.err
	}
	end, ok := m.connections[id]
	if !ok {
		return ibc.ConnectionEnd{}, fmt.Errorf("connection %s not found on %s", id, m.id)
	}
	return end, nil
}

func (m *Mock) ClientState(id ibc.ClientID, _ ibc.Height) (ibc.ClientState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ibc.ClientState{}, m.err
	}
	state, ok := m.clients[id]
	if !ok {
		return ibc.ClientState{}, fmt.Errorf("client %s not found on %s", id, m.id)
	}
	return state, nil
}

func (m *Mock) ConsensusState(id ibc.ClientID, height ibc.Height) (ibc.ConsensusState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ibc.ConsensusState{}, m.err
	}
	cs, ok := m.consensus[consensusKey{id, height}]
	if !ok {
		return ibc.ConsensusState{}, fmt.Errorf("consensus state for %s at %s not found on %s", id, height, m.id)
	}
	return cs, nil
}

func (m *Mock) PacketCommitments(port ibc.PortID, channel ibc.ChannelID) ([]uint64, ibc.Height, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, ibc.Height{}, m.err
	}
	return m.commitments[channelKey{port, channel}], m.height, nil
}

func (m *Mock) UnreceivedPackets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	seen := m.received[channelKey{port, channel}]
	var out []uint64
	for _, s := range seqs {
		if !seen[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Mock) UnreceivedAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	seen := m.ackSeen[channelKey{port, channel}]
	var out []uint64
	for _, s := range seqs {
		if !seen[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Mock) Packets(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.Packet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	stored := m.packets[channelKey{port, channel}]
	var out []ibc.Packet
	for _, s := range seqs {
		if pkt, ok := stored[s]; ok {
			out = append(out, pkt)
		}
	}
	return out, nil
}

func (m *Mock) PacketAcks(port ibc.PortID, channel ibc.ChannelID, seqs []uint64) ([]ibc.PacketAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	stored := m.acks[channelKey{port, channel}]
	if len(seqs) == 0 {
		out := make([]ibc.PacketAck, len(stored))
		copy(out, stored)
		return out, nil
	}
	want := make(map[uint64]bool, len(seqs))
	for _, s := range seqs {
		want[s] = true
	}
	var out []ibc.PacketAck
	for _, a := range stored {
		if want[a.Packet.Sequence] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Mock) SignedHeader(_, target ibc.Height) (ibc.SignedHeader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ibc.SignedHeader{}, m.err
	}
	if target.IsZero() {
		target = m.height
	}
	if hdr, ok := m.headers[target]; ok {
		return hdr, nil
	}
	// Synthesize a deterministic header for heights tests did not pin.
	return ibc.SignedHeader{
		Height: target,
		Raw:    []byte(fmt.Sprintf("%s@%s", m.id, target)),
	}, nil
}

func (m *Mock) Submit(msgs []ibc.Msg) ([]ibc.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.submitted = append(m.submitted, msgs)
	return nil, nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
