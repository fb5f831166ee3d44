package supervisor

import (
	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/ibc"
)

// CollectedEvents is the result of classifying one event batch: the
// events bucketed per object, plus the batch's NewBlock marker if any.
type CollectedEvents struct {
	Height    ibc.Height
	ChainID   ibc.ChainID
	NewBlock  *ibc.NewBlock
	PerObject map[Object][]ibc.Event
}

// HasNewBlock reports whether the batch carried a NewBlock event.
func (c *CollectedEvents) HasNewBlock() bool { return c.NewBlock != nil }

// collectEvents classifies a batch from src against the relay
// responsibilities. Events whose object cannot be resolved are dropped
// and logged; classification never fails a batch. UpdateClient events
// are only collected when their client worker already exists — channel
// handshake events are the bootstrap path for client workers.
func (s *Supervisor) collectEvents(src chain.Handle, batch ibc.EventBatch) CollectedEvents {
	collected := CollectedEvents{
		Height:    batch.Height,
		ChainID:   batch.ChainID,
		PerObject: make(map[Object][]ibc.Event),
	}

	for _, ev := range batch.Events {
		var (
			obj Object
			err error
		)
		switch e := ev.(type) {
		case ibc.NewBlock:
			nb := e
			collected.NewBlock = &nb
			continue
		case ibc.UpdateClient:
			obj, err = objectForUpdateClient(e, src)
			if err == nil {
				if _, ok := s.workers[obj]; !ok {
					continue
				}
			}
		case ibc.OpenAckChannel:
			obj, err = objectForChannelOpen(e.Attributes, src)
		case ibc.OpenConfirmChannel:
			obj, err = objectForChannelOpen(e.Attributes, src)
		case ibc.SendPacket:
			obj, err = objectForSendPacket(e, src)
		case ibc.WriteAcknowledgement:
			obj, err = objectForWriteAck(e, src)
		case ibc.TimeoutPacket:
			obj, err = objectForTimeoutPacket(e, src)
		case ibc.CloseInitChannel:
			obj, err = objectForCloseInit(e, src)
		default:
			continue
		}
		if err != nil {
			s.lg.Warn("dropping event without object", "chain", batch.ChainID,
				"type", ev.Type(), "err", err)
			continue
		}
		collected.PerObject[obj] = append(collected.PerObject[obj], ev)
	}

	return collected
}
