// Package relay implements the two relay primitives the workers drive:
// ForeignClient, which keeps an on-chain light client fresh and watches
// for misbehaviour, and Link, which schedules and executes packet relay
// transactions over one channel path.
package relay

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/ibc"
	"github.com/crosschain/relayd/telemetry"
)

// ExpiredOrFrozenError reports a client that can no longer be refreshed:
// either its trusting period lapsed or misbehaviour evidence froze it.
type ExpiredOrFrozenError struct {
	ClientID ibc.ClientID
	ChainID  ibc.ChainID
}

func (e *ExpiredOrFrozenError) Error() string {
	return fmt.Sprintf("client %s on chain %s is expired or frozen", e.ClientID, e.ChainID)
}

// MisbehaviourResult is the outcome of one misbehaviour detection pass.
type MisbehaviourResult int

const (
	// ValidClient: no conflicting header found.
	ValidClient MisbehaviourResult = iota
	// VerificationError: detection could not complete; retry later.
	VerificationError
	// EvidenceSubmitted: conflicting headers were submitted to the host
	// chain; the client will be frozen.
	EvidenceSubmitted
	// CannotExecute: the chain does not provide what detection needs
	// (e.g. update events without embedded headers).
	CannotExecute
)

func (r MisbehaviourResult) String() string {
	switch r {
	case ValidClient:
		return "valid client"
	case VerificationError:
		return "verification error"
	case EvidenceSubmitted:
		return "evidence submitted"
	case CannotExecute:
		return "cannot execute"
	default:
		return fmt.Sprintf("misbehaviour result %d", int(r))
	}
}

// ForeignClient is a light client hosted on dst tracking the consensus
// of src.
type ForeignClient struct {
	id   ibc.ClientID
	dst  chain.Handle
	src  chain.Handle
	lg   log.Logger
	sink telemetry.Sink
}

// NewForeignClient returns a client view for the given identifier,
// hosted on dst and tracking src.
func NewForeignClient(id ibc.ClientID, dst, src chain.Handle, sink telemetry.Sink) *ForeignClient {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &ForeignClient{
		id:   id,
		dst:  dst,
		src:  src,
		lg:   log.New("client", id, "dst", dst.ID(), "src", src.ID()),
		sink: sink,
	}
}

// ID returns the client identifier on the host chain.
func (c *ForeignClient) ID() ibc.ClientID { return c.id }

func (c *ForeignClient) String() string {
	return fmt.Sprintf("%s -> %s:%s", c.src.ID(), c.dst.ID(), c.id)
}

// Refresh advances the client's on-chain state when it is due. A frozen
// or expired client returns ExpiredOrFrozenError; callers treat that as
// terminal. All other failures are transient.
func (c *ForeignClient) Refresh() error {
	state, err := c.dst.QueryClientState(c.id, ibc.ZeroHeight())
	if err != nil {
		return fmt.Errorf("refresh: querying client state: %w", err)
	}
	if state.IsFrozen() {
		return &ExpiredOrFrozenError{ClientID: c.id, ChainID: c.dst.ID()}
	}
	if state.TrustingPeriod == 0 {
		// The client does not require refresh.
		return nil
	}

	elapsed := time.Since(state.LatestTimestamp)
	if elapsed >= state.TrustingPeriod {
		return &ExpiredOrFrozenError{ClientID: c.id, ChainID: c.dst.ID()}
	}
	if elapsed < state.RefreshPeriod() {
		return nil
	}

	header, err := c.src.BuildHeader(state.LatestHeight, ibc.ZeroHeight())
	if err != nil {
		return fmt.Errorf("refresh: building header: %w", err)
	}

	c.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TxCount, Delta: 1})
	if _, err := c.dst.SendMsgs([]ibc.Msg{ibc.MsgUpdateClient{ClientID: c.id, Header: header}}); err != nil {
		c.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TxFailed, Delta: 1})
		return fmt.Errorf("refresh: submitting update: %w", err)
	}
	c.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TxSuccess, Delta: 1})

	c.lg.Info("refreshed client", "height", header.Height)
	return nil
}

// DetectMisbehaviour checks the client for conflicting headers. With a
// nil update it audits the client's latest stored consensus state;
// otherwise it verifies the given update against the source chain.
// Detected conflicts are submitted as evidence to the host chain.
func (c *ForeignClient) DetectMisbehaviour(update *ibc.UpdateClient) MisbehaviourResult {
	if update != nil {
		return c.detectForUpdate(*update)
	}
	return c.detectLatest()
}

func (c *ForeignClient) detectLatest() MisbehaviourResult {
	state, err := c.dst.QueryClientState(c.id, ibc.ZeroHeight())
	if err != nil {
		c.lg.Debug("misbehaviour: client state query failed", "err", err)
		return VerificationError
	}
	consensus, err := c.dst.QueryConsensusState(c.id, state.LatestHeight)
	if err != nil {
		c.lg.Debug("misbehaviour: consensus state query failed", "err", err)
		return VerificationError
	}
	if len(consensus.HeaderHash) == 0 {
		// The host chain does not expose header commitments.
		return CannotExecute
	}
	header, err := c.src.BuildHeader(state.LatestHeight, state.LatestHeight)
	if err != nil {
		c.lg.Debug("misbehaviour: header fetch failed", "height", state.LatestHeight, "err", err)
		return VerificationError
	}
	if bytes.Equal(header.Hash(), consensus.HeaderHash) {
		return ValidClient
	}
	return c.submitEvidence(header, ibc.SignedHeader{Height: state.LatestHeight})
}

func (c *ForeignClient) detectForUpdate(update ibc.UpdateClient) MisbehaviourResult {
	if len(update.Header) == 0 {
		// Update events without embedded headers cannot be checked.
		return CannotExecute
	}
	onChain := ibc.SignedHeader{Height: update.ConsensusHeight, Raw: update.Header}
	header, err := c.src.BuildHeader(update.ConsensusHeight, update.ConsensusHeight)
	if err != nil {
		c.lg.Debug("misbehaviour: header fetch failed", "height", update.ConsensusHeight, "err", err)
		return VerificationError
	}
	if bytes.Equal(header.Raw, onChain.Raw) {
		return ValidClient
	}
	return c.submitEvidence(header, onChain)
}

func (c *ForeignClient) submitEvidence(trusted, conflicting ibc.SignedHeader) MisbehaviourResult {
	c.lg.Warn("misbehaviour detected, submitting evidence", "height", trusted.Height)

	msg := ibc.MsgSubmitMisbehaviour{ClientID: c.id, Header1: conflicting, Header2: trusted}
	c.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TxCount, Delta: 1})
	if _, err := c.dst.SendMsgs([]ibc.Msg{msg}); err != nil {
		c.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TxFailed, Delta: 1})
		c.lg.Error("misbehaviour evidence submission failed", "err", err)
		return VerificationError
	}
	c.sink.Send(telemetry.MetricUpdate{Kind: telemetry.TxSuccess, Delta: 1})
	return EvidenceSubmitted
}
