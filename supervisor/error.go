package supervisor

import (
	"fmt"

	"github.com/crosschain/relayd/ibc"
)

// ChannelNotOpenError reports a channel end that has not completed its
// handshake (or was closed).
type ChannelNotOpenError struct {
	ChannelID ibc.ChannelID
	ChainID   ibc.ChainID
}

func (e *ChannelNotOpenError) Error() string {
	return fmt.Sprintf("channel %s on chain %s is not open", e.ChannelID, e.ChainID)
}

// ConnectionNotOpenError reports a connection end that has not completed
// its handshake.
type ConnectionNotOpenError struct {
	ConnectionID ibc.ConnectionID
	ChannelID    ibc.ChannelID
	ChainID      ibc.ChainID
}

func (e *ConnectionNotOpenError) Error() string {
	return fmt.Sprintf("connection %s (channel %s) on chain %s is not open",
		e.ConnectionID, e.ChannelID, e.ChainID)
}

// MissingConnectionHopsError reports a channel end without connection
// hops.
type MissingConnectionHopsError struct {
	ChannelID ibc.ChannelID
	ChainID   ibc.ChainID
}

func (e *MissingConnectionHopsError) Error() string {
	return fmt.Sprintf("channel %s on chain %s has no connection hops", e.ChannelID, e.ChainID)
}

// QueryFailedError wraps a chain query failure during object resolution.
type QueryFailedError struct {
	Err error
}

func (e *QueryFailedError) Error() string { return fmt.Sprintf("query failed: %v", e.Err) }
func (e *QueryFailedError) Unwrap() error { return e.Err }

// BatchSourceMismatchError reports a batch received from a handle whose
// chain id differs from the batch's.
type BatchSourceMismatchError struct {
	HandleID ibc.ChainID
	BatchID  ibc.ChainID
}

func (e *BatchSourceMismatchError) Error() string {
	return fmt.Sprintf("batch from chain %s received on handle for chain %s", e.BatchID, e.HandleID)
}
