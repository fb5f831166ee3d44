package relay

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/crosschain/relayd/chain"
	"github.com/crosschain/relayd/ibc"
)

const clientID ibc.ClientID = "07-tendermint-0"

func handleFor(t *testing.T, mock *chain.Mock) chain.Handle {
	t.Helper()
	rt := chain.NewRuntime(mock, time.Hour, log.Root())
	t.Cleanup(rt.Stop)
	return rt.Handle()
}

func newTestClient(t *testing.T) (*ForeignClient, *chain.Mock, *chain.Mock) {
	t.Helper()
	dst := chain.NewMock("ibc-0")
	src := chain.NewMock("ibc-1")
	client := NewForeignClient(clientID, handleFor(t, dst), handleFor(t, src), nil)
	return client, dst, src
}

func TestRefreshNoopWhenFresh(t *testing.T) {
	client, dst, _ := newTestClient(t)
	dst.SetClient(clientID, ibc.ClientState{
		ChainID:         "ibc-1",
		TrustingPeriod:  14 * 24 * time.Hour,
		LatestHeight:    ibc.NewHeight(1, 100),
		LatestTimestamp: time.Now(),
	})

	require.NoError(t, client.Refresh())
	require.Empty(t, dst.Submitted())
}

func TestRefreshSendsUpdateWhenDue(t *testing.T) {
	client, dst, _ := newTestClient(t)
	trusting := 14 * 24 * time.Hour
	dst.SetClient(clientID, ibc.ClientState{
		ChainID:        "ibc-1",
		TrustingPeriod: trusting,
		LatestHeight:   ibc.NewHeight(1, 100),
		// Past the refresh window (2/3 of trusting) but not expired.
		LatestTimestamp: time.Now().Add(-trusting * 3 / 4),
	})

	require.NoError(t, client.Refresh())

	submitted := dst.Submitted()
	require.Len(t, submitted, 1)
	require.Len(t, submitted[0], 1)
	update, ok := submitted[0][0].(ibc.MsgUpdateClient)
	require.True(t, ok, "expected MsgUpdateClient, got %T", submitted[0][0])
	require.Equal(t, clientID, update.ClientID)
}

func TestRefreshExpired(t *testing.T) {
	client, dst, _ := newTestClient(t)
	dst.SetClient(clientID, ibc.ClientState{
		ChainID:         "ibc-1",
		TrustingPeriod:  time.Hour,
		LatestTimestamp: time.Now().Add(-2 * time.Hour),
	})

	err := client.Refresh()
	var expired *ExpiredOrFrozenError
	require.ErrorAs(t, err, &expired)
	require.Equal(t, clientID, expired.ClientID)
	require.Equal(t, ibc.ChainID("ibc-0"), expired.ChainID)
}

func TestRefreshFrozen(t *testing.T) {
	client, dst, _ := newTestClient(t)
	dst.SetClient(clientID, ibc.ClientState{
		ChainID:         "ibc-1",
		TrustingPeriod:  14 * 24 * time.Hour,
		FrozenHeight:    ibc.NewHeight(1, 50),
		LatestTimestamp: time.Now(),
	})

	var expired *ExpiredOrFrozenError
	require.ErrorAs(t, client.Refresh(), &expired)
}

func TestRefreshNoRefreshPeriod(t *testing.T) {
	client, dst, _ := newTestClient(t)
	dst.SetClient(clientID, ibc.ClientState{ChainID: "ibc-1"})

	require.NoError(t, client.Refresh())
	require.Empty(t, dst.Submitted())
}

func TestDetectMisbehaviourCannotExecute(t *testing.T) {
	client, _, _ := newTestClient(t)

	// Update events without an embedded header cannot be verified.
	update := ibc.UpdateClient{ClientID: clientID, ConsensusHeight: ibc.NewHeight(1, 10)}
	require.Equal(t, CannotExecute, client.DetectMisbehaviour(&update))
}

func TestDetectMisbehaviourValid(t *testing.T) {
	client, _, src := newTestClient(t)

	height := ibc.NewHeight(1, 10)
	header := ibc.SignedHeader{Height: height, Raw: []byte("header-10")}
	src.SetHeader(header)

	update := ibc.UpdateClient{ClientID: clientID, ConsensusHeight: height, Header: header.Raw}
	require.Equal(t, ValidClient, client.DetectMisbehaviour(&update))
}

func TestDetectMisbehaviourSubmitsEvidence(t *testing.T) {
	client, dst, src := newTestClient(t)

	height := ibc.NewHeight(1, 10)
	src.SetHeader(ibc.SignedHeader{Height: height, Raw: []byte("canonical")})

	update := ibc.UpdateClient{ClientID: clientID, ConsensusHeight: height, Header: []byte("forged")}
	require.Equal(t, EvidenceSubmitted, client.DetectMisbehaviour(&update))

	submitted := dst.Submitted()
	require.Len(t, submitted, 1)
	evidence, ok := submitted[0][0].(ibc.MsgSubmitMisbehaviour)
	require.True(t, ok, "expected MsgSubmitMisbehaviour, got %T", submitted[0][0])
	require.Equal(t, clientID, evidence.ClientID)
	require.Equal(t, []byte("forged"), evidence.Header1.Raw)
	require.Equal(t, []byte("canonical"), evidence.Header2.Raw)
}

func TestDetectMisbehaviourAuditValid(t *testing.T) {
	client, dst, src := newTestClient(t)

	height := ibc.NewHeight(1, 10)
	header := ibc.SignedHeader{Height: height, Raw: []byte("header-10")}
	src.SetHeader(header)
	dst.SetClient(clientID, ibc.ClientState{
		ChainID:        "ibc-1",
		TrustingPeriod: 14 * 24 * time.Hour,
		LatestHeight:   height,
	})
	dst.SetConsensusState(clientID, height, ibc.ConsensusState{HeaderHash: header.Hash()})

	require.Equal(t, ValidClient, client.DetectMisbehaviour(nil))
}

func TestDetectMisbehaviourAuditWithoutCommitments(t *testing.T) {
	client, dst, _ := newTestClient(t)

	height := ibc.NewHeight(1, 10)
	dst.SetClient(clientID, ibc.ClientState{
		ChainID:        "ibc-1",
		TrustingPeriod: 14 * 24 * time.Hour,
		LatestHeight:   height,
	})
	dst.SetConsensusState(clientID, height, ibc.ConsensusState{})

	// No header commitments on the host chain: detection cannot run.
	require.Equal(t, CannotExecute, client.DetectMisbehaviour(nil))
}
