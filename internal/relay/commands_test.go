package relay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockwatch-bot/blockwatch/internal/alert"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		body string
		want CommandKind
	}{
		{"/block_height 800000", CmdBlockHeight},
		{"/fees 12.5", CmdFees},
		{"/transaction abc123 6", CmdTransaction},
		{"/help", CmdHelp},
		{"/HELP", CmdUnknown},
		{"", CmdUnknown},
		{"hello there", CmdUnknown},
		{"/frobnicate", CmdUnknown},
	}

	for _, tc := range cases {
		got := ParseCommand(tc.body)
		require.Equalf(t, tc.want, got.Kind, "body %q", tc.body)
	}
}

func TestRenderReplyHelp(t *testing.T) {
	reply, req := renderReply("pk1", Command{Kind: CmdHelp})
	require.Equal(t, HelpText, reply)
	require.Nil(t, req)
}

func TestRenderReplyInvalidCommand(t *testing.T) {
	reply, req := renderReply("pk1", Command{Kind: CmdUnknown})
	require.Equal(t, invalidCommandReply, reply)
	require.Nil(t, req)
}

func TestRenderReplyBlockHeight(t *testing.T) {
	reply, req := renderReply("pk1", Command{Kind: CmdBlockHeight, Args: []string{"800000"}})
	require.NotNil(t, req)
	require.Equal(t, alert.BlockHeight, req.Kind)
	require.Equal(t, "pk1", req.Requestor)
	require.Equal(t, float64(800000), req.Threshold)
	require.Contains(t, reply, "800000")
}

func TestRenderReplyBlockHeightMalformed(t *testing.T) {
	reply, req := renderReply("pk1", Command{Kind: CmdBlockHeight, Args: []string{"not-a-number"}})
	require.Nil(t, req)
	require.Equal(t, invalidCommandReply, reply)
}

func TestRenderReplyTransaction(t *testing.T) {
	reply, req := renderReply("pk1", Command{Kind: CmdTransaction, Args: []string{"deadbeef", "6"}})
	require.NotNil(t, req)
	require.Equal(t, alert.ConfirmHeight, req.Kind)
	require.Equal(t, "deadbeef", req.WatchedIdentifier)
	require.Equal(t, float64(6), req.Threshold)
	require.Contains(t, reply, "deadbeef")
}

func TestRenderReplyTransactionWrongArgCount(t *testing.T) {
	reply, req := renderReply("pk1", Command{Kind: CmdTransaction, Args: []string{"deadbeef"}})
	require.Nil(t, req)
	require.Equal(t, invalidCommandReply, reply)
}

func TestRenderReplyFees(t *testing.T) {
	reply, req := renderReply("pk1", Command{Kind: CmdFees, Args: []string{"12.5"}})
	require.NotNil(t, req)
	require.Equal(t, alert.FeeLevel, req.Kind)
	require.Equal(t, 12.5, req.Threshold)
	require.Contains(t, reply, "12.5")
}
