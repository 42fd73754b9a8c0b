package relay

import "strings"

// CommandKind identifies a parsed inbound direct message.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdBlockHeight
	CmdFees
	CmdTransaction
	CmdHelp
)

// Command is the result of tokenizing an inbound direct message body.
type Command struct {
	Kind CommandKind
	Args []string
}

// HelpText is sent back verbatim for /help. Any other unusable message
// gets the invalid-command reply, which points the counterparty at /help.
const HelpText = `Available commands:
  /block_height <height>        notify once the chain reaches <height>
  /fees <sats_per_vbyte>        notify once the half-hour fee estimate drops to or below <sats_per_vbyte>
  /transaction <txid> <depth>   notify once <txid> reaches <depth> confirmations
  /help                         show this message`

// ParseCommand tokenizes body into a Command. An empty body or an
// unrecognized leading token parses to CmdUnknown rather than returning an
// error: every inbound message gets a reply, never a dropped connection.
// Arguments are not checked here; a known command keeps its kind even when
// its arguments are malformed.
func ParseCommand(body string) Command {
	fields := strings.Fields(strings.TrimSpace(body))
	if len(fields) == 0 {
		return Command{Kind: CmdUnknown}
	}

	switch fields[0] {
	case "/help":
		return Command{Kind: CmdHelp}
	case "/block_height":
		return Command{Kind: CmdBlockHeight, Args: fields[1:]}
	case "/fees":
		return Command{Kind: CmdFees, Args: fields[1:]}
	case "/transaction":
		return Command{Kind: CmdTransaction, Args: fields[1:]}
	default:
		return Command{Kind: CmdUnknown, Args: fields}
	}
}
