package alert

import (
	"time"

	"github.com/blockwatch-bot/blockwatch/internal/mempool"
)

// State is the snapshot captured on a Subscription the moment it first
// observes the chain condition it is waiting on. It exists so a
// ConfirmHeight subscription can compute confirmation depth across
// subsequent blocks without re-scanning history.
type State struct {
	// Fees is the recommended-fee tuple observed at the triggering
	// block, or nil.
	Fees *mempool.RecommendedFees `json:"fees,omitempty"`

	// BlockTip is the (height, hash) observed at the triggering block,
	// or the zero value if none has been observed yet.
	BlockTip mempool.Tip `json:"block_tip"`

	// TransactionFound is set true, for ConfirmHeight subscriptions,
	// once the watched transaction first appears in a block.
	TransactionFound bool `json:"transaction_found,omitempty"`
}

// Subscription is a user's standing request to be alerted when a chain
// condition is met. Field meanings and invariants are exactly as specified:
// kind=ConfirmHeight requires WatchedIdentifier; active=false implies State
// is populated; mutation of State/Active must be atomic with respect to any
// concurrent evaluation (enforced by the Engine's serial evaluation pass
// plus the Store's single batched update statement).
type Subscription struct {
	ID        int64
	Kind      Kind
	Requestor string
	Threshold float64

	// WatchedIdentifier is the transaction id a ConfirmHeight
	// subscription is watching for; empty for the other kinds.
	WatchedIdentifier string

	Active    bool
	State     State
	CreatedAt time.Time
}

// Request is the validated form of an inbound registration request, the Go
// name for the spec's "SubscriptionRequest" message sent from the Relay
// Gateway to the Alert Engine.
type Request struct {
	Kind              Kind
	Requestor         string
	Threshold         float64
	WatchedIdentifier string
}

// Validate enforces the invariants spec.md requires of a registration
// request before it is ever persisted.
func (r Request) Validate() error {
	switch r.Kind {
	case ConfirmHeight:
		if r.WatchedIdentifier == "" {
			return ErrValidation("a transaction subscription requires a watched transaction id")
		}
		if r.Threshold <= 0 {
			return ErrValidation("confirmation threshold must be positive")
		}
	case FeeLevel:
		if r.Threshold <= 0 {
			return ErrValidation("fee threshold must be positive")
		}
	case BlockHeight:
		if r.Threshold <= 0 {
			return ErrValidation("block height threshold must be positive")
		}
	default:
		return ErrValidation("unrecognized subscription kind")
	}

	if r.Requestor == "" {
		return ErrValidation("requestor identity is required")
	}

	return nil
}

// Notification is an outbound message the Engine emits once a subscription
// triggers. It is appended to the durable notifications log in the same
// transaction as the subscription's row update, before any relay send is
// attempted.
type Notification struct {
	ID             int64
	SubscriptionID int64
	Recipient      string
	Body           string
	CreatedAt      time.Time
}
