package alert

import "github.com/blockwatch-bot/blockwatch/internal/mempool"

// outcome is the pure result of evaluating one subscription against one
// block. Exactly one of the three spec-mandated post-conditions holds:
// changed is false (state unchanged), changed is true with notify false
// (state advanced), or changed is true with notify true (subscription
// fired, active is now false).
type outcome struct {
	sub     Subscription
	changed bool
	notify  bool
}

// evaluate is a pure function of (sub, event): it never touches storage,
// never touches other subscriptions, and never mutates sub in place. This
// is what makes the independence invariant (the same sub evaluates
// identically regardless of what else is in the pass) trivially true.
func evaluate(sub Subscription, event mempool.BlockEvent) outcome {
	if !sub.Active {
		return outcome{sub: sub}
	}

	switch sub.Kind {
	case BlockHeight:
		return evaluateBlockHeight(sub, event)
	case FeeLevel:
		return evaluateFeeLevel(sub, event)
	case ConfirmHeight:
		return evaluateConfirmHeight(sub, event)
	default:
		// Unreachable for rows that passed KindFromID on load; treated as
		// a no-op rather than a panic to keep evaluate total.
		return outcome{sub: sub}
	}
}

// evaluateBlockHeight triggers once the tip reaches the requested height.
func evaluateBlockHeight(sub Subscription, event mempool.BlockEvent) outcome {
	if float64(event.Tip.Height) < sub.Threshold {
		return outcome{sub: sub}
	}

	sub.State = State{BlockTip: event.Tip}
	sub.Active = false
	return outcome{sub: sub, changed: true, notify: true}
}

// evaluateFeeLevel triggers once the half-hour fee rate has dropped to or
// below the requested threshold. A nil fee tuple on this block means the
// explorer didn't report fees for it; the subscription simply waits for a
// block that does.
func evaluateFeeLevel(sub Subscription, event mempool.BlockEvent) outcome {
	if event.Fees == nil {
		return outcome{sub: sub}
	}
	if event.Fees.HalfHour > sub.Threshold {
		return outcome{sub: sub}
	}

	sub.State = State{Fees: event.Fees, BlockTip: event.Tip}
	sub.Active = false
	return outcome{sub: sub, changed: true, notify: true}
}

// evaluateConfirmHeight implements the two-phase semantics spec.md adopts
// in its §9 design note: phase A watches for the transaction's first
// appearance on chain, phase B watches confirmation depth once it has
// appeared.
func evaluateConfirmHeight(sub Subscription, event mempool.BlockEvent) outcome {
	if !sub.State.TransactionFound {
		if !event.ContainsTxID(sub.WatchedIdentifier) {
			return outcome{sub: sub}
		}

		sub.State = State{BlockTip: event.Tip, TransactionFound: true}
		return outcome{sub: sub, changed: true, notify: false}
	}

	delta := int64(event.Tip.Height) - int64(sub.State.BlockTip.Height)
	if delta < int64(sub.Threshold) {
		return outcome{sub: sub}
	}

	sub.Active = false
	return outcome{sub: sub, changed: true, notify: true}
}
