package alert

import "fmt"

// renderBody produces the human-readable notification body for a
// subscription that has just fired. Kept separate from evaluate.go since
// it's presentation, not evaluation logic.
func renderBody(sub Subscription) string {
	switch sub.Kind {
	case BlockHeight:
		return fmt.Sprintf(
			"Block height %d reached (target was %d).",
			sub.State.BlockTip.Height, int64(sub.Threshold))
	case FeeLevel:
		rate := 0.0
		if sub.State.Fees != nil {
			rate = sub.State.Fees.HalfHour
		}
		return fmt.Sprintf(
			"Recommended fee dropped to %.1f sat/vB (threshold was %.1f).",
			rate, sub.Threshold)
	case ConfirmHeight:
		return fmt.Sprintf(
			"Transaction %s has reached %d confirmations.",
			sub.WatchedIdentifier, int64(sub.Threshold))
	default:
		return "Your subscription has triggered."
	}
}
