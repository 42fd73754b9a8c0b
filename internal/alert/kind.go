package alert

import "github.com/go-errors/errors"

// Kind identifies which of the three chain conditions a Subscription is
// watching for. The numeric values match alert_type_id in the alerts
// table exactly, per the spec's schema.
type Kind int

const (
	// ConfirmHeight fires once a watched transaction has accumulated the
	// requested number of confirmations.
	ConfirmHeight Kind = 1001

	// FeeLevel fires once the recommended half-hour fee rate drops to or
	// below the requested threshold.
	FeeLevel Kind = 1002

	// BlockHeight fires once the chain tip reaches the requested height.
	BlockHeight Kind = 1003
)

// String implements fmt.Stringer for logging.
func (k Kind) String() string {
	switch k {
	case ConfirmHeight:
		return "confirm_height"
	case FeeLevel:
		return "fee_level"
	case BlockHeight:
		return "block_height"
	default:
		return "unknown"
	}
}

// KindFromID validates a raw alert_type_id read back from storage. Per the
// spec's §9 design note, an unrecognized id is never silently coerced or
// panicked on — it is a programming invariant violation (schema drift) and
// is reported as an error so the caller can treat it as fatal.
func KindFromID(id int) (Kind, error) {
	switch Kind(id) {
	case ConfirmHeight, FeeLevel, BlockHeight:
		return Kind(id), nil
	default:
		return 0, errors.Errorf("unrecognized alert_type_id %d: schema drift", id)
	}
}
