package ledger

import (
	"fmt"
	"strings"

	"github.com/desietsy/desietsy-backend-go/models"
)

// Policy decides which fulfillment status changes AdvanceStatus accepts.
type Policy int

const (
	// PolicyMonotonic only moves orders forward along models.FulfillmentSequence.
	// Steps may be skipped; terminal orders are frozen and Cancelled is only
	// reachable through Cancel.
	PolicyMonotonic Policy = iota
	// PolicyPermissive overwrites the status unconditionally, leaving sequence
	// enforcement to the caller's UI.
	PolicyPermissive
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monotonic", "strict":
		return PolicyMonotonic, nil
	case "permissive":
		return PolicyPermissive, nil
	default:
		return PolicyMonotonic, fmt.Errorf("unknown order status policy %q", s)
	}
}

func (p Policy) String() string {
	if p == PolicyPermissive {
		return "permissive"
	}
	return "monotonic"
}

// checkTransition validates from→to under the monotonic policy. A nil error
// with same=true means the order is already in the target status.
func checkTransition(from, to models.FulfillmentStatus) (same bool, err error) {
	if to == models.StatusCancelled {
		return false, fmt.Errorf("%w: use cancel to cancel an order", models.ErrInvalidState)
	}
	if from == to {
		return true, nil
	}
	if from.Terminal() {
		return false, fmt.Errorf("%w: order is already %s", models.ErrInvalidState, from)
	}
	if to.Rank() < from.Rank() {
		return false, fmt.Errorf("%w: cannot move order from %s back to %s", models.ErrInvalidState, from, to)
	}
	return false, nil
}
