// README: Pure cancellation policy: penalty, refund, and debt computation.
package cancellation

import (
	"time"

	"porter/internal/modules/order"
	"porter/internal/types"
)

// Late cancellations forfeit this share of each late item's subtotal.
const penaltyRatePercent = 50

const onlineSettlementNote = "refund will be credited to your wallet within 5-7 business days"

type Outcome struct {
	OrderID        types.ID `json:"order_id"`
	IsLate         bool     `json:"is_late_cancellation"`
	Penalty        int64    `json:"penalty_amount"`
	Refund         int64    `json:"refund_amount"`
	DebtCreated    bool     `json:"debt_created"`
	Debt           int64    `json:"debt_amount"`
	Currency       string   `json:"currency"`
	SettlementNote string   `json:"settlement_note,omitempty"`
}

// Evaluate computes the financial outcome of cancelling an order at the
// given instant. Pure: identical snapshot and instant reproduce identical
// figures, so the computation can be re-run for audit.
//
// A service item scheduled within lateWindow of now is late and forfeits
// half its subtotal. Items with no schedule, or whose schedule has already
// passed, carry no timing penalty (fail open for data-quality gaps). For
// prepaid methods the refund is the remainder after penalties; for cash on
// delivery nothing was collected, so a late penalty becomes a debt instead.
func Evaluate(o *order.Order, now time.Time, lateWindow time.Duration) Outcome {
	var penalty int64
	var refundable int64
	late := false

	for _, li := range o.Items {
		sub := li.Subtotal()
		refundable += sub

		if li.Kind != order.KindService || li.ScheduledAt == nil {
			continue
		}
		until := li.ScheduledAt.Sub(now)
		if until <= 0 {
			continue
		}
		if until <= lateWindow {
			late = true
			penalty += sub * penaltyRatePercent / 100
		}
	}

	out := Outcome{
		OrderID:  o.ID,
		IsLate:   late,
		Penalty:  penalty,
		Currency: types.DefaultCurrency,
	}

	switch o.PaymentMethod {
	case order.PayCOD:
		// Nothing was pre-collected: no refund, and a late penalty becomes
		// a debt owed by the customer.
		if late {
			out.DebtCreated = true
			out.Debt = penalty
		}
	case order.PayOnline:
		out.Refund = refundable - penalty
		out.SettlementNote = onlineSettlementNote
	default:
		out.Refund = refundable - penalty
	}
	return out
}
