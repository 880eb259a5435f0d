// README: Order aggregate, line items, and status graph definitions.
package order

import (
	"time"

	"porter/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusPlaced     Status = "placed"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"

	// Product-style orders use a parallel vocabulary that maps onto the same
	// four-stage lifecycle for timeline rendering.
	StatusPending        Status = "pending"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
)

// Normalize maps the product vocabulary onto the canonical lifecycle.
func Normalize(s Status) Status {
	switch s {
	case StatusPending:
		return StatusPlaced
	case StatusOutForDelivery:
		return StatusInProgress
	case StatusDelivered:
		return StatusCompleted
	default:
		return s
	}
}

// AllowedTransitions represents the order state flow (diagram) as code.
// in_progress → cancelled exists only for the dispute grace path; the cancel
// endpoint gates on CanCancel and never reaches it.
var AllowedTransitions = map[Status][]Status{
	StatusPlaced:     {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[Normalize(from)]
	if !ok {
		return false
	}
	to = Normalize(to)
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// CanCancel reports whether the cancel endpoint may act on an order in this
// status. Once in progress, cancellation is a dispute handled elsewhere.
func CanCancel(s Status) bool {
	switch Normalize(s) {
	case StatusPlaced, StatusConfirmed:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PayWallet PaymentMethod = "wallet"
	PayOnline PaymentMethod = "online"
	PayCOD    PaymentMethod = "cod"
)

type ItemKind string

const (
	KindProduct ItemKind = "product"
	KindService ItemKind = "service"
)

type LineItem struct {
	ID       types.ID
	Kind     ItemKind
	Name     string
	Price    types.Money
	Quantity int
	// Service items may carry an assigned mover and a scheduled start.
	MoverID     *types.ID
	ScheduledAt *time.Time
}

func (li LineItem) Subtotal() int64 {
	return li.Price.Amount * int64(li.Quantity)
}

type Order struct {
	ID            types.ID
	CustomerID    types.ID
	Items         []LineItem
	PaymentMethod PaymentMethod
	Status        Status
	StatusVersion int
	ServiceFee    types.Money
	Tax           types.Money
	Total         types.Money
	TrackingOn    bool
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	CancelReason  *string
}

// ItemsSubtotal is the sum of line item subtotals, excluding fee and tax.
func (o *Order) ItemsSubtotal() int64 {
	var sum int64
	for _, li := range o.Items {
		sum += li.Subtotal()
	}
	return sum
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}
