// README: Order service implements lifecycle transitions and persistence.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"porter/internal/types"
)

// Flat service fee and tax rate applied at checkout. The total invariant is
// total = items subtotal + service fee + tax.
const (
	serviceFeeAmount = 49
	taxRatePercent   = 5
)

// StatusNotifier receives transition events for broadcast. Entering
// cancelled must tear the order's tracking channel down.
type StatusNotifier interface {
	NotifyStatus(orderID types.ID, from, to Status)
}

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("order not found")
	ErrConflict          = errors.New("order status conflict")
	ErrBadRequest        = errors.New("bad request")
)

type Service struct {
	store    *Store
	notifier StatusNotifier
}

func NewService(store *Store, notifier StatusNotifier) *Service {
	return &Service{store: store, notifier: notifier}
}

type ItemInput struct {
	Kind        ItemKind
	Name        string
	Price       int64
	Quantity    int
	MoverID     *types.ID
	ScheduledAt *time.Time
}

type CreateCommand struct {
	CustomerID    types.ID
	PaymentMethod PaymentMethod
	Items         []ItemInput
}

type TransitionCommand struct {
	OrderID   types.ID
	Target    Status
	ActorType string
	ActorID   *types.ID
	Reason    string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if cmd.CustomerID == "" || len(cmd.Items) == 0 {
		return "", ErrBadRequest
	}
	switch cmd.PaymentMethod {
	case PayWallet, PayOnline, PayCOD:
	default:
		return "", ErrBadRequest
	}

	items := make([]LineItem, 0, len(cmd.Items))
	var subtotal int64
	for _, in := range cmd.Items {
		if in.Quantity <= 0 || in.Price < 0 {
			return "", ErrBadRequest
		}
		if in.Kind != KindProduct && in.Kind != KindService {
			return "", ErrBadRequest
		}
		li := LineItem{
			ID:          NewID(),
			Kind:        in.Kind,
			Name:        in.Name,
			Price:       types.Money{Amount: in.Price, Currency: types.DefaultCurrency},
			Quantity:    in.Quantity,
			MoverID:     in.MoverID,
			ScheduledAt: in.ScheduledAt,
		}
		items = append(items, li)
		subtotal += li.Subtotal()
	}

	tax := subtotal * taxRatePercent / 100
	now := time.Now()
	o := &Order{
		ID:            NewID(),
		CustomerID:    cmd.CustomerID,
		Items:         items,
		PaymentMethod: cmd.PaymentMethod,
		Status:        StatusPlaced,
		StatusVersion: 0,
		ServiceFee:    types.Money{Amount: serviceFeeAmount, Currency: types.DefaultCurrency},
		Tax:           types.Money{Amount: tax, Currency: types.DefaultCurrency},
		Total:         types.Money{Amount: subtotal + serviceFeeAmount + tax, Currency: types.DefaultCurrency},
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return "", err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusPlaced,
		ActorType:  "customer",
		ActorID:    &cmd.CustomerID,
		CreatedAt:  now,
	})
	return o.ID, nil
}

// Transition applies a single status change. The compare-and-set on
// (status, status_version) serializes racing transitions: the loser observes
// ErrConflict rather than overwriting the winner.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (Event, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return Event{}, err
	}
	if !CanTransition(o.Status, cmd.Target) {
		return Event{}, ErrInvalidTransition
	}

	var reason *string
	if cmd.Reason != "" {
		reason = &cmd.Reason
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, cmd.Target, o.StatusVersion, reason)
	if err != nil {
		return Event{}, err
	}
	if !ok {
		return Event{}, ErrConflict
	}

	e := Event{
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   cmd.Target,
		ActorType:  cmd.ActorType,
		ActorID:    cmd.ActorID,
		CreatedAt:  time.Now(),
	}
	_ = s.store.AppendEvent(ctx, &e)

	if s.notifier != nil {
		s.notifier.NotifyStatus(o.ID, e.FromStatus, e.ToStatus)
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// ActivateTracking flips the order's live-tracking flag on. Applied when the
// first mover position is accepted; entering cancelled clears it again.
func (s *Service) ActivateTracking(ctx context.Context, id types.ID) error {
	return s.store.SetTrackingActive(ctx, id, true)
}

// Timeline returns the order's transition events oldest-first.
func (s *Service) Timeline(ctx context.Context, id types.ID) ([]Event, error) {
	return s.store.ListEvents(ctx, id)
}

func NewID() types.ID {
	return types.ID(uuid.NewString())
}
