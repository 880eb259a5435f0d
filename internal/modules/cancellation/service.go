// README: Cancellation service gates on the state machine and records outcomes.
package cancellation

import (
	"context"
	"errors"
	"log"
	"time"

	"porter/internal/modules/order"
	"porter/internal/types"
)

var ErrCancellationNotAllowed = errors.New("cancellation not allowed")

type Service struct {
	orders     *order.Service
	store      *Store
	lateWindow time.Duration
}

func NewService(orders *order.Service, store *Store, lateWindowHours float64) *Service {
	return &Service{
		orders:     orders,
		store:      store,
		lateWindow: time.Duration(lateWindowHours * float64(time.Hour)),
	}
}

type CancelCommand struct {
	OrderID types.ID
	ActorID *types.ID
	Reason  string
}

// Cancel evaluates the policy, then applies the cancelled transition via the
// state machine's compare-and-set. The evaluation itself has no side
// effects, so if the transition is rejected nothing is applied. A second
// cancel attempt — concurrent or sequential — loses the CAS or fails
// CanCancel and observes ErrCancellationNotAllowed; refunds are never
// computed twice.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (Outcome, error) {
	o, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return Outcome{}, err
	}
	if !order.CanCancel(o.Status) {
		return Outcome{}, ErrCancellationNotAllowed
	}

	out := Evaluate(o, time.Now(), s.lateWindow)

	_, err = s.orders.Transition(ctx, order.TransitionCommand{
		OrderID:   cmd.OrderID,
		Target:    order.StatusCancelled,
		ActorType: "customer",
		ActorID:   cmd.ActorID,
		Reason:    cmd.Reason,
	})
	if errors.Is(err, order.ErrInvalidTransition) || errors.Is(err, order.ErrConflict) {
		return Outcome{}, ErrCancellationNotAllowed
	}
	if err != nil {
		return Outcome{}, err
	}

	if s.store != nil {
		// The cancellation already took effect; a lost audit row must not
		// fail the request, but the money trail going missing is loggable.
		if err := s.store.RecordOutcome(ctx, out); err != nil {
			log.Printf("cancellation: record outcome for %s: %v", cmd.OrderID, err)
		}
	}
	return out, nil
}
