// README: Order store backed by PostgreSQL.
package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"porter/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, o *Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, payment_method, status, status_version,
			service_fee, tax, total_amount, currency, tracking_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(o.ID),
		string(o.CustomerID),
		string(o.PaymentMethod),
		string(o.Status),
		o.StatusVersion,
		o.ServiceFee.Amount,
		o.Tax.Amount,
		o.Total.Amount,
		o.Total.Currency,
		o.TrackingOn,
		o.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, li := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (
				id, order_id, kind, name, price, quantity, mover_id, scheduled_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			string(li.ID),
			string(o.ID),
			string(li.Kind),
			li.Name,
			li.Price.Amount,
			li.Quantity,
			toStringPtr(li.MoverID),
			li.ScheduledAt,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, customer_id, payment_method, status, status_version,
		       service_fee, tax, total_amount, currency, tracking_active,
		       created_at, confirmed_at, started_at, completed_at, cancelled_at, cancel_reason
		FROM orders
		WHERE id = $1`, string(id),
	)

	var o Order
	var confirmedAt, startedAt, completedAt, cancelledAt sql.NullTime
	var cancelReason sql.NullString
	var currency string

	err := row.Scan(
		&o.ID, &o.CustomerID, &o.PaymentMethod, &o.Status, &o.StatusVersion,
		&o.ServiceFee.Amount, &o.Tax.Amount, &o.Total.Amount, &currency, &o.TrackingOn,
		&o.CreatedAt, &confirmedAt, &startedAt, &completedAt, &cancelledAt, &cancelReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	o.ServiceFee.Currency = currency
	o.Tax.Currency = currency
	o.Total.Currency = currency
	o.ConfirmedAt = toTimePtr(confirmedAt)
	o.StartedAt = toTimePtr(startedAt)
	o.CompletedAt = toTimePtr(completedAt)
	o.CancelledAt = toTimePtr(cancelledAt)
	if cancelReason.Valid {
		o.CancelReason = &cancelReason.String
	}

	items, err := s.listItems(ctx, id, currency)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *Store) listItems(ctx context.Context, orderID types.ID, currency string) ([]LineItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, kind, name, price, quantity, mover_id, scheduled_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var li LineItem
		var moverID sql.NullString
		var scheduledAt sql.NullTime
		if err := rows.Scan(&li.ID, &li.Kind, &li.Name, &li.Price.Amount, &li.Quantity, &moverID, &scheduledAt); err != nil {
			return nil, err
		}
		li.Price.Currency = currency
		if moverID.Valid {
			m := types.ID(moverID.String)
			li.MoverID = &m
		}
		li.ScheduledAt = toTimePtr(scheduledAt)
		items = append(items, li)
	}
	return items, rows.Err()
}

// UpdateStatus performs a compare-and-set on (status, status_version) so
// that racing transitions cannot both succeed.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, reason *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    cancel_reason = COALESCE($2, cancel_reason),
		    confirmed_at = CASE WHEN $1 = 'confirmed' THEN NOW() ELSE confirmed_at END,
		    started_at = CASE WHEN $1 IN ('in_progress','out_for_delivery') THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 IN ('completed','delivered') THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END,
		    tracking_active = CASE WHEN $1 = 'cancelled' THEN FALSE ELSE tracking_active END
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to),
		reason,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetTrackingActive(ctx context.Context, id types.ID, active bool) error {
	_, err := s.db.Exec(ctx,
		`UPDATE orders SET tracking_active = $1 WHERE id = $2`, active, string(id))
	return err
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *Store) ListEvents(ctx context.Context, orderID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_type, actor_id, created_at
		FROM order_state_events
		WHERE order_id = $1
		ORDER BY id`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			a := types.ID(actorID.String)
			e.ActorID = &a
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
