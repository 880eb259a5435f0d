// README: Cancellation outcome audit trail backed by PostgreSQL.
package cancellation

import (
	"context"
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

func (s *Store) RecordOutcome(ctx context.Context, out Outcome) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO cancellation_outcomes (
			order_id, is_late, penalty, refund, debt_created, debt, currency, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id) DO NOTHING`,
		string(out.OrderID),
		out.IsLate,
		out.Penalty,
		out.Refund,
		out.DebtCreated,
		out.Debt,
		out.Currency,
		time.Now(),
	)
	return err
}

func (s *Store) GetOutcome(ctx context.Context, orderID types.ID) (Outcome, bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT order_id, is_late, penalty, refund, debt_created, debt, currency
		FROM cancellation_outcomes
		WHERE order_id = $1`, string(orderID),
	)
	var out Outcome
	err := row.Scan(&out.OrderID, &out.IsLate, &out.Penalty, &out.Refund, &out.DebtCreated, &out.Debt, &out.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Outcome{}, false, nil
	}
	if err != nil {
		return Outcome{}, false, err
	}
	return out, true, nil
}
