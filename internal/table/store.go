package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
)

// Store couples tables to orders inside the caller's transaction.
type Store interface {
	Occupy(ctx context.Context, tableID, orderID, waiterID uuid.UUID) error
	// Release frees the table if orderID still holds it and reports whether it did.
	Release(ctx context.Context, tableID, orderID uuid.UUID) (bool, error)
}

type PostgresStore struct {
	q db.Querier
}

func NewStore(q db.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

func (s *PostgresStore) Occupy(ctx context.Context, tableID, orderID, waiterID uuid.UUID) error {
	var waiter *uuid.UUID
	if waiterID != uuid.Nil {
		waiter = &waiterID
	}

	cmdTag, err := s.q.Exec(ctx, `
		UPDATE restaurant_tables
		SET status = $1, current_order_id = $2, current_waiter_id = $3, updated_at = $4
		WHERE id = $5 AND status = $6`,
		string(StatusOccupied), orderID, waiter, time.Now().UTC(), tableID, string(StatusAvailable),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to occupy table %s: %w", tableID, err)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = s.q.QueryRow(ctx, `SELECT status FROM restaurant_tables WHERE id = $1`, tableID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTableNotFound
		}
		return fmt.Errorf("repository: failed to read table %s: %w", tableID, err)
	}
	return fmt.Errorf("%w: table is %s", ErrTableUnavailable, status)
}

func (s *PostgresStore) Release(ctx context.Context, tableID, orderID uuid.UUID) (bool, error) {
	cmdTag, err := s.q.Exec(ctx, `
		UPDATE restaurant_tables
		SET status = $1, current_order_id = NULL, current_waiter_id = NULL, updated_at = $2
		WHERE id = $3 AND current_order_id = $4`,
		string(StatusAvailable), time.Now().UTC(), tableID, orderID,
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to release table %s: %w", tableID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("table_id", tableID).Stringer("order_id", orderID).Msg("repository: table was not held by order")
		return false, nil
	}
	return true, nil
}
