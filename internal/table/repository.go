package table

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, t *Table) error
	GetByID(ctx context.Context, id uuid.UUID) (*Table, error)
	List(ctx context.Context, status Status) ([]Table, error)
	// SetStatus moves a table that no order holds between available and reserved.
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const columns = `id, number, seats, status, current_order_id, current_waiter_id, created_at, updated_at`

func scan(row pgx.Row) (Table, error) {
	var (
		t      Table
		status string
	)
	err := row.Scan(&t.ID, &t.Number, &t.Seats, &status, &t.CurrentOrderID, &t.CurrentWaiterID, &t.CreatedAt, &t.UpdatedAt)
	t.Status = Status(status)
	return t, err
}

func (r *postgresRepository) Create(ctx context.Context, t *Table) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO restaurant_tables (id, number, seats, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Number, t.Seats, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrTableExists
		}
		return fmt.Errorf("repository: failed to insert table: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Table, error) {
	t, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM restaurant_tables WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("repository: failed to select table %s: %w", id, err)
	}
	return &t, nil
}

func (r *postgresRepository) List(ctx context.Context, status Status) ([]Table, error) {
	query := `SELECT ` + columns + ` FROM restaurant_tables`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY number`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query tables: %w", err)
	}
	defer rows.Close()

	tables := make([]Table, 0)
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating tables: %w", err)
	}
	return tables, nil
}

func (r *postgresRepository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE restaurant_tables
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND current_order_id IS NULL`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update table %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: table is occupied", ErrTableUnavailable)
	}
	return nil
}
