package menu

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
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error)
	List(ctx context.Context, availableOnly bool) ([]Item, error)
	Update(ctx context.Context, item *Item) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const columns = `id, name, price, available, created_at, updated_at`

func scan(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Name, &item.Price, &item.Available, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (r *postgresRepository) Create(ctx context.Context, item *Item) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO menu_items (id, name, price, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.Name, item.Price, item.Available, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrMenuItemExists
		}
		return fmt.Errorf("repository: failed to insert menu item: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM menu_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMenuItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select menu item %s: %w", id, err)
	}
	return &item, nil
}

func (r *postgresRepository) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM menu_items WHERE id = ANY($1::text[]::uuid[])`, keys)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query menu items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID]Item, len(ids))
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan menu item: %w", err)
		}
		items[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating menu items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) List(ctx context.Context, availableOnly bool) ([]Item, error) {
	query := `SELECT ` + columns + ` FROM menu_items`
	if availableOnly {
		query += ` WHERE available`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query menu items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan menu item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating menu items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) Update(ctx context.Context, item *Item) error {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE menu_items
		SET name = $1, price = $2, available = $3, updated_at = $4
		WHERE id = $5`,
		item.Name, item.Price, item.Available, item.UpdatedAt, item.ID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrMenuItemExists
		}
		return fmt.Errorf("repository: failed to update menu item %s: %w", item.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrMenuItemNotFound
	}
	return nil
}
