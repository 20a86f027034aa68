package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
)

// Store is the stock port used inside a caller's transaction.
type Store interface {
	// LockItems row-locks the given items in ascending id order and returns them by id.
	// Missing ids are absent from the map.
	LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error)
	// ApplyEntries persists balances and ledger rows. Entries for one item must
	// be chained in order.
	ApplyEntries(ctx context.Context, entries []Transaction) error
}

// PostgresStore runs against whatever Querier it is given, normally a pgx.Tx.
type PostgresStore struct {
	q db.Querier
}

func NewStore(q db.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

const itemColumns = `id, name, unit, quantity, min_quantity, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Unit,
		&item.Quantity,
		&item.MinQuantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]Item{}, nil
	}

	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	query := `SELECT ` + itemColumns + `
		FROM inventory_items
		WHERE id = $1
		FOR UPDATE`

	items := make(map[uuid.UUID]Item, len(sorted))
	for _, id := range sorted {
		if _, seen := items[id]; seen {
			continue
		}
		item, err := scanItem(s.q.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("repository: failed to lock inventory item %s: %w", id, err)
		}
		items[item.ID] = item
	}

	return items, nil
}

// ApplyEntries is all-or-nothing: inside a transaction it runs under a savepoint.
func (s *PostgresStore) ApplyEntries(ctx context.Context, entries []Transaction) error {
	if b, ok := s.q.(db.Beginner); ok {
		return db.WithTx(ctx, b, func(tx pgx.Tx) error {
			return applyEntries(ctx, tx, entries)
		})
	}
	return applyEntries(ctx, s.q, entries)
}

func applyEntries(ctx context.Context, q db.Querier, entries []Transaction) error {
	for _, e := range entries {
		if err := Verify(e); err != nil {
			return err
		}

		cmdTag, err := q.Exec(ctx, `
			UPDATE inventory_items
			SET quantity = $1, updated_at = $2
			WHERE id = $3 AND quantity = $4`,
			e.BalanceAfter, e.CreatedAt, e.ItemID, e.BalanceBefore,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to update balance of item %s: %w", e.ItemID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: item %s no longer at %s", ErrStaleBalance, e.ItemID, e.BalanceBefore)
		}

		_, err = q.Exec(ctx, `
			INSERT INTO inventory_transactions
				(id, item_id, type, quantity, balance_before, balance_after, order_id, performed_by, note, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.ItemID, string(e.Type), e.Quantity, e.BalanceBefore, e.BalanceAfter,
			e.OrderID, nullableUUID(e.PerformedBy), e.Note, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to append ledger entry for item %s: %w", e.ItemID, err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertItem(ctx context.Context, item *Item) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO inventory_items (id, name, unit, quantity, min_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.Name, item.Unit, item.Quantity, item.MinQuantity, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrItemExists
		}
		return fmt.Errorf("repository: failed to insert inventory item: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDetails(ctx context.Context, item *Item) error {
	cmdTag, err := s.q.Exec(ctx, `
		UPDATE inventory_items
		SET name = $1, unit = $2, min_quantity = $3, updated_at = $4
		WHERE id = $5`,
		item.Name, item.Unit, item.MinQuantity, item.UpdatedAt, item.ID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrItemExists
		}
		return fmt.Errorf("repository: failed to update inventory item %s: %w", item.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *PostgresStore) HasTransactions(ctx context.Context, itemID uuid.UUID) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inventory_transactions WHERE item_id = $1)`, itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check ledger of item %s: %w", itemID, err)
	}
	return exists, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func now() time.Time {
	return time.Now().UTC()
}
