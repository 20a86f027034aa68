package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
)

// TxStore is everything the service may do inside one inventory transaction.
type TxStore interface {
	Store
	InsertItem(ctx context.Context, item *Item) error
	UpdateDetails(ctx context.Context, item *Item) error
	HasTransactions(ctx context.Context, itemID uuid.UUID) (bool, error)
}

type Repository interface {
	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, lowOnly bool) ([]Item, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	// History returns every ledger entry of an item, oldest first.
	History(ctx context.Context, itemID uuid.UUID) ([]Transaction, error)
	InTx(ctx context.Context, fn func(tx TxStore) error) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(NewStore(tx))
	})
}

func (r *postgresRepository) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE id = $1`

	item, err := scanItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select inventory item %s: %w", id, err)
	}
	return &item, nil
}

func (r *postgresRepository) ListItems(ctx context.Context, lowOnly bool) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items`
	if lowOnly {
		query += ` WHERE quantity <= min_quantity`
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query inventory items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan inventory item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating inventory items: %w", err)
	}

	return items, nil
}

const transactionColumns = `id, item_id, type, quantity, balance_before, balance_after, order_id, performed_by, note, created_at`

func (r *postgresRepository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ItemID != nil {
		args = append(args, *filter.ItemID)
		conds = append(conds, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + ` FROM inventory_transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.queryTransactions(ctx, query, args...)
}

func (r *postgresRepository) History(ctx context.Context, itemID uuid.UUID) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM inventory_transactions WHERE item_id = $1 ORDER BY seq`
	return r.queryTransactions(ctx, query, itemID)
}

func (r *postgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query inventory transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]Transaction, 0)
	for rows.Next() {
		var (
			tx          Transaction
			typ         string
			performedBy *uuid.UUID
		)
		err := rows.Scan(
			&tx.ID,
			&tx.ItemID,
			&typ,
			&tx.Quantity,
			&tx.BalanceBefore,
			&tx.BalanceAfter,
			&tx.OrderID,
			&performedBy,
			&tx.Note,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan inventory transaction: %w", err)
		}
		tx.Type = TransactionType(typ)
		if performedBy != nil {
			tx.PerformedBy = *performedBy
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating inventory transactions: %w", err)
	}

	return txs, nil
}
