package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-pos/internal/table"
)

// WriteOffFunc deducts stock through the given store, which is bound to the
// payment transaction.
type WriteOffFunc func(ctx context.Context, stock inventory.Store) error

type Repository interface {
	// Create inserts the order with its items and, for dine-in, occupies the table.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	// ReplaceItems swaps the item list and total if o.Version is still current.
	ReplaceItems(ctx context.Context, o *Order) error
	// UpdateStatus persists a non-payment transition and its table release.
	UpdateStatus(ctx context.Context, t *Transition) error
	// CommitPayment marks the order paid, releases its table and runs writeOff in
	// one transaction. A write-off failure aborts everything when blocking is set;
	// otherwise it is returned as woErr and recorded on the order.
	CommitPayment(ctx context.Context, t *Transition, writeOff WriteOffFunc, blocking bool) (woErr error, err error)
	// RetryWriteOff reruns the write-off of a paid order whose earlier attempt failed.
	RetryWriteOff(ctx context.Context, id uuid.UUID, writeOff WriteOffFunc) (*Order, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, order_type, status, payment_status, payment_method, total_amount,
	table_id, waiter_id, created_by, write_off_status, cancel_reason, version,
	created_at, updated_at, confirmed_at, preparing_at, ready_at, served_at,
	completed_at, cancelled_at, paid_at, written_off_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                                      Order
		orderType, status, payStatus, woStatus string
		payMethod                              *string
		createdBy                              *uuid.UUID
	)
	err := row.Scan(
		&o.ID,
		&orderType,
		&status,
		&payStatus,
		&payMethod,
		&o.TotalAmount,
		&o.TableID,
		&o.WaiterID,
		&createdBy,
		&woStatus,
		&o.CancelReason,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.ConfirmedAt,
		&o.PreparingAt,
		&o.ReadyAt,
		&o.ServedAt,
		&o.CompletedAt,
		&o.CancelledAt,
		&o.PaidAt,
		&o.WrittenOffAt,
	)
	if err != nil {
		return o, err
	}
	o.Type = Type(orderType)
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(payStatus)
	o.WriteOffStatus = WriteOffStatus(woStatus)
	if payMethod != nil {
		o.PaymentMethod = PaymentMethod(*payMethod)
	}
	if createdBy != nil {
		o.CreatedBy = *createdBy
	}
	return o, nil
}

func nullableMethod(m PaymentMethod) *string {
	if m == "" {
		return nil
	}
	s := string(m)
	return &s
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.UpdatedAt = o.CreatedAt
	o.Version = 1

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var createdBy *uuid.UUID
		if o.CreatedBy != uuid.Nil {
			createdBy = &o.CreatedBy
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO orders (id, order_type, status, payment_status, payment_method, total_amount,
				table_id, waiter_id, created_by, write_off_status, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			o.ID,
			string(o.Type),
			string(o.Status),
			string(o.PaymentStatus),
			nullableMethod(o.PaymentMethod),
			o.TotalAmount,
			o.TableID,
			o.WaiterID,
			createdBy,
			string(o.WriteOffStatus),
			o.Version,
			o.CreatedAt,
			o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order: %w", err)
		}

		if err := insertItems(ctx, tx, o.ID, o.Items); err != nil {
			return err
		}

		if o.TableID != nil {
			var waiter uuid.UUID
			if o.WaiterID != nil {
				waiter = *o.WaiterID
			}
			if err := table.NewStore(tx).Occupy(ctx, *o.TableID, o.ID, waiter); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().Stringer("order_id", o.ID).Int("items", len(o.Items)).Msg("repository: order inserted")
	return nil
}

func insertItems(ctx context.Context, q db.Querier, orderID uuid.UUID, items []Item) error {
	for i := range items {
		item := &items[i]
		if item.ID == uuid.Nil {
			id, err := uuid.NewV4()
			if err != nil {
				return fmt.Errorf("repository: failed to generate order item ID: %w", err)
			}
			item.ID = id
		}

		_, err := q.Exec(ctx, `
			INSERT INTO order_items (id, order_id, menu_item_id, name, unit_price, quantity, notes, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			item.ID, orderID, item.MenuItemID, item.Name, item.UnitPrice, item.Quantity, item.Notes, i,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", orderID, err)
		}
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", id, err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []Item{}
	}
	return &o, nil
}

func (r *postgresRepository) List(ctx context.Context, f Filter) ([]Order, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("order_type = $%d", len(args)))
	}
	if f.TableID != nil {
		args = append(args, *f.TableID)
		conds = append(conds, fmt.Sprintf("table_id = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []Item{}
		}
	}
	return orders, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]Item, error) {
	keys := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		keys[i] = id.String()
	}

	rows, err := r.db.Query(ctx, `
		SELECT order_id, id, menu_item_id, name, unit_price, quantity, notes
		FROM order_items
		WHERE order_id = ANY($1::text[]::uuid[])
		ORDER BY order_id, position`, keys)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]Item, len(orderIDs))
	for rows.Next() {
		var (
			orderID uuid.UUID
			item    Item
		)
		if err := rows.Scan(&orderID, &item.ID, &item.MenuItemID, &item.Name, &item.UnitPrice, &item.Quantity, &item.Notes); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) ReplaceItems(ctx context.Context, o *Order) error {
	now := time.Now().UTC()

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `
			UPDATE orders
			SET total_amount = $1, updated_at = $2, version = version + 1
			WHERE id = $3 AND version = $4 AND payment_status <> 'paid'
				AND status NOT IN ('completed', 'cancelled')`,
			o.TotalAmount, now, o.ID, o.Version,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return resolveConflict(ctx, tx, o.ID, "", false)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return fmt.Errorf("repository: failed to clear items of order %s: %w", o.ID, err)
		}
		return insertItems(ctx, tx, o.ID, o.Items)
	})
	if err != nil {
		return err
	}

	o.Version++
	o.UpdatedAt = now
	return nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, t *Transition) error {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := writeState(ctx, tx, t, false); err != nil {
			return err
		}
		return releaseTable(ctx, tx, t)
	})
	if err != nil {
		return err
	}

	t.Order.Version++
	return nil
}

func (r *postgresRepository) CommitPayment(ctx context.Context, t *Transition, writeOff WriteOffFunc, blocking bool) (woErr error, err error) {
	o := &t.Order

	err = db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := writeState(ctx, tx, t, true); err != nil {
			return err
		}
		if err := releaseTable(ctx, tx, t); err != nil {
			return err
		}
		if !t.Has(EffectWriteOff) {
			return nil
		}

		woErr = db.WithTx(ctx, tx, func(sp pgx.Tx) error {
			return writeOff(ctx, inventory.NewStore(sp))
		})

		status := WriteOffDone
		var writtenOffAt *time.Time
		if woErr != nil {
			if blocking {
				return woErr
			}
			status = WriteOffFailed
		} else {
			at := time.Now().UTC()
			writtenOffAt = &at
		}

		_, err := tx.Exec(ctx, `
			UPDATE orders SET write_off_status = $1, written_off_at = $2 WHERE id = $3`,
			string(status), writtenOffAt, o.ID,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to mark write-off of order %s: %w", o.ID, err)
		}
		o.WriteOffStatus = status
		o.WrittenOffAt = writtenOffAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.Version++
	return woErr, nil
}

func (r *postgresRepository) RetryWriteOff(ctx context.Context, id uuid.UUID, writeOff WriteOffFunc) (*Order, error) {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT write_off_status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("repository: failed to lock order %s: %w", id, err)
		}

		switch WriteOffStatus(status) {
		case WriteOffFailed:
		case WriteOffDone:
			return ErrAlreadyWrittenOff
		default:
			return fmt.Errorf("%w: write-off is %s", ErrInvalidTransition, status)
		}

		if err := writeOff(ctx, inventory.NewStore(tx)); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE orders SET write_off_status = $1, written_off_at = $2 WHERE id = $3`,
			string(WriteOffDone), time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to mark write-off of order %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// writeState persists t.Order if the row still holds t.From at the expected version.
func writeState(ctx context.Context, tx pgx.Tx, t *Transition, paying bool) error {
	o := t.Order
	cmdTag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, payment_method = $3, write_off_status = $4,
			cancel_reason = $5, updated_at = $6, confirmed_at = $7, preparing_at = $8,
			ready_at = $9, served_at = $10, completed_at = $11, cancelled_at = $12,
			paid_at = $13, version = version + 1
		WHERE id = $14 AND version = $15 AND status = $16 AND payment_status <> 'paid'`,
		string(o.Status),
		string(o.PaymentStatus),
		nullableMethod(o.PaymentMethod),
		string(o.WriteOffStatus),
		o.CancelReason,
		o.UpdatedAt,
		o.ConfirmedAt,
		o.PreparingAt,
		o.ReadyAt,
		o.ServedAt,
		o.CompletedAt,
		o.CancelledAt,
		o.PaidAt,
		o.ID,
		o.Version,
		string(t.From),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return resolveConflict(ctx, tx, o.ID, t.From, paying)
	}
	return nil
}

func releaseTable(ctx context.Context, tx pgx.Tx, t *Transition) error {
	for _, e := range t.Effects {
		if e.Kind != EffectReleaseTable {
			continue
		}
		if _, err := table.NewStore(tx).Release(ctx, e.TableID, t.Order.ID); err != nil {
			return err
		}
	}
	return nil
}

// resolveConflict explains why a guarded update matched no row. An empty from
// skips the status comparison.
func resolveConflict(ctx context.Context, q db.Querier, id uuid.UUID, from Status, paying bool) error {
	var status, payStatus string
	err := q.QueryRow(ctx, `SELECT status, payment_status FROM orders WHERE id = $1`, id).Scan(&status, &payStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("repository: failed to read order %s: %w", id, err)
	}

	switch {
	case PaymentStatus(payStatus) == PaymentPaid && paying:
		return ErrAlreadyPaid
	case PaymentStatus(payStatus) == PaymentPaid, Status(status).Terminal():
		return fmt.Errorf("%w: order is %s", ErrOrderImmutable, status)
	case from != "" && Status(status) != from:
		return fmt.Errorf("%w: order moved to %s", ErrInvalidTransition, status)
	default:
		return ErrConflict
	}
}
