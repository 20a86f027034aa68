package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/restaurant-pos/internal/metrics"
)

type Service interface {
	CreateItem(ctx context.Context, input NewItem, performedBy uuid.UUID) (*Item, error)
	GetItem(ctx context.Context, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	LowStock(ctx context.Context) ([]Item, error)
	UpdateItem(ctx context.Context, id uuid.UUID, upd ItemUpdate) (*Item, error)
	Receive(ctx context.Context, id uuid.UUID, quantity decimal.Decimal, ref Ref) (*Transaction, error)
	Adjust(ctx context.Context, id uuid.UUID, delta decimal.Decimal, ref Ref) (*Transaction, error)
	Audit(ctx context.Context, id uuid.UUID, counted decimal.Decimal, ref Ref) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	Reconcile(ctx context.Context, id uuid.UUID) (*Reconciliation, error)
}

type service struct {
	repo    Repository
	metrics *metrics.Collector
}

func NewService(repo Repository, m *metrics.Collector) Service {
	return &service{repo: repo, metrics: m}
}

func (s *service) CreateItem(ctx context.Context, input NewItem, performedBy uuid.UUID) (*Item, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Unit = strings.TrimSpace(input.Unit)
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if input.Unit == "" {
		return nil, fmt.Errorf("%w: unit is required", ErrInvalidItem)
	}
	if input.Quantity.IsNegative() || input.MinQuantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantities cannot be negative", ErrInvalidItem)
	}
	if !FitsScale(input.Quantity) || !FitsScale(input.MinQuantity) {
		return nil, fmt.Errorf("%w: quantities allow at most %d decimal places", ErrInvalidItem, QuantityScale)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate item id: %w", err)
	}

	at := now()
	item := &Item{
		ID:          id,
		Name:        input.Name,
		Unit:        input.Unit,
		Quantity:    decimal.Zero,
		MinQuantity: input.MinQuantity,
		CreatedAt:   at,
		UpdatedAt:   at,
	}

	// Opening stock goes through the ledger like any other receipt.
	var opening *Transaction
	err = s.repo.InTx(ctx, func(tx TxStore) error {
		if err := tx.InsertItem(ctx, item); err != nil {
			return err
		}
		if !input.Quantity.IsPositive() {
			return nil
		}
		entry, err := NewEntry(*item, TypeReceive, input.Quantity, Ref{PerformedBy: performedBy, Note: "opening stock", At: at})
		if err != nil {
			return err
		}
		opening = &entry
		return tx.ApplyEntries(ctx, []Transaction{entry})
	})
	if err != nil {
		if errors.Is(err, ErrItemExists) {
			log.Warn().Str("name", item.Name).Msg("service: inventory item name already taken")
			return nil, err
		}
		log.Error().Err(err).Str("name", item.Name).Msg("service: failed to create inventory item")
		return nil, fmt.Errorf("service: failed to create inventory item: %w", err)
	}

	if opening != nil {
		item.Quantity = opening.BalanceAfter
		s.metrics.InventoryMovement(string(TypeReceive), 1)
	}

	log.Info().Stringer("item_id", item.ID).Str("name", item.Name).Msg("service: inventory item created")
	return item, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		log.Error().Err(err).Stringer("item_id", id).Msg("service: failed to fetch inventory item")
		return nil, fmt.Errorf("service: failed to fetch inventory item: %w", err)
	}
	return item, nil
}

func (s *service) ListItems(ctx context.Context) ([]Item, error) {
	items, err := s.repo.ListItems(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list inventory items: %w", err)
	}
	return items, nil
}

func (s *service) LowStock(ctx context.Context) ([]Item, error) {
	items, err := s.repo.ListItems(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list low stock items: %w", err)
	}
	return items, nil
}

func (s *service) UpdateItem(ctx context.Context, id uuid.UUID, upd ItemUpdate) (*Item, error) {
	var updated Item
	err := s.repo.InTx(ctx, func(tx TxStore) error {
		items, err := tx.LockItems(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		item, ok := items[id]
		if !ok {
			return ErrItemNotFound
		}

		if upd.Name != nil {
			name := strings.TrimSpace(*upd.Name)
			if name == "" {
				return fmt.Errorf("%w: name cannot be empty", ErrInvalidItem)
			}
			item.Name = name
		}
		if upd.MinQuantity != nil {
			if upd.MinQuantity.IsNegative() {
				return fmt.Errorf("%w: min quantity cannot be negative", ErrInvalidItem)
			}
			if !FitsScale(*upd.MinQuantity) {
				return fmt.Errorf("%w: min quantity allows at most %d decimal places", ErrInvalidItem, QuantityScale)
			}
			item.MinQuantity = *upd.MinQuantity
		}
		if upd.Unit != nil && strings.TrimSpace(*upd.Unit) != item.Unit {
			unit := strings.TrimSpace(*upd.Unit)
			if unit == "" {
				return fmt.Errorf("%w: unit cannot be empty", ErrInvalidItem)
			}
			used, err := tx.HasTransactions(ctx, id)
			if err != nil {
				return err
			}
			if used {
				return ErrUnitLocked
			}
			item.Unit = unit
		}

		item.UpdatedAt = now()
		updated = item
		return tx.UpdateDetails(ctx, &item)
	})
	if err != nil {
		if isClientError(err) {
			log.Warn().Err(err).Stringer("item_id", id).Msg("service: inventory item update rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("item_id", id).Msg("service: failed to update inventory item")
		return nil, fmt.Errorf("service: failed to update inventory item: %w", err)
	}

	return &updated, nil
}

func (s *service) Receive(ctx context.Context, id uuid.UUID, quantity decimal.Decimal, ref Ref) (*Transaction, error) {
	return s.move(ctx, id, TypeReceive, func(item Item) (Transaction, error) {
		return NewEntry(item, TypeReceive, quantity, ref)
	})
}

func (s *service) Adjust(ctx context.Context, id uuid.UUID, delta decimal.Decimal, ref Ref) (*Transaction, error) {
	return s.move(ctx, id, TypeAdjustment, func(item Item) (Transaction, error) {
		return NewEntry(item, TypeAdjustment, delta, ref)
	})
}

func (s *service) Audit(ctx context.Context, id uuid.UUID, counted decimal.Decimal, ref Ref) (*Transaction, error) {
	return s.move(ctx, id, TypeAudit, func(item Item) (Transaction, error) {
		return AuditEntry(item, counted, ref)
	})
}

// move locks one item, builds its ledger entry and applies it in one transaction.
func (s *service) move(ctx context.Context, id uuid.UUID, typ TransactionType, build func(Item) (Transaction, error)) (*Transaction, error) {
	var entry Transaction
	err := s.repo.InTx(ctx, func(tx TxStore) error {
		items, err := tx.LockItems(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		item, ok := items[id]
		if !ok {
			return ErrItemNotFound
		}
		entry, err = build(item)
		if err != nil {
			return err
		}
		return tx.ApplyEntries(ctx, []Transaction{entry})
	})
	if err != nil {
		if isClientError(err) {
			log.Warn().Err(err).Stringer("item_id", id).Str("type", typ.String()).Msg("service: inventory movement rejected")
			return nil, err
		}
		if errors.Is(err, ErrLedgerInconsistency) {
			log.Error().Err(err).Stringer("item_id", id).Msg("service: ledger integrity fault, manual reconciliation required")
			return nil, err
		}
		log.Error().Err(err).Stringer("item_id", id).Str("type", typ.String()).Msg("service: failed to record inventory movement")
		return nil, fmt.Errorf("service: failed to record %s: %w", typ, err)
	}

	s.metrics.InventoryMovement(string(typ), 1)
	log.Info().
		Stringer("item_id", id).
		Str("type", typ.String()).
		Str("quantity", entry.Quantity.String()).
		Str("balance_after", entry.BalanceAfter.String()).
		Msg("service: inventory movement recorded")

	return &entry, nil
}

func (s *service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidQuantity, filter.Type)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}

	txs, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list inventory transactions")
		return nil, fmt.Errorf("service: failed to list inventory transactions: %w", err)
	}
	return txs, nil
}

func (s *service) Reconcile(ctx context.Context, id uuid.UUID) (*Reconciliation, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load ledger of item %s: %w", id, err)
	}

	rec, err := Reconcile(*item, entries)
	if err != nil {
		log.Error().Err(err).Stringer("item_id", id).Msg("service: ledger integrity fault, manual reconciliation required")
		return &rec, err
	}
	return &rec, nil
}

func isClientError(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrItemExists) ||
		errors.Is(err, ErrInvalidItem) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrUnitLocked)
}
