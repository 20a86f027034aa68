package inventory

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// QuantityScale is the number of decimal places stored for quantities.
const QuantityScale = 3

// FitsScale reports whether q survives storage without rounding.
func FitsScale(q decimal.Decimal) bool {
	return q.Equal(q.Truncate(QuantityScale))
}

// Ref ties a ledger entry to whoever and whatever caused it.
type Ref struct {
	OrderID     *uuid.UUID
	PerformedBy uuid.UUID
	Note        string
	At          time.Time
}

// NewEntry builds the ledger row that moves item by delta. It does not touch
// the item; callers apply the entry through a Store.
func NewEntry(item Item, typ TransactionType, delta decimal.Decimal, ref Ref) (Transaction, error) {
	if !FitsScale(delta) {
		return Transaction{}, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidQuantity, delta, QuantityScale)
	}

	switch typ {
	case TypeReceive:
		if !delta.IsPositive() {
			return Transaction{}, fmt.Errorf("%w: receive must be positive, got %s", ErrInvalidQuantity, delta)
		}
	case TypeWriteOff:
		if !delta.IsNegative() {
			return Transaction{}, fmt.Errorf("%w: write-off must be negative, got %s", ErrInvalidQuantity, delta)
		}
	case TypeAdjustment:
		if delta.IsZero() {
			return Transaction{}, fmt.Errorf("%w: adjustment cannot be zero", ErrInvalidQuantity)
		}
	case TypeAudit:
	default:
		return Transaction{}, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidQuantity, typ)
	}

	after := item.Quantity.Add(delta)
	if after.IsNegative() {
		return Transaction{}, fmt.Errorf("%w: %s has %s %s, change of %s would leave %s",
			ErrInsufficientStock, item.Name, item.Quantity, item.Unit, delta, after)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to generate transaction id: %w", err)
	}

	at := ref.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return Transaction{
		ID:            id,
		ItemID:        item.ID,
		Type:          typ,
		Quantity:      delta,
		BalanceBefore: item.Quantity,
		BalanceAfter:  after,
		OrderID:       ref.OrderID,
		PerformedBy:   ref.PerformedBy,
		Note:          ref.Note,
		CreatedAt:     at,
	}, nil
}

// AuditEntry records a physical count: the delta is counted minus the book quantity.
func AuditEntry(item Item, counted decimal.Decimal, ref Ref) (Transaction, error) {
	if counted.IsNegative() {
		return Transaction{}, fmt.Errorf("%w: counted quantity cannot be negative, got %s", ErrInvalidQuantity, counted)
	}
	return NewEntry(item, TypeAudit, counted.Sub(item.Quantity), ref)
}

func Verify(tx Transaction) error {
	if !tx.BalanceBefore.Add(tx.Quantity).Equal(tx.BalanceAfter) {
		return fmt.Errorf("%w: entry %s: %s + %s != %s",
			ErrLedgerInconsistency, tx.ID, tx.BalanceBefore, tx.Quantity, tx.BalanceAfter)
	}
	if tx.BalanceAfter.IsNegative() {
		return fmt.Errorf("%w: entry %s leaves negative balance %s", ErrLedgerInconsistency, tx.ID, tx.BalanceAfter)
	}
	return nil
}

// Reconcile replays an item's full history, oldest first, and checks that
// every entry brackets its change, the chain has no gaps, and the running sum
// equals the item's current quantity.
func Reconcile(item Item, entries []Transaction) (Reconciliation, error) {
	rec := Reconciliation{ItemID: item.ID, Quantity: item.Quantity, Entries: len(entries)}

	sum := decimal.Zero
	for _, e := range entries {
		if e.ItemID != item.ID {
			return rec, fmt.Errorf("%w: entry %s belongs to item %s", ErrLedgerInconsistency, e.ID, e.ItemID)
		}
		if err := Verify(e); err != nil {
			return rec, err
		}
		if !e.BalanceBefore.Equal(sum) {
			return rec, fmt.Errorf("%w: entry %s starts at %s but ledger is at %s",
				ErrLedgerInconsistency, e.ID, e.BalanceBefore, sum)
		}
		sum = sum.Add(e.Quantity)
	}

	rec.LedgerSum = sum
	if !sum.Equal(item.Quantity) {
		return rec, fmt.Errorf("%w: item %s holds %s but ledger sums to %s",
			ErrLedgerInconsistency, item.ID, item.Quantity, sum)
	}

	rec.Consistent = true
	return rec, nil
}

// WindowDelta sums the entries created in [from, to).
func WindowDelta(entries []Transaction, from, to time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			sum = sum.Add(e.Quantity)
		}
	}
	return sum
}
