package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// balanceAt returns the balance left by the last entry created before at.
// Entries must be oldest first.
func balanceAt(entries []Transaction, at time.Time) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		if !e.CreatedAt.Before(at) {
			break
		}
		balance = e.BalanceAfter
	}
	return balance
}

func testItem(qty string) Item {
	return Item{ID: uuid.Must(uuid.NewV4()), Name: "flour", Unit: "g", Quantity: dec(qty)}
}

func TestNewEntry_SignRules(t *testing.T) {
	tests := []struct {
		name      string
		typ       TransactionType
		balance   string
		delta     string
		wantErrIs error
		wantAfter string
	}{
		{name: "receive_positive", typ: TypeReceive, balance: "10", delta: "5", wantAfter: "15"},
		{name: "receive_zero", typ: TypeReceive, balance: "10", delta: "0", wantErrIs: ErrInvalidQuantity},
		{name: "receive_negative", typ: TypeReceive, balance: "10", delta: "-1", wantErrIs: ErrInvalidQuantity},
		{name: "writeoff_negative", typ: TypeWriteOff, balance: "1000", delta: "-100", wantAfter: "900"},
		{name: "writeoff_positive", typ: TypeWriteOff, balance: "1000", delta: "100", wantErrIs: ErrInvalidQuantity},
		{name: "writeoff_below_zero", typ: TypeWriteOff, balance: "30", delta: "-100", wantErrIs: ErrInsufficientStock},
		{name: "writeoff_to_exactly_zero", typ: TypeWriteOff, balance: "100", delta: "-100", wantAfter: "0"},
		{name: "adjustment_either_sign", typ: TypeAdjustment, balance: "10", delta: "-2.5", wantAfter: "7.5"},
		{name: "adjustment_zero", typ: TypeAdjustment, balance: "10", delta: "0", wantErrIs: ErrInvalidQuantity},
		{name: "audit_zero_allowed", typ: TypeAudit, balance: "10", delta: "0", wantAfter: "10"},
		{name: "receive_below_storage_scale", typ: TypeReceive, balance: "1", delta: "0.0004", wantErrIs: ErrInvalidQuantity},
		{name: "adjustment_below_storage_scale", typ: TypeAdjustment, balance: "1", delta: "-0.0005", wantErrIs: ErrInvalidQuantity},
		{name: "trailing_zeros_fit_scale", typ: TypeReceive, balance: "1", delta: "0.2500", wantAfter: "1.25"},
		{name: "unknown_type", typ: TransactionType("gift"), balance: "10", delta: "1", wantErrIs: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := testItem(tt.balance)
			entry, err := NewEntry(item, tt.typ, dec(tt.delta), Ref{PerformedBy: uuid.Must(uuid.NewV4())})

			if tt.wantErrIs != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErrIs), "got %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, item.ID, entry.ItemID)
			assert.True(t, entry.BalanceBefore.Equal(item.Quantity))
			assert.True(t, entry.BalanceAfter.Equal(dec(tt.wantAfter)), "after = %s", entry.BalanceAfter)
			assert.NoError(t, Verify(entry))
			assert.False(t, entry.CreatedAt.IsZero())
		})
	}
}

func TestAuditEntry(t *testing.T) {
	item := testItem("120")

	entry, err := AuditEntry(item, dec("95.5"), Ref{})
	require.NoError(t, err)
	assert.Equal(t, TypeAudit, entry.Type)
	assert.True(t, entry.Quantity.Equal(dec("-24.5")))
	assert.True(t, entry.BalanceAfter.Equal(dec("95.5")))

	_, err = AuditEntry(item, dec("-1"), Ref{})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = AuditEntry(item, dec("95.5001"), Ref{})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestVerify(t *testing.T) {
	good := Transaction{ID: uuid.Must(uuid.NewV4()), Quantity: dec("-100"), BalanceBefore: dec("1000"), BalanceAfter: dec("900")}
	assert.NoError(t, Verify(good))

	bad := good
	bad.BalanceAfter = dec("901")
	assert.ErrorIs(t, Verify(bad), ErrLedgerInconsistency)

	negative := Transaction{Quantity: dec("-10"), BalanceBefore: dec("5"), BalanceAfter: dec("-5")}
	assert.ErrorIs(t, Verify(negative), ErrLedgerInconsistency)
}

// history applies deltas in order, one minute apart, starting at start.
func history(t *testing.T, item *Item, start time.Time, deltas ...string) []Transaction {
	t.Helper()
	entries := make([]Transaction, 0, len(deltas))
	for i, d := range deltas {
		delta := dec(d)
		typ := TypeAdjustment
		switch {
		case i == 0:
			typ = TypeReceive
		case delta.IsNegative():
			typ = TypeWriteOff
		}
		entry, err := NewEntry(*item, typ, delta, Ref{At: start.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
		item.Quantity = entry.BalanceAfter
		entries = append(entries, entry)
	}
	return entries
}

func TestReconcile(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("consistent", func(t *testing.T) {
		item := testItem("0")
		entries := history(t, &item, start, "1000", "-100", "-50", "25")

		rec, err := Reconcile(item, entries)
		require.NoError(t, err)
		assert.True(t, rec.Consistent)
		assert.Equal(t, 4, rec.Entries)
		assert.True(t, rec.LedgerSum.Equal(dec("875")))
	})

	t.Run("quantity_drifted", func(t *testing.T) {
		item := testItem("0")
		entries := history(t, &item, start, "1000", "-100")
		item.Quantity = dec("850")

		rec, err := Reconcile(item, entries)
		assert.ErrorIs(t, err, ErrLedgerInconsistency)
		assert.False(t, rec.Consistent)
	})

	t.Run("gap_in_chain", func(t *testing.T) {
		item := testItem("0")
		entries := history(t, &item, start, "1000", "-100", "-100")
		entries = append(entries[:1], entries[2:]...)

		_, err := Reconcile(item, entries)
		assert.ErrorIs(t, err, ErrLedgerInconsistency)
	})

	t.Run("foreign_entry", func(t *testing.T) {
		item := testItem("0")
		entries := history(t, &item, start, "10")
		entries[0].ItemID = uuid.Must(uuid.NewV4())

		_, err := Reconcile(item, entries)
		assert.ErrorIs(t, err, ErrLedgerInconsistency)
	})
}

func TestWindowDelta_MatchesBalanceChange(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	item := testItem("0")
	entries := history(t, &item, start, "1000", "-100", "-50", "200", "-0.25", "-30")

	windows := []struct{ from, to time.Duration }{
		{0, 10 * time.Minute},
		{time.Minute, 3 * time.Minute},
		{90 * time.Second, 5 * time.Minute},
		{4 * time.Minute, 4 * time.Minute},
	}

	for _, w := range windows {
		from, to := start.Add(w.from), start.Add(w.to)
		want := balanceAt(entries, to).Sub(balanceAt(entries, from))
		got := WindowDelta(entries, from, to)
		assert.True(t, got.Equal(want), "window [%s, %s): got %s want %s", w.from, w.to, got, want)
	}
}
