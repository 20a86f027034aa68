package inventory

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeReceive    TransactionType = "receive"
	TypeWriteOff   TransactionType = "write-off"
	TypeAdjustment TransactionType = "adjustment"
	TypeAudit      TransactionType = "audit"
)

func (t TransactionType) String() string {
	return string(t)
}

func (t TransactionType) Valid() bool {
	switch t {
	case TypeReceive, TypeWriteOff, TypeAdjustment, TypeAudit:
		return true
	}
	return false
}

type Item struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	MinQuantity decimal.Decimal `json:"min_quantity"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsLow reports whether the item is at or below its reorder threshold.
func (i Item) IsLow() bool {
	return i.Quantity.LessThanOrEqual(i.MinQuantity)
}

// Transaction is one immutable ledger row.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	ItemID        uuid.UUID       `json:"item_id"`
	Type          TransactionType `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	OrderID       *uuid.UUID      `json:"order_id,omitempty"`
	PerformedBy   uuid.UUID       `json:"performed_by"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type NewItem struct {
	Name        string
	Unit        string
	Quantity    decimal.Decimal
	MinQuantity decimal.Decimal
}

// ItemUpdate carries metadata edits. Quantity only moves through the ledger.
type ItemUpdate struct {
	Name        *string
	Unit        *string
	MinQuantity *decimal.Decimal
}

type TransactionFilter struct {
	ItemID *uuid.UUID
	Type   TransactionType
	From   time.Time
	To     time.Time
	Limit  int
}

type Reconciliation struct {
	ItemID     uuid.UUID       `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Entries    int             `json:"entries"`
	Consistent bool            `json:"consistent"`
}
