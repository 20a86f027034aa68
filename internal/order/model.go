package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeRestaurant  Type = "restaurant"
	TypeMarketplace Type = "marketplace"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusServed    Status = "served"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentOnline  PaymentMethod = "online"
	PaymentPrepaid PaymentMethod = "prepaid"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentOnline, PaymentPrepaid:
		return true
	}
	return false
}

// WriteOffStatus marks whether the order's ingredients left inventory.
type WriteOffStatus string

const (
	WriteOffPending WriteOffStatus = "pending"
	WriteOffDone    WriteOffStatus = "done"
	WriteOffFailed  WriteOffStatus = "failed"
	WriteOffSkipped WriteOffStatus = "skipped"
)

type Role string

const (
	RoleManager Role = "manager"
	RoleWaiter  Role = "waiter"
	RoleKitchen Role = "kitchen"
	RoleCashier Role = "cashier"
)

func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleWaiter, RoleKitchen, RoleCashier:
		return true
	}
	return false
}

type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// Item is a line with the menu name and price captured when it was placed.
type Item struct {
	ID         uuid.UUID       `json:"id"`
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Notes      string          `json:"notes,omitempty"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID             uuid.UUID       `json:"id"`
	Type           Type            `json:"order_type"`
	Items          []Item          `json:"items"`
	Status         Status          `json:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	PaymentMethod  PaymentMethod   `json:"payment_method,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TableID        *uuid.UUID      `json:"table_id,omitempty"`
	WaiterID       *uuid.UUID      `json:"waiter_id,omitempty"`
	CreatedBy      uuid.UUID       `json:"created_by"`
	WriteOffStatus WriteOffStatus  `json:"write_off_status"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
	PreparingAt    *time.Time      `json:"preparing_at,omitempty"`
	ReadyAt        *time.Time      `json:"ready_at,omitempty"`
	ServedAt       *time.Time      `json:"served_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	WrittenOffAt   *time.Time      `json:"written_off_at,omitempty"`
}

// Immutable reports whether items, total and status are frozen.
func (o *Order) Immutable() bool {
	return o.PaymentStatus == PaymentPaid || o.Status.Terminal()
}

// Clone copies the order so a transition never aliases its input.
func (o Order) Clone() Order {
	c := o
	c.Items = append([]Item(nil), o.Items...)
	return c
}

func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

type LineInput struct {
	MenuItemID uuid.UUID
	Quantity   int
	Notes      string
}

type CreateInput struct {
	Type    Type
	TableID *uuid.UUID
	Items   []LineInput
}

type Filter struct {
	Status  Status
	Type    Type
	TableID *uuid.UUID
	Limit   int
}
