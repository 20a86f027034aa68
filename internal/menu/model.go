package menu

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMenuItemNotFound    = errors.New("menu item not found")
	ErrMenuItemUnavailable = errors.New("menu item is not available")
	ErrMenuItemExists      = errors.New("menu item with this name already exists")
	ErrInvalidMenuItem     = errors.New("invalid menu item")
)

type Item struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ItemUpdate struct {
	Name      *string
	Price     *decimal.Decimal
	Available *bool
}
