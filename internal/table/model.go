package table

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusOccupied  Status = "occupied"
	StatusReserved  Status = "reserved"
)

var (
	ErrTableNotFound    = errors.New("table not found")
	ErrTableUnavailable = errors.New("table is not available")
	ErrTableExists      = errors.New("table with this number already exists")
	ErrInvalidTable     = errors.New("invalid table")
)

// Table is occupied exactly when CurrentOrderID is set.
type Table struct {
	ID              uuid.UUID  `json:"id"`
	Number          string     `json:"number"`
	Seats           int        `json:"seats"`
	Status          Status     `json:"status"`
	CurrentOrderID  *uuid.UUID `json:"current_order_id"`
	CurrentWaiterID *uuid.UUID `json:"current_waiter_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
