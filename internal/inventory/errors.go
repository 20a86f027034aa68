package inventory

import "errors"

var (
	ErrItemNotFound        = errors.New("inventory item not found")
	ErrItemExists          = errors.New("inventory item with this name already exists")
	ErrInvalidQuantity     = errors.New("invalid quantity for ledger entry")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
	ErrStaleBalance        = errors.New("inventory balance changed concurrently")
	ErrUnitLocked          = errors.New("unit cannot change once ledger entries exist")
)

var ErrInvalidItem = errors.New("invalid inventory item")
