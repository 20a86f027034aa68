package order

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrOrderImmutable    = errors.New("order is paid or closed and cannot change")
	ErrAlreadyPaid       = errors.New("order is already paid")
	ErrAlreadyWrittenOff = errors.New("order is already written off")
	ErrConflict          = errors.New("order was modified concurrently")
	ErrForbidden         = errors.New("action is not allowed for this role")
)
