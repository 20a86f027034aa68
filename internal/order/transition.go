package order

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusPreparing: true,
		StatusCancelled: true,
	},
	StatusPreparing: {
		StatusReady:     true,
		StatusCancelled: true,
	},
	StatusReady: {
		StatusServed:    true,
		StatusCancelled: true,
	},
	StatusServed: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// allowedRoles gates each target status by the acting role.
var allowedRoles = map[Status]map[Role]bool{
	StatusConfirmed: {RoleWaiter: true, RoleManager: true},
	StatusPreparing: {RoleKitchen: true, RoleManager: true},
	StatusReady:     {RoleKitchen: true, RoleManager: true},
	StatusServed:    {RoleWaiter: true, RoleManager: true},
	StatusCompleted: {RoleCashier: true, RoleWaiter: true, RoleManager: true},
	StatusCancelled: {RoleWaiter: true, RoleCashier: true, RoleManager: true},
}

type EffectKind string

const (
	EffectReleaseTable EffectKind = "release-table"
	EffectWriteOff     EffectKind = "write-off"
)

type Effect struct {
	Kind    EffectKind
	TableID uuid.UUID
}

type TransitionRequest struct {
	Target        Status
	Actor         Actor
	PaymentMethod PaymentMethod
	Reason        string
	At            time.Time
}

// Transition is the outcome of Apply: the new order value and the work the
// repository must do in the same transaction.
type Transition struct {
	From    Status
	Order   Order
	Effects []Effect
}

func (t Transition) Has(kind EffectKind) bool {
	for _, e := range t.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Apply moves o to req.Target. It has no side effects.
func Apply(o Order, req TransitionRequest) (Transition, error) {
	if o.Immutable() {
		return Transition{}, fmt.Errorf("%w: order is %s with payment %s", ErrOrderImmutable, o.Status, o.PaymentStatus)
	}
	if req.Target == o.Status {
		return Transition{}, fmt.Errorf("%w: order is already %s", ErrInvalidTransition, o.Status)
	}
	if !allowedTransitions[o.Status][req.Target] {
		return Transition{}, fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidTransition, o.Status, req.Target)
	}
	if !allowedRoles[req.Target][req.Actor.Role] {
		return Transition{}, fmt.Errorf("%w: role %q cannot move order from %s to %s", ErrInvalidTransition, req.Actor.Role, o.Status, req.Target)
	}

	at := req.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	next := o.Clone()
	next.Status = req.Target
	next.UpdatedAt = at

	var effects []Effect
	switch req.Target {
	case StatusConfirmed:
		next.ConfirmedAt = &at
	case StatusPreparing:
		next.PreparingAt = &at
	case StatusReady:
		next.ReadyAt = &at
	case StatusServed:
		next.ServedAt = &at
	case StatusCompleted:
		if !req.PaymentMethod.Valid() {
			return Transition{}, fmt.Errorf("%w: completing an order requires a payment method, got %q", ErrInvalidTransition, req.PaymentMethod)
		}
		next.PaymentStatus = PaymentPaid
		next.PaymentMethod = req.PaymentMethod
		next.PaidAt = &at
		next.CompletedAt = &at
		effects = append(effects, Effect{Kind: EffectWriteOff})
	case StatusCancelled:
		next.CancelledAt = &at
		next.CancelReason = req.Reason
		next.WriteOffStatus = WriteOffSkipped
	}

	if req.Target.Terminal() && o.TableID != nil {
		effects = append(effects, Effect{Kind: EffectReleaseTable, TableID: *o.TableID})
	}

	return Transition{From: o.Status, Order: next, Effects: effects}, nil
}
