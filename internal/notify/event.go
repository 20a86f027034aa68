package notify

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

const (
	SubjectOrderStatus       = "orders.status"
	SubjectOrderPayment      = "orders.payment"
	SubjectInventoryWriteOff = "inventory.writeoff"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderItemsUpdated  = "order.items_updated"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderPaid          = "order.paid"
	EventWriteOffDone       = "writeoff.done"
	EventWriteOffFailed     = "writeoff.failed"
)

type Event struct {
	Subject        string    `json:"subject"`
	Type           string    `json:"event_type"`
	OrderID        uuid.UUID `json:"order_id"`
	Status         string    `json:"status,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	ActorID        uuid.UUID `json:"actor_id"`
	Payload        any       `json:"payload,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher delivers events at most once. Callers publish after commit and
// only log failures.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
