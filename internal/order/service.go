package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/restaurant-pos/internal/activity"
	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-pos/internal/menu"
	"github.com/vasiliy-maslov/restaurant-pos/internal/metrics"
	"github.com/vasiliy-maslov/restaurant-pos/internal/notify"
	"github.com/vasiliy-maslov/restaurant-pos/internal/table"
	"github.com/vasiliy-maslov/restaurant-pos/internal/writeoff"
)

// MenuSource resolves menu items that may currently be ordered.
type MenuSource interface {
	Orderable(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]menu.Item, error)
}

type WriteOffRunner interface {
	Run(ctx context.Context, stock inventory.Store, req writeoff.Request) (*writeoff.Result, error)
}

type ActivityRecorder interface {
	Record(e activity.Entry)
}

type Options struct {
	// BlockPaymentOnFailure rejects the payment when the write-off fails.
	BlockPaymentOnFailure bool
}

type CloseResult struct {
	Order    *Order           `json:"order"`
	WriteOff *writeoff.Result `json:"write_off,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

type Service interface {
	CreateOrder(ctx context.Context, actor Actor, in CreateInput) (*Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, f Filter) ([]Order, error)
	UpdateItems(ctx context.Context, id uuid.UUID, actor Actor, items []LineInput) (*Order, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, actor Actor, target Status) (*Order, error)
	CloseOrder(ctx context.Context, id uuid.UUID, actor Actor, method PaymentMethod) (*CloseResult, error)
	CancelOrder(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Order, error)
	RetryWriteOff(ctx context.Context, id uuid.UUID, actor Actor) (*CloseResult, error)
}

type service struct {
	repo      Repository
	menu      MenuSource
	engine    WriteOffRunner
	publisher notify.Publisher
	activity  ActivityRecorder
	metrics   *metrics.Collector
	opts      Options
}

func NewService(
	repo Repository,
	menu MenuSource,
	engine WriteOffRunner,
	publisher notify.Publisher,
	recorder ActivityRecorder,
	collector *metrics.Collector,
	opts Options,
) Service {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &service{
		repo:      repo,
		menu:      menu,
		engine:    engine,
		publisher: publisher,
		activity:  recorder,
		metrics:   collector,
		opts:      opts,
	}
}

var orderingRoles = map[Role]bool{RoleWaiter: true, RoleCashier: true, RoleManager: true}

func (s *service) CreateOrder(ctx context.Context, actor Actor, in CreateInput) (*Order, error) {
	if !orderingRoles[actor.Role] {
		return nil, fmt.Errorf("%w: role %q cannot create orders", ErrForbidden, actor.Role)
	}

	switch in.Type {
	case TypeRestaurant:
		if in.TableID == nil || *in.TableID == uuid.Nil {
			return nil, fmt.Errorf("%w: restaurant orders require a table", ErrInvalidOrder)
		}
	case TypeMarketplace:
		if in.TableID != nil {
			return nil, fmt.Errorf("%w: marketplace orders cannot have a table", ErrInvalidOrder)
		}
	default:
		return nil, fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, in.Type)
	}

	items, err := s.buildItems(ctx, in.Items, nil)
	if err != nil {
		return nil, err
	}

	o := &Order{
		Type:           in.Type,
		Items:          items,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		TotalAmount:    Total(items),
		TableID:        in.TableID,
		CreatedBy:      actor.ID,
		WriteOffStatus: WriteOffPending,
	}
	if actor.Role == RoleWaiter {
		waiter := actor.ID
		o.WaiterID = &waiter
	}

	if err := s.repo.Create(ctx, o); err != nil {
		if isClientError(err) {
			log.Warn().Err(err).Str("order_type", string(in.Type)).Msg("service: order rejected")
			return nil, err
		}
		log.Error().Err(err).Str("order_type", string(in.Type)).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Str("order_type", string(o.Type)).Str("total", o.TotalAmount.String()).Msg("service: order created")
	s.dispatch(ctx, actor, notify.SubjectOrderStatus, notify.EventOrderCreated, "", "", o, nil)
	return o, nil
}

// buildItems snapshots name and price for each line. Menu items already placed
// on the order keep their snapshot; only new ones are read from the menu.
func (s *service) buildItems(ctx context.Context, lines []LineInput, placed []Item) ([]Item, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}

	snapshots := make(map[uuid.UUID]Item, len(placed))
	for _, it := range placed {
		if _, ok := snapshots[it.MenuItemID]; !ok {
			snapshots[it.MenuItemID] = it
		}
	}

	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]bool, len(lines))
	for _, l := range lines {
		if l.MenuItemID == uuid.Nil {
			return nil, fmt.Errorf("%w: menu item id is required", ErrInvalidOrder)
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for menu item %s must be at least 1, got %d", ErrInvalidOrder, l.MenuItemID, l.Quantity)
		}
		if _, ok := snapshots[l.MenuItemID]; !ok && !seen[l.MenuItemID] {
			seen[l.MenuItemID] = true
			ids = append(ids, l.MenuItemID)
		}
	}

	if len(ids) > 0 {
		catalog, err := s.menu.Orderable(ctx, ids)
		if err != nil {
			return nil, err
		}
		for id, m := range catalog {
			snapshots[id] = Item{Name: m.Name, UnitPrice: m.Price}
		}
	}

	items := make([]Item, len(lines))
	for i, l := range lines {
		snap := snapshots[l.MenuItemID]
		items[i] = Item{
			MenuItemID: l.MenuItemID,
			Name:       snap.Name,
			UnitPrice:  snap.UnitPrice,
			Quantity:   l.Quantity,
			Notes:      l.Notes,
		}
	}
	return items, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, f Filter) ([]Order, error) {
	switch f.Status {
	case "", StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusServed, StatusCompleted, StatusCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, f.Status)
	}
	switch f.Type {
	case "", TypeRestaurant, TypeMarketplace:
	default:
		return nil, fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, f.Type)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	orders, err := s.repo.List(ctx, f)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *service) UpdateItems(ctx context.Context, id uuid.UUID, actor Actor, lines []LineInput) (*Order, error) {
	if !orderingRoles[actor.Role] {
		return nil, fmt.Errorf("%w: role %q cannot edit orders", ErrForbidden, actor.Role)
	}

	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Immutable() {
		return nil, fmt.Errorf("%w: order is %s with payment %s", ErrOrderImmutable, o.Status, o.PaymentStatus)
	}

	items, err := s.buildItems(ctx, lines, o.Items)
	if err != nil {
		return nil, err
	}
	before := describe(o)
	o.Items = items
	o.TotalAmount = Total(items)

	if err := s.repo.ReplaceItems(ctx, o); err != nil {
		if isClientError(err) {
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to replace order items")
		return nil, fmt.Errorf("service: failed to update order items: %w", err)
	}

	log.Info().Stringer("order_id", id).Int("items", len(items)).Str("total", o.TotalAmount.String()).Msg("service: order items updated")
	s.dispatch(ctx, actor, notify.SubjectOrderStatus, notify.EventOrderItemsUpdated, "", before, o, nil)
	return o, nil
}

func (s *service) ChangeStatus(ctx context.Context, id uuid.UUID, actor Actor, target Status) (*Order, error) {
	switch target {
	case StatusCompleted:
		return nil, fmt.Errorf("%w: orders are completed by closing them with a payment", ErrInvalidTransition)
	case StatusCancelled:
		return s.CancelOrder(ctx, id, actor, "")
	}

	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	t, err := Apply(*o, TransitionRequest{Target: target, Actor: actor})
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", id).Str("role", string(actor.Role)).Msg("service: status change rejected")
		return nil, err
	}

	return s.persist(ctx, actor, o, &t)
}

func (s *service) CancelOrder(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	t, err := Apply(*o, TransitionRequest{Target: StatusCancelled, Actor: actor, Reason: reason})
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", id).Str("role", string(actor.Role)).Msg("service: cancellation rejected")
		return nil, err
	}

	return s.persist(ctx, actor, o, &t)
}

func (s *service) persist(ctx context.Context, actor Actor, before *Order, t *Transition) (*Order, error) {
	if err := s.repo.UpdateStatus(ctx, t); err != nil {
		if isClientError(err) {
			log.Warn().Err(err).Stringer("order_id", before.ID).Msg("service: status change lost a race")
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", before.ID).Msg("service: failed to update order status")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	o := t.Order
	s.metrics.OrderTransition(t.From.String(), o.Status.String())
	log.Info().Stringer("order_id", o.ID).Str("from", t.From.String()).Str("to", o.Status.String()).Msg("service: order status changed")
	s.dispatch(ctx, actor, notify.SubjectOrderStatus, notify.EventOrderStatusChanged, t.From, describe(before), &o, nil)
	return &o, nil
}

func (s *service) CloseOrder(ctx context.Context, id uuid.UUID, actor Actor, method PaymentMethod) (*CloseResult, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidOrder, method)
	}

	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentPaid {
		s.metrics.Payment(string(method), "already_paid")
		return nil, fmt.Errorf("%w: order is already paid", ErrOrderImmutable)
	}

	t, err := Apply(*o, TransitionRequest{Target: StatusCompleted, Actor: actor, PaymentMethod: method})
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", id).Str("role", string(actor.Role)).Msg("service: close rejected")
		return nil, err
	}

	req := writeoff.Request{
		OrderID:     o.ID,
		PerformedBy: actor.ID,
		Lines:       linesOf(o.Items),
		At:          *t.Order.PaidAt,
	}
	var (
		result    *writeoff.Result
		runFailed error
	)
	fn := func(ctx context.Context, stock inventory.Store) error {
		r, err := s.engine.Run(ctx, stock, req)
		if err != nil {
			runFailed = err
			return err
		}
		result = r
		return nil
	}

	start := time.Now()
	woErr, err := s.repo.CommitPayment(ctx, &t, fn, s.opts.BlockPaymentOnFailure)
	elapsed := time.Since(start)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyPaid):
			s.metrics.Payment(string(method), "already_paid")
			log.Warn().Stringer("order_id", id).Msg("service: order was paid concurrently")
			return nil, err
		case runFailed != nil && s.opts.BlockPaymentOnFailure:
			s.metrics.Payment(string(method), "blocked")
			s.metrics.WriteOff("failed", elapsed)
			log.Warn().Err(err).Stringer("order_id", id).Msg("service: payment blocked by failed write-off")
			return nil, fmt.Errorf("service: payment rejected: %w", err)
		case isClientError(err):
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to commit payment")
		return nil, fmt.Errorf("service: failed to close order: %w", err)
	}

	closed := t.Order
	res := &CloseResult{Order: &closed, WriteOff: result}
	s.metrics.Payment(string(method), "paid")
	s.metrics.OrderTransition(t.From.String(), closed.Status.String())
	log.Info().Stringer("order_id", id).Str("method", string(method)).Str("total", closed.TotalAmount.String()).Msg("service: order paid")

	switch {
	case !t.Has(EffectWriteOff):
	case woErr != nil:
		s.metrics.WriteOff("failed", elapsed)
		log.Error().Err(woErr).Stringer("order_id", id).Msg("service: write-off failed, order stays paid")
		res.Warnings = append(res.Warnings, "write-off failed: "+woErr.Error())
		s.dispatch(ctx, actor, notify.SubjectInventoryWriteOff, notify.EventWriteOffFailed, "", "", &closed, woErr.Error())
	default:
		s.recordWriteOff(ctx, actor, &closed, result, elapsed)
		if w := result.Warning(); w != nil {
			res.Warnings = append(res.Warnings, w.Error())
		}
	}

	s.dispatch(ctx, actor, notify.SubjectOrderPayment, notify.EventOrderPaid, t.From, describe(o), &closed, nil)
	return res, nil
}

var writeOffRoles = map[Role]bool{RoleManager: true, RoleCashier: true}

func (s *service) RetryWriteOff(ctx context.Context, id uuid.UUID, actor Actor) (*CloseResult, error) {
	if !writeOffRoles[actor.Role] {
		return nil, fmt.Errorf("%w: role %q cannot retry write-offs", ErrForbidden, actor.Role)
	}

	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.WriteOffStatus == WriteOffDone {
		return nil, ErrAlreadyWrittenOff
	}
	if o.PaymentStatus != PaymentPaid {
		return nil, fmt.Errorf("%w: order is not paid", ErrInvalidTransition)
	}

	req := writeoff.Request{
		OrderID:     o.ID,
		PerformedBy: actor.ID,
		Lines:       linesOf(o.Items),
	}
	var result *writeoff.Result
	fn := func(ctx context.Context, stock inventory.Store) error {
		r, err := s.engine.Run(ctx, stock, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	start := time.Now()
	updated, err := s.repo.RetryWriteOff(ctx, id, fn)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, ErrAlreadyWrittenOff) {
			return nil, err
		}
		s.metrics.WriteOff("failed", elapsed)
		if isClientError(err) || errors.Is(err, writeoff.ErrInsufficientStock) {
			log.Warn().Err(err).Stringer("order_id", id).Msg("service: write-off retry failed")
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: write-off retry failed")
		return nil, fmt.Errorf("service: failed to retry write-off: %w", err)
	}

	s.recordWriteOff(ctx, actor, updated, result, elapsed)
	res := &CloseResult{Order: updated, WriteOff: result}
	if w := result.Warning(); w != nil {
		res.Warnings = append(res.Warnings, w.Error())
	}
	log.Info().Stringer("order_id", id).Int("entries", len(result.Entries)).Msg("service: write-off retried")
	return res, nil
}

func (s *service) recordWriteOff(ctx context.Context, actor Actor, o *Order, result *writeoff.Result, elapsed time.Duration) {
	s.metrics.WriteOff("done", elapsed)
	s.metrics.InventoryMovement(string(inventory.TypeWriteOff), len(result.Entries))
	s.dispatch(ctx, actor, notify.SubjectInventoryWriteOff, notify.EventWriteOffDone, "", "", o, result)
}

// dispatch publishes the event and queues the activity entry. It runs after
// commit and only logs failures.
func (s *service) dispatch(ctx context.Context, actor Actor, subject, eventType string, from Status, before string, o *Order, payload any) {
	now := time.Now().UTC()

	err := s.publisher.Publish(ctx, notify.Event{
		Subject:        subject,
		Type:           eventType,
		OrderID:        o.ID,
		Status:         o.Status.String(),
		PreviousStatus: from.String(),
		ActorID:        actor.ID,
		Payload:        payload,
		OccurredAt:     now,
	})
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", o.ID).Str("event", eventType).Msg("service: failed to publish order event")
	}

	if s.activity != nil {
		s.activity.Record(activity.Entry{
			ActorID:    actor.ID,
			Action:     eventType,
			EntityType: "order",
			EntityID:   o.ID.String(),
			Before:     before,
			After:      describe(o),
			At:         now,
		})
	}
}

func describe(o *Order) string {
	return fmt.Sprintf("status=%s payment=%s writeoff=%s total=%s", o.Status, o.PaymentStatus, o.WriteOffStatus, o.TotalAmount)
}

// linesOf merges order items by menu item for the write-off engine.
func linesOf(items []Item) []writeoff.Line {
	idx := make(map[uuid.UUID]int, len(items))
	lines := make([]writeoff.Line, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.MenuItemID]; ok {
			lines[i].Quantity += it.Quantity
			continue
		}
		idx[it.MenuItemID] = len(lines)
		lines = append(lines, writeoff.Line{MenuItemID: it.MenuItemID, Name: it.Name, Quantity: it.Quantity})
	}
	return lines
}

func isClientError(err error) bool {
	for _, target := range []error{
		ErrOrderNotFound,
		ErrInvalidOrder,
		ErrInvalidTransition,
		ErrOrderImmutable,
		ErrAlreadyPaid,
		ErrAlreadyWrittenOff,
		ErrConflict,
		ErrForbidden,
		menu.ErrMenuItemNotFound,
		menu.ErrMenuItemUnavailable,
		table.ErrTableNotFound,
		table.ErrTableUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
