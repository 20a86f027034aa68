package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
)

type OrderLineRequest struct {
	MenuItemID string `json:"menu_item_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
	Notes      string `json:"notes" validate:"max=500"`
}

type CreateOrderRequest struct {
	OrderType string             `json:"order_type" validate:"required,oneof=restaurant marketplace"`
	TableID   *string            `json:"table_id,omitempty" validate:"omitempty,uuid"`
	Items     []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateItemsRequest struct {
	Items []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed preparing ready served completed cancelled"`
}

type CloseOrderRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=cash card online prepaid"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Route("/orders", func(r chi.Router) {
		r.Post("/", h.handleCreateOrder)
		r.Get("/", h.handleListOrders)
		r.Get("/{id}", h.handleGetOrder)
		r.Put("/{id}/items", h.handleUpdateItems)
		r.Post("/{id}/status", h.handleChangeStatus)
		r.Post("/{id}/close", h.handleCloseOrder)
		r.Post("/{id}/cancel", h.handleCancelOrder)
		r.Post("/{id}/write-off/retry", h.handleRetryWriteOff)
	})
}

func toLineInputs(lines []OrderLineRequest) []order.LineInput {
	out := make([]order.LineInput, len(lines))
	for i, l := range lines {
		out[i] = order.LineInput{
			MenuItemID: uuid.FromStringOrNil(l.MenuItemID),
			Quantity:   l.Quantity,
			Notes:      l.Notes,
		}
	}
	return out
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	input := order.CreateInput{
		Type:  order.Type(req.OrderType),
		Items: toLineInputs(req.Items),
	}
	if req.TableID != nil {
		tableID := uuid.FromStringOrNil(*req.TableID)
		input.TableID = &tableID
	}

	created, err := h.service.CreateOrder(r.Context(), actor, input)
	if err != nil {
		respondWithServiceError(w, err, "create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := order.Filter{
		Status: order.Status(q.Get("status")),
		Type:   order.Type(q.Get("type")),
	}

	if v := q.Get("table_id"); v != "" {
		tableID, err := uuid.FromString(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid table_id parameter")
			return
		}
		filter.TableID = &tableID
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		filter.Limit = limit
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, err, "list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleUpdateItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateItemsRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.service.UpdateItems(r.Context(), id, actor, toLineInputs(req.Items))
	if err != nil {
		respondWithServiceError(w, err, "update order items")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.service.ChangeStatus(r.Context(), id, actor, order.Status(req.Status))
	if err != nil {
		respondWithServiceError(w, err, "change order status")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleCloseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req CloseOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	result, err := h.service.CloseOrder(r.Context(), id, actor, order.PaymentMethod(req.PaymentMethod))
	if err != nil {
		respondWithServiceError(w, err, "close order")
		return
	}

	if len(result.Warnings) > 0 {
		log.Warn().Stringer("order_id", id).Strs("warnings", result.Warnings).Msg("Order closed with warnings")
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req CancelOrderRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	cancelled, err := h.service.CancelOrder(r.Context(), id, actor, req.Reason)
	if err != nil {
		respondWithServiceError(w, err, "cancel order")
		return
	}

	respondWithJSON(w, http.StatusOK, cancelled)
}

func (h *OrderHandler) handleRetryWriteOff(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	result, err := h.service.RetryWriteOff(r.Context(), id, actor)
	if err != nil {
		respondWithServiceError(w, err, "retry write-off")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
