package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
)

type CreateInventoryItemRequest struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Unit        string           `json:"unit" validate:"required,max=20"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	MinQuantity *decimal.Decimal `json:"min_quantity,omitempty"`
}

type UpdateInventoryItemRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Unit        *string          `json:"unit,omitempty" validate:"omitempty,min=1,max=20"`
	MinQuantity *decimal.Decimal `json:"min_quantity,omitempty"`
}

// MovementRequest carries the amount of a receive, adjustment or audit count.
type MovementRequest struct {
	Quantity *decimal.Decimal `json:"quantity" validate:"required"`
	Note     string           `json:"note" validate:"max=500"`
}

type InventoryHandler struct {
	service  inventory.Service
	validate *validator.Validate
}

func NewInventoryHandler(service inventory.Service) *InventoryHandler {
	return &InventoryHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *InventoryHandler) RegisterRoutes(router chi.Router) {
	router.Route("/inventory", func(r chi.Router) {
		r.Post("/items", h.handleCreateItem)
		r.Get("/items", h.handleListItems)
		r.Get("/items/{id}", h.handleGetItem)
		r.Patch("/items/{id}", h.handleUpdateItem)
		r.Post("/items/{id}/receive", h.movement("receive stock", h.service.Receive))
		r.Post("/items/{id}/adjust", h.movement("adjust stock", h.service.Adjust))
		r.Post("/items/{id}/audit", h.movement("record audit", h.service.Audit))
		r.Get("/items/{id}/reconcile", h.handleReconcile)
		r.Get("/transactions", h.handleListTransactions)
	})
}

func (h *InventoryHandler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateInventoryItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	input := inventory.NewItem{Name: req.Name, Unit: req.Unit}
	if req.Quantity != nil {
		input.Quantity = *req.Quantity
	}
	if req.MinQuantity != nil {
		input.MinQuantity = *req.MinQuantity
	}

	created, err := h.service.CreateItem(r.Context(), input, actor.ID)
	if err != nil {
		respondWithServiceError(w, err, "create inventory item")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *InventoryHandler) handleListItems(w http.ResponseWriter, r *http.Request) {
	var (
		items []inventory.Item
		err   error
	)
	if low, _ := strconv.ParseBool(r.URL.Query().Get("low")); low {
		items, err = h.service.LowStock(r.Context())
	} else {
		items, err = h.service.ListItems(r.Context())
	}
	if err != nil {
		respondWithServiceError(w, err, "list inventory items")
		return
	}

	respondWithJSON(w, http.StatusOK, items)
}

func (h *InventoryHandler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "get inventory item")
		return
	}

	respondWithJSON(w, http.StatusOK, item)
}

func (h *InventoryHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateInventoryItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.service.UpdateItem(r.Context(), id, inventory.ItemUpdate{
		Name:        req.Name,
		Unit:        req.Unit,
		MinQuantity: req.MinQuantity,
	})
	if err != nil {
		respondWithServiceError(w, err, "update inventory item")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

type movementFunc func(ctx context.Context, id uuid.UUID, quantity decimal.Decimal, ref inventory.Ref) (*inventory.Transaction, error)

// movement builds a handler for the ledger operations that share a request shape.
func (h *InventoryHandler) movement(action string, apply movementFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		var req MovementRequest
		if !decodeAndValidate(w, r, h.validate, &req) {
			return
		}

		entry, err := apply(r.Context(), id, *req.Quantity, inventory.Ref{PerformedBy: actor.ID, Note: req.Note})
		if err != nil {
			respondWithServiceError(w, err, action)
			return
		}

		respondWithJSON(w, http.StatusCreated, entry)
	}
}

func (h *InventoryHandler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	rec, err := h.service.Reconcile(r.Context(), id)
	if err != nil && rec == nil {
		respondWithServiceError(w, err, "reconcile inventory item")
		return
	}

	if err != nil {
		log.Error().Err(err).Stringer("item_id", id).Msg("Ledger inconsistency detected")
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.TransactionFilter{Type: inventory.TransactionType(q.Get("type"))}

	if v := q.Get("item_id"); v != "" {
		itemID, err := uuid.FromString(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid item_id parameter")
			return
		}
		filter.ItemID = &itemID
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid "+p.name+" parameter, expected RFC3339")
			return
		}
		*p.dst = t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		filter.Limit = limit
	}

	txs, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, err, "list inventory transactions")
		return
	}

	respondWithJSON(w, http.StatusOK, txs)
}
