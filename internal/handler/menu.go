package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/restaurant-pos/internal/menu"
)

type CreateMenuItemRequest struct {
	Name  string           `json:"name" validate:"required,max=200"`
	Price *decimal.Decimal `json:"price" validate:"required"`
}

type UpdateMenuItemRequest struct {
	Name      *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Available *bool            `json:"available,omitempty"`
}

type MenuHandler struct {
	service  menu.Service
	validate *validator.Validate
}

func NewMenuHandler(service menu.Service) *MenuHandler {
	return &MenuHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *MenuHandler) RegisterRoutes(router chi.Router) {
	router.Post("/menu-items", h.handleCreateMenuItem)
	router.Get("/menu-items", h.handleListMenuItems)
	router.Get("/menu-items/{id}", h.handleGetMenuItem)
	router.Patch("/menu-items/{id}", h.handleUpdateMenuItem)
}

func (h *MenuHandler) handleCreateMenuItem(w http.ResponseWriter, r *http.Request) {
	var req CreateMenuItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	created, err := h.service.CreateMenuItem(r.Context(), req.Name, *req.Price)
	if err != nil {
		respondWithServiceError(w, err, "create menu item")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *MenuHandler) handleListMenuItems(w http.ResponseWriter, r *http.Request) {
	availableOnly, _ := strconv.ParseBool(r.URL.Query().Get("available"))

	items, err := h.service.ListMenuItems(r.Context(), availableOnly)
	if err != nil {
		respondWithServiceError(w, err, "list menu items")
		return
	}

	respondWithJSON(w, http.StatusOK, items)
}

func (h *MenuHandler) handleGetMenuItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	item, err := h.service.GetMenuItem(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "get menu item")
		return
	}

	respondWithJSON(w, http.StatusOK, item)
}

func (h *MenuHandler) handleUpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateMenuItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.service.UpdateMenuItem(r.Context(), id, menu.ItemUpdate{
		Name:      req.Name,
		Price:     req.Price,
		Available: req.Available,
	})
	if err != nil {
		respondWithServiceError(w, err, "update menu item")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}
