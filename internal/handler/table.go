package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vasiliy-maslov/restaurant-pos/internal/table"
)

type CreateTableRequest struct {
	Number string `json:"number" validate:"required,max=20"`
	Seats  int    `json:"seats" validate:"required,min=1,max=100"`
}

type TableHandler struct {
	service  table.Service
	validate *validator.Validate
}

func NewTableHandler(service table.Service) *TableHandler {
	return &TableHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *TableHandler) RegisterRoutes(router chi.Router) {
	router.Post("/tables", h.handleCreateTable)
	router.Get("/tables", h.handleListTables)
	router.Get("/tables/{id}", h.handleGetTable)
	router.Post("/tables/{id}/reservation", h.handleReserve)
	router.Delete("/tables/{id}/reservation", h.handleUnreserve)
}

func (h *TableHandler) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	created, err := h.service.CreateTable(r.Context(), req.Number, req.Seats)
	if err != nil {
		respondWithServiceError(w, err, "create table")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *TableHandler) handleListTables(w http.ResponseWriter, r *http.Request) {
	status := table.Status(r.URL.Query().Get("status"))

	tables, err := h.service.ListTables(r.Context(), status)
	if err != nil {
		respondWithServiceError(w, err, "list tables")
		return
	}

	respondWithJSON(w, http.StatusOK, tables)
}

func (h *TableHandler) handleGetTable(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetTable(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "get table")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *TableHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Reserve(r.Context(), id); err != nil {
		respondWithServiceError(w, err, "reserve table")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TableHandler) handleUnreserve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Unreserve(r.Context(), id); err != nil {
		respondWithServiceError(w, err, "release reservation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
