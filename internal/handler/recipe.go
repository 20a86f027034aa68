package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/restaurant-pos/internal/recipe"
)

type IngredientRequest struct {
	InventoryItemID string          `json:"inventory_item_id" validate:"required,uuid"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit" validate:"max=20"`
}

type RecipeRequest struct {
	MenuItemID  string              `json:"menu_item_id" validate:"required,uuid"`
	Name        string              `json:"name" validate:"max=200"`
	Ingredients []IngredientRequest `json:"ingredients" validate:"required,min=1,dive"`
}

type RecipeHandler struct {
	service  recipe.Service
	validate *validator.Validate
}

func NewRecipeHandler(service recipe.Service) *RecipeHandler {
	return &RecipeHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *RecipeHandler) RegisterRoutes(router chi.Router) {
	router.Post("/recipes", h.handleCreateRecipe)
	router.Get("/recipes", h.handleListRecipes)
	router.Get("/recipes/{id}", h.handleGetRecipe)
	router.Put("/recipes/{id}", h.handleUpdateRecipe)
	router.Delete("/recipes/{id}", h.handleDeleteRecipe)
	router.Get("/menu-items/{id}/recipe", h.handleGetByMenuItem)
}

func (req RecipeRequest) input() recipe.Input {
	in := recipe.Input{
		MenuItemID:  uuid.FromStringOrNil(req.MenuItemID),
		Name:        req.Name,
		Ingredients: make([]recipe.Ingredient, len(req.Ingredients)),
	}
	for i, ing := range req.Ingredients {
		in.Ingredients[i] = recipe.Ingredient{
			InventoryItemID: uuid.FromStringOrNil(ing.InventoryItemID),
			Quantity:        ing.Quantity,
			Unit:            ing.Unit,
		}
	}
	return in
}

func (h *RecipeHandler) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req RecipeRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	created, err := h.service.CreateRecipe(r.Context(), req.input())
	if err != nil {
		respondWithServiceError(w, err, "create recipe")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *RecipeHandler) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.service.ListRecipes(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "list recipes")
		return
	}

	respondWithJSON(w, http.StatusOK, recipes)
}

func (h *RecipeHandler) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetRecipe(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "get recipe")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *RecipeHandler) handleGetByMenuItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.GetByMenuItem(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "get recipe")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *RecipeHandler) handleUpdateRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	var req RecipeRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.service.UpdateRecipe(r.Context(), id, req.input())
	if err != nil {
		respondWithServiceError(w, err, "update recipe")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *RecipeHandler) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRecipe(r.Context(), id); err != nil {
		respondWithServiceError(w, err, "delete recipe")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
