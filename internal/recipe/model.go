package recipe

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrRecipeNotFound      = errors.New("recipe not found")
	ErrRecipeExists        = errors.New("menu item already has a recipe")
	ErrUnknownIngredient   = errors.New("recipe references unknown inventory item")
	ErrUnitMismatch        = errors.New("ingredient unit does not match inventory item")
	ErrDuplicateIngredient = errors.New("inventory item listed twice in recipe")
	ErrInvalidRecipe       = errors.New("invalid recipe")
)

type Ingredient struct {
	InventoryItemID uuid.UUID       `json:"inventory_item_id"`
	Quantity        decimal.Decimal `json:"quantity"` // per portion
	Unit            string          `json:"unit"`
}

type Recipe struct {
	ID          uuid.UUID    `json:"id"`
	MenuItemID  uuid.UUID    `json:"menu_item_id"`
	Name        string       `json:"name"`
	Ingredients []Ingredient `json:"ingredients"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type Input struct {
	MenuItemID  uuid.UUID
	Name        string
	Ingredients []Ingredient
}
