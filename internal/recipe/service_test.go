package recipe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-pos/internal/menu"
	"github.com/vasiliy-maslov/restaurant-pos/internal/recipe"
)

type mockRepository struct {
	createFunc        func(ctx context.Context, r *recipe.Recipe) error
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*recipe.Recipe, error)
	getByMenuItemFunc func(ctx context.Context, id uuid.UUID) (*recipe.Recipe, error)
	forMenuItemsFunc  func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]recipe.Recipe, error)
	listFunc          func(ctx context.Context) ([]recipe.Recipe, error)
	updateFunc        func(ctx context.Context, r *recipe.Recipe) error
	deleteFunc        func(ctx context.Context, id uuid.UUID) error
}

func (m *mockRepository) Create(ctx context.Context, r *recipe.Recipe) error {
	return m.createFunc(ctx, r)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*recipe.Recipe, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) GetByMenuItem(ctx context.Context, id uuid.UUID) (*recipe.Recipe, error) {
	return m.getByMenuItemFunc(ctx, id)
}

func (m *mockRepository) ForMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]recipe.Recipe, error) {
	return m.forMenuItemsFunc(ctx, ids)
}

func (m *mockRepository) List(ctx context.Context) ([]recipe.Recipe, error) {
	return m.listFunc(ctx)
}

func (m *mockRepository) Update(ctx context.Context, r *recipe.Recipe) error {
	return m.updateFunc(ctx, r)
}

func (m *mockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

type itemLookup map[uuid.UUID]inventory.Item

func (l itemLookup) GetItem(_ context.Context, id uuid.UUID) (*inventory.Item, error) {
	item, ok := l[id]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	return &item, nil
}

type menuLookup map[uuid.UUID]menu.Item

func (l menuLookup) GetMenuItem(_ context.Context, id uuid.UUID) (*menu.Item, error) {
	item, ok := l[id]
	if !ok {
		return nil, menu.ErrMenuItemNotFound
	}
	return &item, nil
}

func TestService_CreateRecipe(t *testing.T) {
	flour := inventory.Item{ID: uuid.Must(uuid.NewV4()), Name: "flour", Unit: "g"}
	cheese := inventory.Item{ID: uuid.Must(uuid.NewV4()), Name: "cheese", Unit: "g"}
	pizza := menu.Item{ID: uuid.Must(uuid.NewV4()), Name: "Pizza", Available: true}

	items := itemLookup{flour.ID: flour, cheese.ID: cheese}
	menus := menuLookup{pizza.ID: pizza}
	ok := func(ctx context.Context, r *recipe.Recipe) error { return nil }

	tests := []struct {
		name       string
		input      recipe.Input
		createFunc func(ctx context.Context, r *recipe.Recipe) error
		wantErrIs  error
	}{
		{
			name: "success_with_unit_from_inventory",
			input: recipe.Input{MenuItemID: pizza.ID, Ingredients: []recipe.Ingredient{
				{InventoryItemID: flour.ID, Quantity: decimal.NewFromInt(200)},
				{InventoryItemID: cheese.ID, Quantity: decimal.NewFromInt(80), Unit: "g"},
			}},
			createFunc: ok,
		},
		{
			name:      "unknown_menu_item",
			input:     recipe.Input{MenuItemID: uuid.Must(uuid.NewV4()), Ingredients: []recipe.Ingredient{{InventoryItemID: flour.ID, Quantity: decimal.NewFromInt(1)}}},
			wantErrIs: recipe.ErrInvalidRecipe,
		},
		{
			name:      "no_ingredients",
			input:     recipe.Input{MenuItemID: pizza.ID},
			wantErrIs: recipe.ErrInvalidRecipe,
		},
		{
			name:      "unknown_ingredient",
			input:     recipe.Input{MenuItemID: pizza.ID, Ingredients: []recipe.Ingredient{{InventoryItemID: uuid.Must(uuid.NewV4()), Quantity: decimal.NewFromInt(1)}}},
			wantErrIs: recipe.ErrUnknownIngredient,
		},
		{
			name:      "unit_mismatch",
			input:     recipe.Input{MenuItemID: pizza.ID, Ingredients: []recipe.Ingredient{{InventoryItemID: flour.ID, Quantity: decimal.NewFromInt(1), Unit: "kg"}}},
			wantErrIs: recipe.ErrUnitMismatch,
		},
		{
			name: "duplicate_ingredient",
			input: recipe.Input{MenuItemID: pizza.ID, Ingredients: []recipe.Ingredient{
				{InventoryItemID: flour.ID, Quantity: decimal.NewFromInt(1)},
				{InventoryItemID: flour.ID, Quantity: decimal.NewFromInt(2)},
			}},
			wantErrIs: recipe.ErrDuplicateIngredient,
		},
		{
			name:      "zero_quantity",
			input:     recipe.Input{MenuItemID: pizza.ID, Ingredients: []recipe.Ingredient{{InventoryItemID: flour.ID}}},
			wantErrIs: recipe.ErrInvalidRecipe,
		},
		{
			name:      "quantity_below_storage_scale",
			input:     recipe.Input{MenuItemID: pizza.ID, Ingredients: []recipe.Ingredient{{InventoryItemID: flour.ID, Quantity: decimal.RequireFromString("0.0004")}}},
			wantErrIs: recipe.ErrInvalidRecipe,
		},
		{
			name:       "second_recipe_for_menu_item",
			input:      recipe.Input{MenuItemID: pizza.ID, Ingredients: []recipe.Ingredient{{InventoryItemID: flour.ID, Quantity: decimal.NewFromInt(1)}}},
			createFunc: func(ctx context.Context, r *recipe.Recipe) error { return recipe.ErrRecipeExists },
			wantErrIs:  recipe.ErrRecipeExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := recipe.NewService(&mockRepository{createFunc: tt.createFunc}, items, menus)

			rec, err := svc.CreateRecipe(context.Background(), tt.input)
			if tt.wantErrIs != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErrIs), "got %v", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "Pizza", rec.Name)
			require.Len(t, rec.Ingredients, 2)
			assert.Equal(t, "g", rec.Ingredients[0].Unit)
		})
	}
}

func TestService_UpdateRecipeKeepsMenuItem(t *testing.T) {
	flour := inventory.Item{ID: uuid.Must(uuid.NewV4()), Name: "flour", Unit: "g"}
	existing := &recipe.Recipe{ID: uuid.Must(uuid.NewV4()), MenuItemID: uuid.Must(uuid.NewV4()), Name: "Bread"}

	var saved *recipe.Recipe
	repo := &mockRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*recipe.Recipe, error) {
			copied := *existing
			return &copied, nil
		},
		updateFunc: func(ctx context.Context, r *recipe.Recipe) error {
			saved = r
			return nil
		},
	}
	svc := recipe.NewService(repo, itemLookup{flour.ID: flour}, menuLookup{})

	ings := []recipe.Ingredient{{InventoryItemID: flour.ID, Quantity: decimal.NewFromInt(300)}}

	_, err := svc.UpdateRecipe(context.Background(), existing.ID, recipe.Input{MenuItemID: uuid.Must(uuid.NewV4()), Ingredients: ings})
	assert.ErrorIs(t, err, recipe.ErrInvalidRecipe)

	rec, err := svc.UpdateRecipe(context.Background(), existing.ID, recipe.Input{Name: "Sourdough", Ingredients: ings})
	require.NoError(t, err)
	assert.Equal(t, "Sourdough", rec.Name)
	assert.Equal(t, existing.MenuItemID, saved.MenuItemID)
	assert.Len(t, saved.Ingredients, 1)
}

func TestService_RecipesForEmpty(t *testing.T) {
	svc := recipe.NewService(&mockRepository{}, itemLookup{}, menuLookup{})

	recipes, err := svc.RecipesFor(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, recipes)
}
