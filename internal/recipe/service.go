package recipe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-pos/internal/menu"
)

type ItemLookup interface {
	GetItem(ctx context.Context, id uuid.UUID) (*inventory.Item, error)
}

type MenuLookup interface {
	GetMenuItem(ctx context.Context, id uuid.UUID) (*menu.Item, error)
}

type Service interface {
	CreateRecipe(ctx context.Context, in Input) (*Recipe, error)
	GetRecipe(ctx context.Context, id uuid.UUID) (*Recipe, error)
	GetByMenuItem(ctx context.Context, menuItemID uuid.UUID) (*Recipe, error)
	ListRecipes(ctx context.Context) ([]Recipe, error)
	// UpdateRecipe replaces name and ingredients. The menu item never changes.
	UpdateRecipe(ctx context.Context, id uuid.UUID, in Input) (*Recipe, error)
	DeleteRecipe(ctx context.Context, id uuid.UUID) error
	// RecipesFor returns the recipes of the given menu items keyed by menu item id.
	// Menu items without a recipe are absent.
	RecipesFor(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID]Recipe, error)
}

type service struct {
	repo  Repository
	items ItemLookup
	menu  MenuLookup
}

func NewService(repo Repository, items ItemLookup, menu MenuLookup) Service {
	return &service{repo: repo, items: items, menu: menu}
}

func (s *service) CreateRecipe(ctx context.Context, in Input) (*Recipe, error) {
	menuItem, err := s.menu.GetMenuItem(ctx, in.MenuItemID)
	if err != nil {
		if errors.Is(err, menu.ErrMenuItemNotFound) {
			return nil, fmt.Errorf("%w: menu item %s does not exist", ErrInvalidRecipe, in.MenuItemID)
		}
		return nil, fmt.Errorf("service: failed to load menu item: %w", err)
	}

	ingredients, err := s.validateIngredients(ctx, in.Ingredients)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate recipe id: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = menuItem.Name
	}

	at := now()
	rec := &Recipe{
		ID:          id,
		MenuItemID:  in.MenuItemID,
		Name:        name,
		Ingredients: ingredients,
		CreatedAt:   at,
		UpdatedAt:   at,
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrRecipeExists) {
			log.Warn().Stringer("menu_item_id", in.MenuItemID).Msg("service: menu item already has a recipe")
			return nil, err
		}
		if errors.Is(err, ErrUnknownIngredient) || errors.Is(err, ErrInvalidRecipe) {
			return nil, err
		}
		log.Error().Err(err).Stringer("menu_item_id", in.MenuItemID).Msg("service: failed to create recipe")
		return nil, fmt.Errorf("service: failed to create recipe: %w", err)
	}

	log.Info().Stringer("recipe_id", rec.ID).Stringer("menu_item_id", rec.MenuItemID).Int("ingredients", len(rec.Ingredients)).Msg("service: recipe created")
	return rec, nil
}

// validateIngredients checks every ingredient against inventory and fills in
// a missing unit from the inventory item.
func (s *service) validateIngredients(ctx context.Context, in []Ingredient) ([]Ingredient, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: at least one ingredient is required", ErrInvalidRecipe)
	}

	seen := make(map[uuid.UUID]bool, len(in))
	out := make([]Ingredient, 0, len(in))
	for _, ing := range in {
		if ing.InventoryItemID == uuid.Nil {
			return nil, fmt.Errorf("%w: ingredient inventory item id is required", ErrInvalidRecipe)
		}
		if seen[ing.InventoryItemID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIngredient, ing.InventoryItemID)
		}
		seen[ing.InventoryItemID] = true

		if !ing.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: quantity per portion must be positive, got %s", ErrInvalidRecipe, ing.Quantity)
		}
		if !inventory.FitsScale(ing.Quantity) {
			return nil, fmt.Errorf("%w: quantity per portion %s has more than %d decimal places", ErrInvalidRecipe, ing.Quantity, inventory.QuantityScale)
		}

		item, err := s.items.GetItem(ctx, ing.InventoryItemID)
		if err != nil {
			if errors.Is(err, inventory.ErrItemNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownIngredient, ing.InventoryItemID)
			}
			return nil, fmt.Errorf("service: failed to load inventory item %s: %w", ing.InventoryItemID, err)
		}

		unit := strings.TrimSpace(ing.Unit)
		if unit == "" {
			unit = item.Unit
		}
		if unit != item.Unit {
			return nil, fmt.Errorf("%w: %s is stocked in %s, recipe uses %s", ErrUnitMismatch, item.Name, item.Unit, unit)
		}

		out = append(out, Ingredient{InventoryItemID: item.ID, Quantity: ing.Quantity, Unit: unit})
	}
	return out, nil
}

func (s *service) GetRecipe(ctx context.Context, id uuid.UUID) (*Recipe, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecipeNotFound) {
			return nil, ErrRecipeNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch recipe: %w", err)
	}
	return rec, nil
}

func (s *service) GetByMenuItem(ctx context.Context, menuItemID uuid.UUID) (*Recipe, error) {
	rec, err := s.repo.GetByMenuItem(ctx, menuItemID)
	if err != nil {
		if errors.Is(err, ErrRecipeNotFound) {
			return nil, ErrRecipeNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch recipe by menu item: %w", err)
	}
	return rec, nil
}

func (s *service) ListRecipes(ctx context.Context) ([]Recipe, error) {
	recipes, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list recipes: %w", err)
	}
	return recipes, nil
}

func (s *service) UpdateRecipe(ctx context.Context, id uuid.UUID, in Input) (*Recipe, error) {
	rec, err := s.GetRecipe(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.MenuItemID != uuid.Nil && in.MenuItemID != rec.MenuItemID {
		return nil, fmt.Errorf("%w: a recipe cannot move to another menu item", ErrInvalidRecipe)
	}

	ingredients, err := s.validateIngredients(ctx, in.Ingredients)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		rec.Name = name
	}
	rec.Ingredients = ingredients
	rec.UpdatedAt = now()

	if err := s.repo.Update(ctx, rec); err != nil {
		if errors.Is(err, ErrRecipeNotFound) || errors.Is(err, ErrUnknownIngredient) {
			return nil, err
		}
		log.Error().Err(err).Stringer("recipe_id", id).Msg("service: failed to update recipe")
		return nil, fmt.Errorf("service: failed to update recipe: %w", err)
	}

	log.Info().Stringer("recipe_id", id).Msg("service: recipe updated")
	return rec, nil
}

func (s *service) DeleteRecipe(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrRecipeNotFound) {
			return ErrRecipeNotFound
		}
		return fmt.Errorf("service: failed to delete recipe: %w", err)
	}
	log.Info().Stringer("recipe_id", id).Msg("service: recipe deleted")
	return nil
}

func (s *service) RecipesFor(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID]Recipe, error) {
	if len(menuItemIDs) == 0 {
		return map[uuid.UUID]Recipe{}, nil
	}
	recipes, err := s.repo.ForMenuItems(ctx, menuItemIDs)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load recipes: %w", err)
	}
	return recipes, nil
}

func sortByName(recipes []Recipe) {
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].Name < recipes[j].Name })
}
