package recipe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vasiliy-maslov/restaurant-pos/internal/db"
)

type Repository interface {
	Create(ctx context.Context, r *Recipe) error
	GetByID(ctx context.Context, id uuid.UUID) (*Recipe, error)
	GetByMenuItem(ctx context.Context, menuItemID uuid.UUID) (*Recipe, error)
	ForMenuItems(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID]Recipe, error)
	List(ctx context.Context) ([]Recipe, error)
	Update(ctx context.Context, r *Recipe) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, rec *Recipe) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO recipes (id, menu_item_id, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.ID, rec.MenuItemID, rec.Name, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch pgErr.Code {
				case pgerrcode.UniqueViolation:
					return ErrRecipeExists
				case pgerrcode.ForeignKeyViolation:
					return fmt.Errorf("%w: menu item %s does not exist", ErrInvalidRecipe, rec.MenuItemID)
				}
			}
			return fmt.Errorf("repository: failed to insert recipe: %w", err)
		}
		return insertIngredients(ctx, tx, rec)
	})
}

func insertIngredients(ctx context.Context, tx pgx.Tx, rec *Recipe) error {
	for i, ing := range rec.Ingredients {
		_, err := tx.Exec(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, inventory_item_id, quantity, unit, position)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.ID, ing.InventoryItemID, ing.Quantity, ing.Unit, i,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return fmt.Errorf("%w: %s", ErrUnknownIngredient, ing.InventoryItemID)
			}
			return fmt.Errorf("repository: failed to insert ingredient %s of recipe %s: %w", ing.InventoryItemID, rec.ID, err)
		}
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Recipe, error) {
	return r.getOne(ctx, `SELECT id, menu_item_id, name, created_at, updated_at FROM recipes WHERE id = $1`, id)
}

func (r *postgresRepository) GetByMenuItem(ctx context.Context, menuItemID uuid.UUID) (*Recipe, error) {
	return r.getOne(ctx, `SELECT id, menu_item_id, name, created_at, updated_at FROM recipes WHERE menu_item_id = $1`, menuItemID)
}

func (r *postgresRepository) getOne(ctx context.Context, query string, arg uuid.UUID) (*Recipe, error) {
	var rec Recipe
	err := r.db.QueryRow(ctx, query, arg).Scan(&rec.ID, &rec.MenuItemID, &rec.Name, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecipeNotFound
		}
		return nil, fmt.Errorf("repository: failed to select recipe: %w", err)
	}

	byRecipe, err := r.ingredients(ctx, `WHERE recipe_id = $1`, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.Ingredients = byRecipe[rec.ID]
	if rec.Ingredients == nil {
		rec.Ingredients = []Ingredient{}
	}
	return &rec, nil
}

func (r *postgresRepository) ForMenuItems(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID]Recipe, error) {
	keys := make([]string, len(menuItemIDs))
	for i, id := range menuItemIDs {
		keys[i] = id.String()
	}
	return r.list(ctx, `WHERE menu_item_id = ANY($1::text[]::uuid[])`, keys)
}

func (r *postgresRepository) List(ctx context.Context) ([]Recipe, error) {
	byMenuItem, err := r.list(ctx, ``)
	if err != nil {
		return nil, err
	}
	out := make([]Recipe, 0, len(byMenuItem))
	for _, rec := range byMenuItem {
		out = append(out, rec)
	}
	sortByName(out)
	return out, nil
}

// list loads recipes matching where, keyed by menu item, with their ingredients.
func (r *postgresRepository) list(ctx context.Context, where string, args ...any) (map[uuid.UUID]Recipe, error) {
	rows, err := r.db.Query(ctx, `SELECT id, menu_item_id, name, created_at, updated_at FROM recipes `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query recipes: %w", err)
	}
	defer rows.Close()

	recipes := make(map[uuid.UUID]Recipe)
	ids := make([]string, 0)
	for rows.Next() {
		var rec Recipe
		if err := rows.Scan(&rec.ID, &rec.MenuItemID, &rec.Name, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan recipe: %w", err)
		}
		rec.Ingredients = []Ingredient{}
		recipes[rec.ID] = rec
		ids = append(ids, rec.ID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating recipes: %w", err)
	}

	out := make(map[uuid.UUID]Recipe, len(recipes))
	if len(recipes) == 0 {
		return out, nil
	}

	byRecipe, err := r.ingredients(ctx, `WHERE recipe_id = ANY($1::text[]::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	for id, rec := range recipes {
		if ings, ok := byRecipe[id]; ok {
			rec.Ingredients = ings
		}
		out[rec.MenuItemID] = rec
	}
	return out, nil
}

func (r *postgresRepository) ingredients(ctx context.Context, where string, arg any) (map[uuid.UUID][]Ingredient, error) {
	rows, err := r.db.Query(ctx, `
		SELECT recipe_id, inventory_item_id, quantity, unit
		FROM recipe_ingredients `+where+`
		ORDER BY recipe_id, position`, arg)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query recipe ingredients: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Ingredient)
	for rows.Next() {
		var (
			recipeID uuid.UUID
			ing      Ingredient
		)
		if err := rows.Scan(&recipeID, &ing.InventoryItemID, &ing.Quantity, &ing.Unit); err != nil {
			return nil, fmt.Errorf("repository: failed to scan recipe ingredient: %w", err)
		}
		out[recipeID] = append(out[recipeID], ing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating recipe ingredients: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) Update(ctx context.Context, rec *Recipe) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx, `UPDATE recipes SET name = $1, updated_at = $2 WHERE id = $3`,
			rec.Name, rec.UpdatedAt, rec.ID)
		if err != nil {
			return fmt.Errorf("repository: failed to update recipe %s: %w", rec.ID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrRecipeNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM recipe_ingredients WHERE recipe_id = $1`, rec.ID); err != nil {
			return fmt.Errorf("repository: failed to clear ingredients of recipe %s: %w", rec.ID, err)
		}
		return insertIngredients(ctx, tx, rec)
	})
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM recipes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete recipe %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRecipeNotFound
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
