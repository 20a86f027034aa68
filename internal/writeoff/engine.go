package writeoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-pos/internal/recipe"
)

var (
	ErrMissingRecipe        = errors.New("missing recipe")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrUnknownInventoryItem = errors.New("recipe ingredient is not in inventory")
)

type RecipeSource interface {
	RecipesFor(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID]recipe.Recipe, error)
}

type Line struct {
	MenuItemID uuid.UUID
	Name       string
	Quantity   int
}

type Request struct {
	OrderID     uuid.UUID
	PerformedBy uuid.UUID
	Lines       []Line
	At          time.Time
}

type MissingRecipe struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
}

type Shortage struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
}

// InsufficientStockError lists every ingredient the order would drive negative.
// It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("%s (required %s %s, available %s %s)", s.Name, s.Required, s.Unit, s.Available, s.Unit)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Result struct {
	Entries        []inventory.Transaction `json:"entries"`
	MissingRecipes []MissingRecipe         `json:"missing_recipes,omitempty"`
}

// Warning returns a non-fatal error naming menu items that had no recipe.
func (r *Result) Warning() error {
	if r == nil || len(r.MissingRecipes) == 0 {
		return nil
	}
	names := make([]string, len(r.MissingRecipes))
	for i, m := range r.MissingRecipes {
		names[i] = m.Name
	}
	return fmt.Errorf("%w: %s", ErrMissingRecipe, strings.Join(names, ", "))
}

type Engine struct {
	recipes     RecipeSource
	maxAttempts int
}

func NewEngine(recipes RecipeSource, maxAttempts int) *Engine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Engine{recipes: recipes, maxAttempts: maxAttempts}
}

// Run deducts the ingredients of every line from stock. stock must be bound to
// the caller's transaction; on error nothing has been applied through it.
func (e *Engine) Run(ctx context.Context, stock inventory.Store, req Request) (*Result, error) {
	if req.At.IsZero() {
		req.At = time.Now().UTC()
	}

	recipes, err := e.recipes.RecipesFor(ctx, menuItemIDs(req.Lines))
	if err != nil {
		return nil, fmt.Errorf("writeoff: failed to load recipes: %w", err)
	}

	reqs, missing := plan(req.Lines, recipes)
	for _, m := range missing {
		log.Warn().Stringer("order_id", req.OrderID).Stringer("menu_item_id", m.MenuItemID).Str("name", m.Name).Msg("writeoff: no recipe for menu item, skipping")
	}

	result := &Result{Entries: []inventory.Transaction{}, MissingRecipes: missing}
	if len(reqs) == 0 {
		return result, nil
	}

	for attempt := 1; ; attempt++ {
		entries, err := e.apply(ctx, stock, req, reqs)
		if err == nil {
			result.Entries = entries
			return result, nil
		}
		if !errors.Is(err, inventory.ErrStaleBalance) || attempt >= e.maxAttempts {
			return nil, err
		}
		log.Warn().Err(err).Stringer("order_id", req.OrderID).Int("attempt", attempt).Msg("writeoff: balance moved underneath, recomputing")
	}
}

// requirement is one (order line, ingredient) pair.
type requirement struct {
	line     Line
	itemID   uuid.UUID
	quantity decimal.Decimal
}

func plan(lines []Line, recipes map[uuid.UUID]recipe.Recipe) ([]requirement, []MissingRecipe) {
	var (
		reqs    []requirement
		missing []MissingRecipe
		flagged = make(map[uuid.UUID]bool)
	)
	for _, line := range lines {
		rec, ok := recipes[line.MenuItemID]
		if !ok {
			if !flagged[line.MenuItemID] {
				flagged[line.MenuItemID] = true
				missing = append(missing, MissingRecipe{MenuItemID: line.MenuItemID, Name: line.Name})
			}
			continue
		}
		portions := decimal.NewFromInt(int64(line.Quantity))
		for _, ing := range rec.Ingredients {
			reqs = append(reqs, requirement{
				line:     line,
				itemID:   ing.InventoryItemID,
				quantity: ing.Quantity.Mul(portions),
			})
		}
	}
	return reqs, missing
}

func (e *Engine) apply(ctx context.Context, stock inventory.Store, req Request, reqs []requirement) ([]inventory.Transaction, error) {
	var (
		ids    []uuid.UUID
		totals = make(map[uuid.UUID]decimal.Decimal)
	)
	for _, r := range reqs {
		if _, ok := totals[r.itemID]; !ok {
			ids = append(ids, r.itemID)
			totals[r.itemID] = decimal.Zero
		}
		totals[r.itemID] = totals[r.itemID].Add(r.quantity)
	}

	locked, err := stock.LockItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("writeoff: failed to lock stock: %w", err)
	}

	var shortages []Shortage
	for _, id := range ids {
		item, ok := locked[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInventoryItem, id)
		}
		if item.Quantity.LessThan(totals[id]) {
			shortages = append(shortages, Shortage{
				ItemID:    id,
				Name:      item.Name,
				Unit:      item.Unit,
				Required:  totals[id],
				Available: item.Quantity,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &InsufficientStockError{Shortages: shortages}
	}

	entries := make([]inventory.Transaction, 0, len(reqs))
	for _, r := range reqs {
		item := locked[r.itemID]
		orderID := req.OrderID
		entry, err := inventory.NewEntry(item, inventory.TypeWriteOff, r.quantity.Neg(), inventory.Ref{
			OrderID:     &orderID,
			PerformedBy: req.PerformedBy,
			Note:        fmt.Sprintf("%s x%d", r.line.Name, r.line.Quantity),
			At:          req.At,
		})
		if err != nil {
			return nil, fmt.Errorf("writeoff: failed to build ledger entry: %w", err)
		}
		item.Quantity = entry.BalanceAfter
		locked[r.itemID] = item
		entries = append(entries, entry)
	}

	if err := stock.ApplyEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("writeoff: failed to apply entries: %w", err)
	}
	return entries, nil
}

func menuItemIDs(lines []Line) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if !seen[l.MenuItemID] {
			seen[l.MenuItemID] = true
			ids = append(ids, l.MenuItemID)
		}
	}
	return ids
}
