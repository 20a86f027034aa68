package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Service interface {
	CreateMenuItem(ctx context.Context, name string, price decimal.Decimal) (*Item, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (*Item, error)
	ListMenuItems(ctx context.Context, availableOnly bool) ([]Item, error)
	UpdateMenuItem(ctx context.Context, id uuid.UUID, upd ItemUpdate) (*Item, error)
	// Orderable returns the requested items, failing if any is unknown or unavailable.
	Orderable(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreateMenuItem(ctx context.Context, name string, price decimal.Decimal) (*Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidMenuItem)
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate menu item id: %w", err)
	}

	now := time.Now().UTC()
	item := &Item{ID: id, Name: name, Price: price, Available: true, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, ErrMenuItemExists) {
			return nil, err
		}
		log.Error().Err(err).Str("name", name).Msg("service: failed to create menu item")
		return nil, fmt.Errorf("service: failed to create menu item: %w", err)
	}

	log.Info().Stringer("menu_item_id", item.ID).Str("name", name).Msg("service: menu item created")
	return item, nil
}

// priceScale is the number of decimal places stored for prices.
const priceScale = 2

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative, got %s", ErrInvalidMenuItem, price)
	}
	if !price.Equal(price.Truncate(priceScale)) {
		return fmt.Errorf("%w: price %s has more than %d decimal places", ErrInvalidMenuItem, price, priceScale)
	}
	return nil
}

func (s *service) GetMenuItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrMenuItemNotFound) {
			return nil, ErrMenuItemNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch menu item: %w", err)
	}
	return item, nil
}

func (s *service) ListMenuItems(ctx context.Context, availableOnly bool) ([]Item, error) {
	items, err := s.repo.List(ctx, availableOnly)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list menu items: %w", err)
	}
	return items, nil
}

func (s *service) UpdateMenuItem(ctx context.Context, id uuid.UUID, upd ItemUpdate) (*Item, error) {
	item, err := s.GetMenuItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidMenuItem)
		}
		item.Name = name
	}
	if upd.Price != nil {
		if err := validatePrice(*upd.Price); err != nil {
			return nil, err
		}
		item.Price = *upd.Price
	}
	if upd.Available != nil {
		item.Available = *upd.Available
	}
	item.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, ErrMenuItemNotFound) || errors.Is(err, ErrMenuItemExists) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to update menu item: %w", err)
	}
	return item, nil
}

func (s *service) Orderable(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error) {
	items, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load menu items: %w", err)
	}
	for _, id := range ids {
		item, ok := items[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMenuItemNotFound, id)
		}
		if !item.Available {
			return nil, fmt.Errorf("%w: %s", ErrMenuItemUnavailable, item.Name)
		}
	}
	return items, nil
}
