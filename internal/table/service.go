package table

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

type Service interface {
	CreateTable(ctx context.Context, number string, seats int) (*Table, error)
	GetTable(ctx context.Context, id uuid.UUID) (*Table, error)
	ListTables(ctx context.Context, status Status) ([]Table, error)
	Reserve(ctx context.Context, id uuid.UUID) error
	Unreserve(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreateTable(ctx context.Context, number string, seats int) (*Table, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("%w: number is required", ErrInvalidTable)
	}
	if seats <= 0 {
		return nil, fmt.Errorf("%w: seats must be positive, got %d", ErrInvalidTable, seats)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate table id: %w", err)
	}

	now := time.Now().UTC()
	t := &Table{ID: id, Number: number, Seats: seats, Status: StatusAvailable, CreatedAt: now, UpdatedAt: now}
	if err := s.repo.Create(ctx, t); err != nil {
		if errors.Is(err, ErrTableExists) {
			return nil, err
		}
		log.Error().Err(err).Str("number", number).Msg("service: failed to create table")
		return nil, fmt.Errorf("service: failed to create table: %w", err)
	}

	log.Info().Stringer("table_id", t.ID).Str("number", number).Msg("service: table created")
	return t, nil
}

func (s *service) GetTable(ctx context.Context, id uuid.UUID) (*Table, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTableNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch table: %w", err)
	}
	return t, nil
}

func (s *service) ListTables(ctx context.Context, status Status) ([]Table, error) {
	switch status {
	case "", StatusAvailable, StatusOccupied, StatusReserved:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTable, status)
	}
	tables, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list tables: %w", err)
	}
	return tables, nil
}

func (s *service) Reserve(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, StatusReserved)
}

func (s *service) Unreserve(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, StatusAvailable)
}

func (s *service) setStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		if errors.Is(err, ErrTableNotFound) || errors.Is(err, ErrTableUnavailable) {
			return err
		}
		return fmt.Errorf("service: failed to set table status: %w", err)
	}
	log.Info().Stringer("table_id", id).Str("status", string(status)).Msg("service: table status changed")
	return nil
}
