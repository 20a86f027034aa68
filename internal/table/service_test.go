package table_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/restaurant-pos/internal/table"
)

type mockRepository struct {
	createFunc    func(ctx context.Context, t *table.Table) error
	getByIDFunc   func(ctx context.Context, id uuid.UUID) (*table.Table, error)
	listFunc      func(ctx context.Context, status table.Status) ([]table.Table, error)
	setStatusFunc func(ctx context.Context, id uuid.UUID, status table.Status) error
}

func (m *mockRepository) Create(ctx context.Context, t *table.Table) error {
	return m.createFunc(ctx, t)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*table.Table, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) List(ctx context.Context, status table.Status) ([]table.Table, error) {
	return m.listFunc(ctx, status)
}

func (m *mockRepository) SetStatus(ctx context.Context, id uuid.UUID, status table.Status) error {
	return m.setStatusFunc(ctx, id, status)
}

func TestService_CreateTable(t *testing.T) {
	tests := []struct {
		name       string
		number     string
		seats      int
		createFunc func(ctx context.Context, t *table.Table) error
		wantErrIs  error
	}{
		{name: "success", number: "5", seats: 4, createFunc: func(ctx context.Context, t *table.Table) error { return nil }},
		{name: "no_number", number: " ", seats: 4, wantErrIs: table.ErrInvalidTable},
		{name: "no_seats", number: "5", seats: 0, wantErrIs: table.ErrInvalidTable},
		{
			name:       "duplicate_number",
			number:     "5",
			seats:      2,
			createFunc: func(ctx context.Context, t *table.Table) error { return table.ErrTableExists },
			wantErrIs:  table.ErrTableExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := table.NewService(&mockRepository{createFunc: tt.createFunc})

			got, err := svc.CreateTable(context.Background(), tt.number, tt.seats)
			if tt.wantErrIs != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErrIs))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, table.StatusAvailable, got.Status)
			assert.Nil(t, got.CurrentOrderID)
		})
	}
}

func TestService_ListTablesRejectsUnknownStatus(t *testing.T) {
	svc := table.NewService(&mockRepository{})

	_, err := svc.ListTables(context.Background(), table.Status("dirty"))
	assert.ErrorIs(t, err, table.ErrInvalidTable)
}

func TestService_ReserveOccupied(t *testing.T) {
	repo := &mockRepository{
		setStatusFunc: func(ctx context.Context, id uuid.UUID, status table.Status) error {
			return table.ErrTableUnavailable
		},
	}
	svc := table.NewService(repo)

	err := svc.Reserve(context.Background(), uuid.Must(uuid.NewV4()))
	assert.ErrorIs(t, err, table.ErrTableUnavailable)
}
