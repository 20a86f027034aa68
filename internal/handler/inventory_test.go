package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/restaurant-pos/internal/handler"
	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
)

type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) CreateItem(ctx context.Context, input inventory.NewItem, performedBy uuid.UUID) (*inventory.Item, error) {
	args := m.Called(ctx, input, performedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Item), args.Error(1)
}

func (m *MockInventoryService) GetItem(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Item), args.Error(1)
}

func (m *MockInventoryService) ListItems(ctx context.Context) ([]inventory.Item, error) {
	args := m.Called(ctx)
	return args.Get(0).([]inventory.Item), args.Error(1)
}

func (m *MockInventoryService) LowStock(ctx context.Context) ([]inventory.Item, error) {
	args := m.Called(ctx)
	return args.Get(0).([]inventory.Item), args.Error(1)
}

func (m *MockInventoryService) UpdateItem(ctx context.Context, id uuid.UUID, upd inventory.ItemUpdate) (*inventory.Item, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Item), args.Error(1)
}

func (m *MockInventoryService) Receive(ctx context.Context, id uuid.UUID, q decimal.Decimal, ref inventory.Ref) (*inventory.Transaction, error) {
	args := m.Called(ctx, id, q, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Transaction), args.Error(1)
}

func (m *MockInventoryService) Adjust(ctx context.Context, id uuid.UUID, q decimal.Decimal, ref inventory.Ref) (*inventory.Transaction, error) {
	args := m.Called(ctx, id, q, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Transaction), args.Error(1)
}

func (m *MockInventoryService) Audit(ctx context.Context, id uuid.UUID, q decimal.Decimal, ref inventory.Ref) (*inventory.Transaction, error) {
	args := m.Called(ctx, id, q, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Transaction), args.Error(1)
}

func (m *MockInventoryService) ListTransactions(ctx context.Context, f inventory.TransactionFilter) ([]inventory.Transaction, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]inventory.Transaction), args.Error(1)
}

func (m *MockInventoryService) Reconcile(ctx context.Context, id uuid.UUID) (*inventory.Reconciliation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Reconciliation), args.Error(1)
}

func newInventoryRouter(svc inventory.Service) *chi.Mux {
	router := chi.NewRouter()
	handler.NewInventoryHandler(svc).RegisterRoutes(router)
	return router
}

func TestInventoryHandler_Receive(t *testing.T) {
	mockService := new(MockInventoryService)
	router := newInventoryRouter(mockService)

	manager := order.Actor{ID: uuid.Must(uuid.NewV4()), Role: order.RoleManager}
	itemID := uuid.Must(uuid.NewV4())
	qty := decimal.NewFromInt(250)

	entry := &inventory.Transaction{
		ID:            uuid.Must(uuid.NewV4()),
		ItemID:        itemID,
		Type:          inventory.TypeReceive,
		Quantity:      qty,
		BalanceBefore: decimal.NewFromInt(100),
		BalanceAfter:  decimal.NewFromInt(350),
	}
	mockService.On("Receive", mock.Anything, itemID, mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(qty) }),
		inventory.Ref{PerformedBy: manager.ID, Note: "delivery"}).Return(entry, nil).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, actorRequest(t, http.MethodPost, "/inventory/items/"+itemID.String()+"/receive", manager,
		handler.MovementRequest{Quantity: &qty, Note: "delivery"}))
	require.Equal(t, http.StatusCreated, rr.Code)

	var got inventory.Transaction
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.True(t, decimal.NewFromInt(350).Equal(got.BalanceAfter))
	mockService.AssertExpectations(t)
}

func TestInventoryHandler_AdjustRejectsNegativeBalance(t *testing.T) {
	mockService := new(MockInventoryService)
	router := newInventoryRouter(mockService)

	manager := order.Actor{ID: uuid.Must(uuid.NewV4()), Role: order.RoleManager}
	itemID := uuid.Must(uuid.NewV4())
	delta := decimal.NewFromInt(-500)

	mockService.On("Adjust", mock.Anything, itemID, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: balance would drop to -400", inventory.ErrInsufficientStock)).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, actorRequest(t, http.MethodPost, "/inventory/items/"+itemID.String()+"/adjust", manager,
		handler.MovementRequest{Quantity: &delta}))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	mockService.AssertExpectations(t)
}

func TestInventoryHandler_ReconcileReportsInconsistency(t *testing.T) {
	mockService := new(MockInventoryService)
	router := newInventoryRouter(mockService)
	itemID := uuid.Must(uuid.NewV4())

	rec := &inventory.Reconciliation{
		ItemID:     itemID,
		Quantity:   decimal.NewFromInt(900),
		LedgerSum:  decimal.NewFromInt(950),
		Entries:    3,
		Consistent: false,
	}
	mockService.On("Reconcile", mock.Anything, itemID).Return(rec, inventory.ErrLedgerInconsistency).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/inventory/items/"+itemID.String()+"/reconcile", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got inventory.Reconciliation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.False(t, got.Consistent)
	mockService.AssertExpectations(t)
}

func TestInventoryHandler_ListTransactions(t *testing.T) {
	mockService := new(MockInventoryService)
	router := newInventoryRouter(mockService)

	mockService.On("ListTransactions", mock.Anything, mock.MatchedBy(func(f inventory.TransactionFilter) bool {
		return f.Type == inventory.TypeWriteOff && !f.From.IsZero() && f.To.IsZero() && f.Limit == 10
	})).Return([]inventory.Transaction{}, nil).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/inventory/transactions?type=write-off&from=2025-03-01T00:00:00Z&limit=10", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/inventory/transactions?from=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	mockService.AssertExpectations(t)
}
