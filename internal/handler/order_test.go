package handler_test

import (
	"bytes"
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
	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
	"github.com/vasiliy-maslov/restaurant-pos/internal/writeoff"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, actor order.Actor, in order.CreateInput) (*order.Order, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, f order.Filter) ([]order.Order, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateItems(ctx context.Context, id uuid.UUID, actor order.Actor, items []order.LineInput) (*order.Order, error) {
	args := m.Called(ctx, id, actor, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) ChangeStatus(ctx context.Context, id uuid.UUID, actor order.Actor, target order.Status) (*order.Order, error) {
	args := m.Called(ctx, id, actor, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CloseOrder(ctx context.Context, id uuid.UUID, actor order.Actor, method order.PaymentMethod) (*order.CloseResult, error) {
	args := m.Called(ctx, id, actor, method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.CloseResult), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, id uuid.UUID, actor order.Actor, reason string) (*order.Order, error) {
	args := m.Called(ctx, id, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) RetryWriteOff(ctx context.Context, id uuid.UUID, actor order.Actor) (*order.CloseResult, error) {
	args := m.Called(ctx, id, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.CloseResult), args.Error(1)
}

func newOrderRouter(svc order.Service) *chi.Mux {
	router := chi.NewRouter()
	handler.NewOrderHandler(svc).RegisterRoutes(router)
	return router
}

func actorRequest(t *testing.T, method, target string, actor order.Actor, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handler.HeaderActorID, actor.ID.String())
	req.Header.Set(handler.HeaderActorRole, string(actor.Role))
	return req
}

func TestOrderHandler_handleCreateOrder_Success(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	waiter := order.Actor{ID: uuid.Must(uuid.NewV4()), Role: order.RoleWaiter}
	tableID := uuid.Must(uuid.NewV4())
	menuItemID := uuid.Must(uuid.NewV4())
	tableParam := tableID.String()

	created := &order.Order{
		ID:            uuid.Must(uuid.NewV4()),
		Type:          order.TypeRestaurant,
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		TableID:       &tableID,
		TotalAmount:   decimal.RequireFromString("15.00"),
	}

	mockService.On("CreateOrder", mock.Anything, waiter, mock.MatchedBy(func(in order.CreateInput) bool {
		return in.Type == order.TypeRestaurant &&
			in.TableID != nil && *in.TableID == tableID &&
			len(in.Items) == 1 && in.Items[0].MenuItemID == menuItemID && in.Items[0].Quantity == 2
	})).Return(created, nil).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, actorRequest(t, http.MethodPost, "/orders", waiter, handler.CreateOrderRequest{
		OrderType: "restaurant",
		TableID:   &tableParam,
		Items:     []handler.OrderLineRequest{{MenuItemID: menuItemID.String(), Quantity: 2}},
	}))
	require.Equal(t, http.StatusCreated, rr.Code)

	var got order.Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.True(t, created.TotalAmount.Equal(got.TotalAmount))
	mockService.AssertExpectations(t)
}

func TestOrderHandler_handleCreateOrder_ValidationError(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)
	waiter := order.Actor{ID: uuid.Must(uuid.NewV4()), Role: order.RoleWaiter}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, actorRequest(t, http.MethodPost, "/orders", waiter, handler.CreateOrderRequest{
		OrderType: "takeaway",
		Items:     []handler.OrderLineRequest{{MenuItemID: "not-a-uuid", Quantity: 0}},
	}))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp handler.ValidationErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "Validation failed", resp.Error)
	assert.Contains(t, resp.Details, "order_type")
	assert.Contains(t, resp.Details, "menu_item_id")
	assert.Contains(t, resp.Details, "quantity")
	mockService.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderHandler_MissingActor(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	req := httptest.NewRequest(http.MethodPost, "/orders/"+uuid.Must(uuid.NewV4()).String()+"/close", bytes.NewBufferString(`{"payment_method":"cash"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	mockService.AssertNotCalled(t, "CloseOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderHandler_handleCloseOrder(t *testing.T) {
	cashier := order.Actor{ID: uuid.Must(uuid.NewV4()), Role: order.RoleCashier}
	orderID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name       string
		body       any
		result     *order.CloseResult
		err        error
		wantStatus int
		wantCall   bool
	}{
		{
			name: "paid",
			body: handler.CloseOrderRequest{PaymentMethod: "card"},
			result: &order.CloseResult{
				Order:    &order.Order{ID: orderID, Status: order.StatusCompleted, PaymentStatus: order.PaymentPaid},
				WriteOff: &writeoff.Result{},
			},
			wantStatus: http.StatusOK,
			wantCall:   true,
		},
		{
			name:       "already_paid",
			body:       handler.CloseOrderRequest{PaymentMethod: "card"},
			err:        order.ErrAlreadyPaid,
			wantStatus: http.StatusConflict,
			wantCall:   true,
		},
		{
			name:       "not_found",
			body:       handler.CloseOrderRequest{PaymentMethod: "cash"},
			err:        order.ErrOrderNotFound,
			wantStatus: http.StatusNotFound,
			wantCall:   true,
		},
		{
			name: "blocked_by_shortage",
			body: handler.CloseOrderRequest{PaymentMethod: "cash"},
			err: &writeoff.InsufficientStockError{Shortages: []writeoff.Shortage{
				{Name: "flour", Unit: "g", Required: decimal.NewFromInt(100), Available: decimal.NewFromInt(30)},
			}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCall:   true,
		},
		{
			name:       "unknown_method",
			body:       handler.CloseOrderRequest{PaymentMethod: "iou"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			router := newOrderRouter(mockService)

			if tt.wantCall {
				var result any
				if tt.result != nil {
					result = tt.result
				}
				mockService.On("CloseOrder", mock.Anything, orderID, cashier, mock.AnythingOfType("order.PaymentMethod")).
					Return(result, tt.err).Once()
			}

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, actorRequest(t, http.MethodPost, "/orders/"+orderID.String()+"/close", cashier, tt.body))
			assert.Equal(t, tt.wantStatus, rr.Code)

			if tt.name == "blocked_by_shortage" {
				var resp handler.ShortageResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				require.Len(t, resp.Shortages, 1)
				assert.Equal(t, "flour", resp.Shortages[0].Name)
				assert.Contains(t, resp.Error, "required 100 g, available 30 g")
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestOrderHandler_handleChangeStatus(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	kitchen := order.Actor{ID: uuid.Must(uuid.NewV4()), Role: order.RoleKitchen}
	orderID := uuid.Must(uuid.NewV4())

	mockService.On("ChangeStatus", mock.Anything, orderID, kitchen, order.StatusServed).
		Return(nil, order.ErrInvalidTransition).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, actorRequest(t, http.MethodPost, "/orders/"+orderID.String()+"/status", kitchen, handler.ChangeStatusRequest{Status: "served"}))
	assert.Equal(t, http.StatusConflict, rr.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, order.ErrInvalidTransition.Error(), resp["error"])
	mockService.AssertExpectations(t)
}

func TestOrderHandler_handleListOrders(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)
	tableID := uuid.Must(uuid.NewV4())

	mockService.On("ListOrders", mock.Anything, order.Filter{Status: order.StatusReady, TableID: &tableID, Limit: 5}).
		Return([]order.Order{{ID: uuid.Must(uuid.NewV4())}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/orders?status=ready&table_id="+tableID.String()+"&limit=5", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []order.Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Len(t, got, 1)
	mockService.AssertExpectations(t)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders?table_id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOrderHandler_handleListOrders_UnknownStatus(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	mockService.On("ListOrders", mock.Anything, order.Filter{Status: "eaten"}).
		Return(nil, fmt.Errorf("%w: unknown status %q", order.ErrInvalidOrder, "eaten")).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders?status=eaten", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `unknown status \"eaten\"`)
	mockService.AssertExpectations(t)
}

func TestOrderHandler_handleGetOrder_InvalidID(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/42", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	mockService.AssertNotCalled(t, "GetOrder", mock.Anything, mock.Anything)
}

func TestOrderHandler_handleCancelOrder_EmptyBody(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	manager := order.Actor{ID: uuid.Must(uuid.NewV4()), Role: order.RoleManager}
	orderID := uuid.Must(uuid.NewV4())

	mockService.On("CancelOrder", mock.Anything, orderID, manager, "").
		Return(&order.Order{ID: orderID, Status: order.StatusCancelled}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/cancel", nil)
	req.Header.Set(handler.HeaderActorID, manager.ID.String())
	req.Header.Set(handler.HeaderActorRole, "MANAGER")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	mockService.AssertExpectations(t)
}
