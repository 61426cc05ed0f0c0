package services_test

import (
	"fmt"
	"testing"

	"duka/internal/models"
	"duka/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockOrderRepository is a mock implementation of repositories.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) GetAll() ([]models.Order, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByID(id string) (*models.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByUser(userID string) ([]models.Order, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByStatus(status string) ([]models.Order, error) {
	args := m.Called(status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Order), args.Error(1)
}

func (m *MockOrderRepository) CreateWithItems(order *models.Order) error {
	args := m.Called(order)
	if args.Error(0) == nil && order.ID == "" {
		order.ID = "order-1"
	}
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateFields(id string, fields map[string]interface{}) error {
	args := m.Called(id, fields)
	return args.Error(0)
}

func (m *MockOrderRepository) Cancel(id string) (*models.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

// MockEventPublisher is a mock implementation of services.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishEvent(queue string, event string, payload map[string]interface{}) error {
	args := m.Called(queue, event, payload)
	return args.Error(0)
}

func validOrderRequest() services.CreateOrderRequest {
	return services.CreateOrderRequest{
		UserID:          "user-1",
		ShippingAddress: "123 Moi Avenue, Nairobi",
		ContactPhone:    "0712345678",
		TotalAmount:     250.0,
		Items: []services.CreateOrderItem{
			{ProductID: "prod-1", Quantity: 2, PriceAtPurchase: 100.0},
			{ProductID: "prod-2", Quantity: 1, PriceAtPurchase: 50.0},
		},
	}
}

func TestOrderService_CreateOrder(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	mockEvents := new(MockEventPublisher)
	service := services.NewOrderService(mockRepo, mockEvents)

	mockRepo.On("CreateWithItems", mock.AnythingOfType("*models.Order")).Return(nil).Once()
	mockEvents.On("PublishEvent", "order_events", "order.created", mock.Anything).Return(nil).Once()

	order, err := service.CreateOrder(validOrderRequest())

	assert.NoError(t, err)
	assert.NotNil(t, order)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.OrderPaymentUnpaid, order.PaymentStatus)
	assert.Len(t, order.Items, 2)
	mockRepo.AssertExpectations(t)
	mockEvents.AssertExpectations(t)
}

func TestOrderService_CreateOrder_ValidationFailure(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	service := services.NewOrderService(mockRepo, nil)

	// Missing items entirely
	req := validOrderRequest()
	req.Items = nil
	_, err := service.CreateOrder(req)
	assert.Error(t, err)

	// Zero quantity on a line
	req = validOrderRequest()
	req.Items[0].Quantity = 0
	_, err = service.CreateOrder(req)
	assert.Error(t, err)

	// The repository must never be touched on validation failure
	mockRepo.AssertNotCalled(t, "CreateWithItems", mock.Anything)
}

func TestOrderService_CreateOrder_TotalMismatch(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	service := services.NewOrderService(mockRepo, nil)

	req := validOrderRequest()
	req.TotalAmount = 999.0 // items sum to 250.0

	_, err := service.CreateOrder(req)

	assert.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTotalMismatch)
	mockRepo.AssertNotCalled(t, "CreateWithItems", mock.Anything)
}

func TestOrderService_CreateOrder_DiscountsCountTowardTotal(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	service := services.NewOrderService(mockRepo, nil)

	req := services.CreateOrderRequest{
		UserID:          "user-1",
		ShippingAddress: "123 Moi Avenue, Nairobi",
		ContactPhone:    "0712345678",
		TotalAmount:     180.0,
		Items: []services.CreateOrderItem{
			{ProductID: "prod-1", Quantity: 2, PriceAtPurchase: 100.0, DiscountApplied: 10.0},
		},
	}

	mockRepo.On("CreateWithItems", mock.AnythingOfType("*models.Order")).Return(nil).Once()

	order, err := service.CreateOrder(req)

	assert.NoError(t, err)
	assert.Equal(t, 180.0, order.TotalAmount)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_CreateOrder_InsufficientStock(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	mockEvents := new(MockEventPublisher)
	service := services.NewOrderService(mockRepo, mockEvents)

	mockRepo.On("CreateWithItems", mock.AnythingOfType("*models.Order")).
		Return(fmt.Errorf("product prod-1: %w", models.ErrInsufficientStock)).Once()

	order, err := service.CreateOrder(validOrderRequest())

	assert.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Nil(t, order)
	// No event for an order that was never placed
	mockEvents.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_CreateOrder_PublishFailureIsNotFatal(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	mockEvents := new(MockEventPublisher)
	service := services.NewOrderService(mockRepo, mockEvents)

	mockRepo.On("CreateWithItems", mock.AnythingOfType("*models.Order")).Return(nil).Once()
	mockEvents.On("PublishEvent", "order_events", "order.created", mock.Anything).
		Return(fmt.Errorf("broker unavailable")).Once()

	order, err := service.CreateOrder(validOrderRequest())

	// A broker outage must never fail a placed order
	assert.NoError(t, err)
	assert.NotNil(t, order)
	mockRepo.AssertExpectations(t)
	mockEvents.AssertExpectations(t)
}

func TestOrderService_UpdateOrder_StatusTransitions(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	service := services.NewOrderService(mockRepo, nil)

	pendingOrder := &models.Order{ID: "order-1", UserID: "user-1", Status: models.OrderStatusPending}

	// pending -> delivered skips the state machine and must be rejected
	mockRepo.On("GetByID", "order-1").Return(pendingOrder, nil).Once()
	delivered := models.OrderStatusDelivered
	_, err := service.UpdateOrder("order-1", services.UpdateOrderRequest{Status: &delivered})
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	// Unknown status string is rejected without writing anything
	mockRepo.On("GetByID", "order-1").Return(pendingOrder, nil).Once()
	bogus := "teleported"
	_, err = service.UpdateOrder("order-1", services.UpdateOrderRequest{Status: &bogus})
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	// pending -> paid is legal
	paidOrder := &models.Order{ID: "order-1", UserID: "user-1", Status: models.OrderStatusPaid}
	mockRepo.On("GetByID", "order-1").Return(pendingOrder, nil).Once()
	mockRepo.On("UpdateFields", "order-1", map[string]interface{}{"status": models.OrderStatusPaid}).Return(nil).Once()
	mockRepo.On("GetByID", "order-1").Return(paidOrder, nil).Once()
	paid := models.OrderStatusPaid
	updated, err := service.UpdateOrder("order-1", services.UpdateOrderRequest{Status: &paid})
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, updated.Status)

	mockRepo.AssertExpectations(t)
}

func TestOrderService_UpdateOrder_CancellationRoutesThroughCancel(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	mockEvents := new(MockEventPublisher)
	service := services.NewOrderService(mockRepo, mockEvents)

	cancelledOrder := &models.Order{ID: "order-1", UserID: "user-1", Status: models.OrderStatusCancelled}
	mockRepo.On("Cancel", "order-1").Return(cancelledOrder, nil).Once()
	mockEvents.On("PublishEvent", "order_events", "order.cancelled", mock.Anything).Return(nil).Once()

	cancelled := models.OrderStatusCancelled
	order, err := service.UpdateOrder("order-1", services.UpdateOrderRequest{Status: &cancelled})

	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	// Stock release lives in Cancel; a plain field update must never be used
	mockRepo.AssertNotCalled(t, "UpdateFields", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
	mockEvents.AssertExpectations(t)
}

func TestOrderService_CancelOrder_AlreadyCancelled(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	mockEvents := new(MockEventPublisher)
	service := services.NewOrderService(mockRepo, mockEvents)

	mockRepo.On("Cancel", "order-1").
		Return(nil, fmt.Errorf("order order-1: %w", models.ErrOrderAlreadyCancelled)).Once()

	order, err := service.CancelOrder("order-1")

	assert.ErrorIs(t, err, models.ErrOrderAlreadyCancelled)
	assert.Nil(t, order)
	mockEvents.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_GetOrdersByStatus(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	service := services.NewOrderService(mockRepo, nil)

	expected := []models.Order{{ID: "order-1", Status: models.OrderStatusPending}}
	mockRepo.On("GetByStatus", models.OrderStatusPending).Return(expected, nil).Once()

	orders, err := service.GetOrdersByStatus(models.OrderStatusPending)
	assert.NoError(t, err)
	assert.Equal(t, expected, orders)

	// Unknown status is rejected without hitting the repository
	_, err = service.GetOrdersByStatus("limbo")
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)
	mockRepo.AssertExpectations(t)
}
