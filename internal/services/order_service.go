package services

import (
	"fmt"
	"log"
	"math"

	"duka/internal/models"
	"duka/internal/repositories"
	"duka/pkg/rabbitmq"

	"github.com/go-playground/validator/v10"
)

// EventPublisher publishes fire-and-forget domain events. Satisfied by
// *rabbitmq.Client; nil disables publishing.
type EventPublisher interface {
	PublishEvent(queue string, event string, payload map[string]interface{}) error
}

// CreateOrderItem is one requested line of a new order.
type CreateOrderItem struct {
	ProductID       string  `json:"product_id" validate:"required"`
	Quantity        int     `json:"quantity" validate:"required,gt=0"`
	PriceAtPurchase float64 `json:"price_at_purchase" validate:"required,gt=0"`
	DiscountApplied float64 `json:"discount_applied" validate:"gte=0"`
}

// CreateOrderRequest carries everything needed to place an order. UserID is
// the verified identity from the auth context, never read from the body.
type CreateOrderRequest struct {
	UserID          string            `json:"-" validate:"required"`
	ShippingAddress string            `json:"shipping_address" validate:"required"`
	ContactPhone    string            `json:"contact_phone" validate:"required"`
	TotalAmount     float64           `json:"total_amount" validate:"required,gt=0"`
	Items           []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
}

// UpdateOrderRequest carries the mutable order fields. Nil fields are left
// untouched.
type UpdateOrderRequest struct {
	Status         *string `json:"status"`
	PaymentStatus  *string `json:"payment_status"`
	TrackingNumber *string `json:"tracking_number"`
}

// OrderService handles business logic related to orders: validation, the
// status state machine, and orchestration of the transactional repository.
type OrderService struct {
	orderRepo repositories.OrderRepository
	events    EventPublisher
	validate  *validator.Validate
}

// NewOrderService creates a new OrderService.
func NewOrderService(orderRepo repositories.OrderRepository, events EventPublisher) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		events:    events,
		validate:  validator.New(),
	}
}

// GetAllOrders retrieves all orders.
func (s *OrderService) GetAllOrders() ([]models.Order, error) {
	return s.orderRepo.GetAll()
}

// GetOrderByID retrieves a single order by its ID.
func (s *OrderService) GetOrderByID(id string) (*models.Order, error) {
	return s.orderRepo.GetByID(id)
}

// GetOrdersByUser retrieves all orders placed by a user.
func (s *OrderService) GetOrdersByUser(userID string) ([]models.Order, error) {
	return s.orderRepo.GetByUser(userID)
}

// GetOrdersByStatus retrieves all orders in a given status.
func (s *OrderService) GetOrdersByStatus(status string) ([]models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, fmt.Errorf("unknown order status %q: %w", status, models.ErrInvalidStatusTransition)
	}
	return s.orderRepo.GetByStatus(status)
}

// CreateOrder validates the request and places the order atomically: the
// order row, every item row and every stock decrement commit together or not
// at all.
func (s *OrderService) CreateOrder(req CreateOrderRequest) (*models.Order, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	var lineTotal float64
	for _, item := range req.Items {
		lineTotal += float64(item.Quantity) * (item.PriceAtPurchase - item.DiscountApplied)
	}
	if math.Abs(lineTotal-req.TotalAmount) > 0.01 {
		return nil, fmt.Errorf("total %.2f, line items sum to %.2f: %w",
			req.TotalAmount, lineTotal, models.ErrTotalMismatch)
	}

	order := &models.Order{
		UserID:          req.UserID,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.OrderPaymentUnpaid,
		TotalAmount:     req.TotalAmount,
		ShippingAddress: req.ShippingAddress,
		ContactPhone:    req.ContactPhone,
	}
	for _, item := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
			DiscountApplied: item.DiscountApplied,
		})
	}

	if err := s.orderRepo.CreateWithItems(order); err != nil {
		return nil, err
	}

	s.publish("order.created", map[string]interface{}{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"total":    order.TotalAmount,
	})

	return order, nil
}

// UpdateOrder updates mutable order fields. Status changes are validated
// against the state machine; a transition to cancelled is routed through
// CancelOrder so stock is released.
func (s *OrderService) UpdateOrder(id string, req UpdateOrderRequest) (*models.Order, error) {
	if req.Status != nil && *req.Status == models.OrderStatusCancelled {
		return s.CancelOrder(id)
	}

	order, err := s.orderRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.Status != nil {
		if !models.ValidOrderStatus(*req.Status) {
			return nil, fmt.Errorf("unknown order status %q: %w", *req.Status, models.ErrInvalidStatusTransition)
		}
		if !models.CanTransitionOrderStatus(order.Status, *req.Status) {
			return nil, fmt.Errorf("order %s cannot move from %s to %s: %w",
				id, order.Status, *req.Status, models.ErrInvalidStatusTransition)
		}
		fields["status"] = *req.Status
	}
	if req.PaymentStatus != nil {
		switch *req.PaymentStatus {
		case models.OrderPaymentUnpaid, models.OrderPaymentPending, models.OrderPaymentPaid,
			models.OrderPaymentFailed, models.OrderPaymentRefunded:
		default:
			return nil, fmt.Errorf("unknown payment status %q: %w", *req.PaymentStatus, models.ErrInvalidStatusTransition)
		}
		fields["payment_status"] = *req.PaymentStatus
	}
	if req.TrackingNumber != nil {
		fields["tracking_number"] = *req.TrackingNumber
	}

	if len(fields) == 0 {
		return order, nil
	}
	if err := s.orderRepo.UpdateFields(id, fields); err != nil {
		return nil, err
	}
	return s.orderRepo.GetByID(id)
}

// CancelOrder cancels an order and restores the stock of every item. Calling
// it on an already-cancelled order fails with ErrOrderAlreadyCancelled and
// releases nothing.
func (s *OrderService) CancelOrder(id string) (*models.Order, error) {
	order, err := s.orderRepo.Cancel(id)
	if err != nil {
		return nil, err
	}

	s.publish("order.cancelled", map[string]interface{}{
		"order_id": order.ID,
		"user_id":  order.UserID,
	})

	return order, nil
}

// publish sends a domain event; failures are logged and never surfaced to the
// caller, so a broker outage cannot fail an order operation.
func (s *OrderService) publish(event string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(rabbitmq.OrderEventsQueue, event, payload); err != nil {
		log.Printf("Warning: failed to publish %s: %v", event, err)
	}
}
