package models

import (
	"time"

	"gorm.io/gorm"
)

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Payment statuses carried on an order.
const (
	OrderPaymentUnpaid   = "unpaid"
	OrderPaymentPending  = "pending"
	OrderPaymentPaid     = "paid"
	OrderPaymentFailed   = "failed"
	OrderPaymentRefunded = "refunded"
)

// orderTransitions is the allowed status state machine. Delivered and
// cancelled are terminal.
var orderTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered},
}

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionOrderStatus reports whether an order may move from one
// status to another.
func CanTransitionOrderStatus(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderItem is a single line of an order. PriceAtPurchase is a snapshot taken
// when the order is created and never re-priced.
type OrderItem struct {
	ID              string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID         string  `json:"order_id" gorm:"type:varchar(36);index"`
	ProductID       string  `json:"product_id" gorm:"type:varchar(36)" validate:"required,uuid"`
	Quantity        int     `json:"quantity" validate:"required,gt=0"`
	PriceAtPurchase float64 `json:"price_at_purchase" validate:"required,gt=0"`
	DiscountApplied float64 `json:"discount_applied" validate:"gte=0"`
	gorm.Model
}

// Order represents a customer order and its line items.
type Order struct {
	ID              string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID          string       `json:"user_id" gorm:"type:varchar(36);index"`
	Status          string       `json:"status" gorm:"type:varchar(20);index"`
	PaymentStatus   string       `json:"payment_status" gorm:"type:varchar(20)"`
	TotalAmount     float64      `json:"total_amount"`
	ShippingAddress string       `json:"shipping_address"`
	ContactPhone    string       `json:"contact_phone"`
	TrackingNumber  string       `json:"tracking_number,omitempty"`
	Items           []OrderItem  `json:"items" gorm:"foreignKey:OrderID"`
	User            *UserSummary `json:"user,omitempty" gorm:"-"`
	gorm.Model
}

// Payment methods.
const (
	PaymentMethodMpesa = "mpesa"
	PaymentMethodCard  = "card"
	PaymentMethodCash  = "cash"
)

// Payment statuses. Pending moves to completed or failed exactly once; both
// are terminal.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment is one payment attempt against an order. MerchantRequestID and
// CheckoutRequestID together correlate an in-flight M-Pesa transaction with
// its asynchronous callback.
type Payment struct {
	ID                string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID           string     `json:"order_id" gorm:"type:varchar(36);index"`
	UserID            string     `json:"user_id" gorm:"type:varchar(36);index"`
	Method            string     `json:"method" gorm:"type:varchar(20)" validate:"required,oneof=mpesa card cash"`
	Amount            float64    `json:"amount" validate:"required,gt=0"`
	Status            string     `json:"status" gorm:"type:varchar(20);index"`
	PhoneNumber       string     `json:"phone_number,omitempty"`
	MerchantRequestID string     `json:"merchant_request_id,omitempty" gorm:"index:idx_payments_correlation"`
	CheckoutRequestID string     `json:"checkout_request_id,omitempty" gorm:"index:idx_payments_correlation"`
	TransactionCode   string     `json:"transaction_code,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	gorm.Model
}
