package repositories

import (
	"duka/internal/models"
)

// PaymentRepository defines the interface for payment data access.
type PaymentRepository interface {
	Create(payment *models.Payment) error
	GetByID(id string) (*models.Payment, error)
	GetAll() ([]models.Payment, error)
	GetByOrder(orderID string) ([]models.Payment, error)
	GetByUser(userID string) ([]models.Payment, error)
	GetPending() ([]models.Payment, error)

	// FindByCorrelation looks up the payment matching both provider
	// correlation identifiers. Returns ErrPaymentNotFound when no payment
	// matches; callers treat that as a normal outcome for stale or duplicate
	// callbacks.
	FindByCorrelation(merchantRequestID, checkoutRequestID string) (*models.Payment, error)

	Update(payment *models.Payment) error
}
