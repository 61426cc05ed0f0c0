package repositories

import (
	"errors"
	"fmt"

	"duka/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMPaymentRepository is a GORM implementation of PaymentRepository.
type GORMPaymentRepository struct {
	db *gorm.DB
}

// NewGORMPaymentRepository creates a new instance of GORMPaymentRepository.
func NewGORMPaymentRepository(db *gorm.DB) *GORMPaymentRepository {
	return &GORMPaymentRepository{
		db: db,
	}
}

// Create persists a new payment record.
func (r *GORMPaymentRepository) Create(payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	if err := r.db.Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByID retrieves a single payment by its ID.
func (r *GORMPaymentRepository) GetByID(id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %s: %w", id, models.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("failed to get payment by ID %s: %w", id, err)
	}
	return &payment, nil
}

// GetAll retrieves all payments, oldest first.
func (r *GORMPaymentRepository) GetAll() ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Order("created_at asc").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to get all payments: %w", err)
	}
	return payments, nil
}

// GetByOrder retrieves all payments attached to an order, oldest first.
func (r *GORMPaymentRepository) GetByOrder(orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Where("order_id = ?", orderID).Order("created_at asc").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to get payments for order %s: %w", orderID, err)
	}
	return payments, nil
}

// GetByUser retrieves all payments made by a user, oldest first.
func (r *GORMPaymentRepository) GetByUser(userID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Where("user_id = ?", userID).Order("created_at asc").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to get payments for user %s: %w", userID, err)
	}
	return payments, nil
}

// GetPending retrieves all payments still awaiting resolution.
func (r *GORMPaymentRepository) GetPending() ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Where("status = ?", models.PaymentStatusPending).Order("created_at asc").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("failed to get pending payments: %w", err)
	}
	return payments, nil
}

// FindByCorrelation looks up the payment matching both provider identifiers.
func (r *GORMPaymentRepository) FindByCorrelation(merchantRequestID, checkoutRequestID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.First(&payment,
		"merchant_request_id = ? AND checkout_request_id = ?",
		merchantRequestID, checkoutRequestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment for request %s/%s: %w",
				merchantRequestID, checkoutRequestID, models.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("failed to find payment by correlation: %w", err)
	}
	return &payment, nil
}

// Update persists changes to an existing payment.
func (r *GORMPaymentRepository) Update(payment *models.Payment) error {
	res := r.db.Save(payment)
	if res.Error != nil {
		return fmt.Errorf("failed to update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment %s: %w", payment.ID, models.ErrPaymentNotFound)
	}
	return nil
}
