package repositories

import (
	"duka/internal/models"
)

// OrderRepository defines the interface for order data access. CreateWithItems
// and Cancel are the two transactional entry points that touch product stock.
type OrderRepository interface {
	GetAll() ([]models.Order, error)
	GetByID(id string) (*models.Order, error)
	GetByUser(userID string) ([]models.Order, error)
	GetByStatus(status string) ([]models.Order, error)

	// CreateWithItems persists the order, all of its items, and the matching
	// stock decrements as a single transaction. No partial order survives a
	// failure on any item.
	CreateWithItems(order *models.Order) error

	// UpdateFields updates mutable order fields (status, payment_status,
	// tracking_number). State-machine legality is the service's concern.
	UpdateFields(id string, fields map[string]interface{}) error

	// Cancel flips the order to cancelled and releases the stock of every
	// item in one transaction. Returns the cancelled order.
	Cancel(id string) (*models.Order, error)
}
