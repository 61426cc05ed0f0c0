package repositories

import (
	"errors"
	"fmt"

	"duka/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMOrderRepository is a GORM implementation of OrderRepository. Stock
// mutations are delegated to the InventoryLedger inside this repository's
// transactions.
type GORMOrderRepository struct {
	db     *gorm.DB
	ledger InventoryLedger
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB, ledger InventoryLedger) *GORMOrderRepository {
	return &GORMOrderRepository{
		db:     db,
		ledger: ledger,
	}
}

// GetAll retrieves all orders with their items, oldest first.
func (r *GORMOrderRepository) GetAll() ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Preload("Items").Order("created_at asc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get all orders: %w", err)
	}
	if err := r.attachUserSummaries(orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetByID retrieves a single order by its ID with items and user summary.
func (r *GORMOrderRepository) GetByID(id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %s: %w", id, models.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	orders := []models.Order{order}
	if err := r.attachUserSummaries(orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetByUser retrieves all orders placed by a user, oldest first.
func (r *GORMOrderRepository) GetByUser(userID string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Preload("Items").Where("user_id = ?", userID).Order("created_at asc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get orders for user %s: %w", userID, err)
	}
	if err := r.attachUserSummaries(orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetByStatus retrieves all orders in a given status, oldest first.
func (r *GORMOrderRepository) GetByStatus(status string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Preload("Items").Where("status = ?", status).Order("created_at asc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get orders with status %s: %w", status, err)
	}
	if err := r.attachUserSummaries(orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateWithItems persists the order, its items, and the stock decrements as
// one transaction. A reservation failure on any item rolls back everything,
// including decrements already applied for earlier items.
func (r *GORMOrderRepository) CreateWithItems(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.OrderPaymentUnpaid
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		items := order.Items
		order.Items = nil
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range items {
			if items[i].ID == "" {
				items[i].ID = uuid.New().String()
			}
			items[i].OrderID = order.ID

			if _, err := r.ledger.Reserve(tx, items[i].ProductID, items[i].Quantity); err != nil {
				return err
			}
			if err := tx.Create(&items[i]).Error; err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}
		order.Items = items
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// UpdateFields updates mutable order fields by ID.
func (r *GORMOrderRepository) UpdateFields(id string, fields map[string]interface{}) error {
	res := r.db.Model(&models.Order{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update order %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %s: %w", id, models.ErrOrderNotFound)
	}
	return nil
}

// Cancel sets the order to cancelled and releases every item's stock in one
// transaction. The conditional status update makes cancellation idempotent: a
// second cancel matches zero rows and releases nothing.
func (r *GORMOrderRepository) Cancel(id string) (*models.Order, error) {
	cancellable := []string{models.OrderStatusPending, models.OrderStatusPaid}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status IN ?", id, cancellable).
			Update("status", models.OrderStatusCancelled)
		if res.Error != nil {
			return fmt.Errorf("failed to cancel order %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			var order models.Order
			if err := tx.First(&order, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("order %s: %w", id, models.ErrOrderNotFound)
				}
				return fmt.Errorf("failed to get order %s: %w", id, err)
			}
			if order.Status == models.OrderStatusCancelled {
				return fmt.Errorf("order %s: %w", id, models.ErrOrderAlreadyCancelled)
			}
			return fmt.Errorf("order %s is %s: %w", id, order.Status, models.ErrInvalidStatusTransition)
		}

		var items []models.OrderItem
		if err := tx.Where("order_id = ?", id).Find(&items).Error; err != nil {
			return fmt.Errorf("failed to load items for order %s: %w", id, err)
		}
		for _, item := range items {
			if err := r.ledger.Release(tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.GetByID(id)
}

// attachUserSummaries fills in the User field of each order with a projection
// of its owning user.
func (r *GORMOrderRepository) attachUserSummaries(orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	userIDs := make([]string, 0, len(orders))
	seen := make(map[string]bool)
	for _, order := range orders {
		if !seen[order.UserID] {
			seen[order.UserID] = true
			userIDs = append(userIDs, order.UserID)
		}
	}

	var users []models.User
	if err := r.db.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return fmt.Errorf("failed to load order users: %w", err)
	}

	summaries := make(map[string]models.UserSummary, len(users))
	for i := range users {
		summaries[users[i].ID] = users[i].Summary()
	}
	for i := range orders {
		if summary, ok := summaries[orders[i].UserID]; ok {
			s := summary
			orders[i].User = &s
		}
	}
	return nil
}
