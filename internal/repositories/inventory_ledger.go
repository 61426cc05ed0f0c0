package repositories

import (
	"errors"
	"fmt"

	"duka/internal/models"

	"gorm.io/gorm"
)

// InventoryLedger is the exclusive owner of product stock mutations in the
// order flow. Both operations take the transaction handle of the enclosing
// order create/cancel transaction so a stock change never commits without the
// order rows it belongs to.
type InventoryLedger interface {
	// Reserve decrements stock for a product, failing if the product does not
	// exist or has fewer than qty units left. Returns the remaining stock.
	Reserve(tx *gorm.DB, productID string, qty int) (int, error)

	// Release increments stock for a product. Only used to reverse a prior
	// Reserve when an order is cancelled.
	Release(tx *gorm.DB, productID string, qty int) error
}

// GORMInventoryLedger implements InventoryLedger with a conditional
// check-and-decrement UPDATE. The row-level write lock taken by the UPDATE is
// what prevents two competing orders from both draining the same stock.
type GORMInventoryLedger struct{}

// NewGORMInventoryLedger creates a new instance of GORMInventoryLedger.
func NewGORMInventoryLedger() *GORMInventoryLedger {
	return &GORMInventoryLedger{}
}

// Reserve decrements stock_left by qty if at least qty units remain.
func (l *GORMInventoryLedger) Reserve(tx *gorm.DB, productID string, qty int) (int, error) {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock_left >= ?", productID, qty).
		UpdateColumn("stock_left", gorm.Expr("stock_left - ?", qty))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reserve stock for product %s: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the product is missing or the stock ran out; re-read inside
		// the same transaction to tell the two apart.
		var product models.Product
		if err := tx.First(&product, "id = ?", productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, fmt.Errorf("product %s: %w", productID, models.ErrProductNotFound)
			}
			return 0, fmt.Errorf("failed to check stock for product %s: %w", productID, err)
		}
		return 0, fmt.Errorf("product %s has %d left, requested %d: %w",
			productID, product.StockLeft, qty, models.ErrInsufficientStock)
	}

	var stockLeft int
	if err := tx.Model(&models.Product{}).
		Select("stock_left").
		Where("id = ?", productID).
		Scan(&stockLeft).Error; err != nil {
		return 0, fmt.Errorf("failed to read stock for product %s: %w", productID, err)
	}
	return stockLeft, nil
}

// Release increments stock_left by qty. Not guarded against exceeding the
// original ceiling: release only ever reverses a successful Reserve for the
// same order.
func (l *GORMInventoryLedger) Release(tx *gorm.DB, productID string, qty int) error {
	res := tx.Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock_left", gorm.Expr("stock_left + ?", qty))
	if res.Error != nil {
		return fmt.Errorf("failed to release stock for product %s: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %s: %w", productID, models.ErrProductNotFound)
	}
	return nil
}
