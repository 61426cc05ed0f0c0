package repositories_test

import (
	"fmt"
	"strings"
	"testing"

	"duka/internal/models"
	"duka/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupDB opens a fresh in-memory SQLite database named after the test so
// parallel tests never share state.
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, id string, price float64, stock int) {
	t.Helper()
	require.NoError(t, db.Create(&models.Product{
		ID:        id,
		Name:      "Product " + id,
		Price:     price,
		StockLeft: stock,
	}).Error)
}

func seedUser(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	require.NoError(t, db.Create(&models.User{
		ID:       id,
		Username: "user-" + id,
		Email:    id + "@example.com",
		Password: "hashed",
		Verified: true,
	}).Error)
}

func stockLeft(t *testing.T, db *gorm.DB, productID string) int {
	t.Helper()
	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	return product.StockLeft
}

func newOrder(userID string, items ...models.OrderItem) *models.Order {
	var total float64
	for _, item := range items {
		total += float64(item.Quantity) * (item.PriceAtPurchase - item.DiscountApplied)
	}
	return &models.Order{
		UserID:          userID,
		TotalAmount:     total,
		ShippingAddress: "123 Moi Avenue, Nairobi",
		ContactPhone:    "0712345678",
		Items:           items,
	}
}

func TestOrderRepository_CreateWithItems(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())
	seedUser(t, db, "user-1")
	seedProduct(t, db, "prod-1", 100.0, 10)
	seedProduct(t, db, "prod-2", 50.0, 5)

	order := newOrder("user-1",
		models.OrderItem{ProductID: "prod-1", Quantity: 2, PriceAtPurchase: 100.0},
		models.OrderItem{ProductID: "prod-2", Quantity: 3, PriceAtPurchase: 50.0},
	)

	err := repo.CreateWithItems(order)
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.OrderPaymentUnpaid, order.PaymentStatus)

	assert.Equal(t, 8, stockLeft(t, db, "prod-1"))
	assert.Equal(t, 2, stockLeft(t, db, "prod-2"))

	fetched, err := repo.GetByID(order.ID)
	require.NoError(t, err)
	assert.Len(t, fetched.Items, 2)
	require.NotNil(t, fetched.User)
	assert.Equal(t, "user-user-1", fetched.User.Username)
}

func TestOrderRepository_CreateWithItems_InsufficientStockRollsBackEverything(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())
	seedUser(t, db, "user-1")
	seedProduct(t, db, "prod-1", 100.0, 10)
	seedProduct(t, db, "prod-2", 50.0, 1)

	// The first line fits, the second does not. Nothing may survive.
	order := newOrder("user-1",
		models.OrderItem{ProductID: "prod-1", Quantity: 2, PriceAtPurchase: 100.0},
		models.OrderItem{ProductID: "prod-2", Quantity: 5, PriceAtPurchase: 50.0},
	)

	err := repo.CreateWithItems(order)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)

	assert.Equal(t, 10, stockLeft(t, db, "prod-1"))
	assert.Equal(t, 1, stockLeft(t, db, "prod-2"))

	var orderCount, itemCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&itemCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, itemCount)
}

func TestOrderRepository_CreateWithItems_UnknownProduct(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())
	seedUser(t, db, "user-1")

	order := newOrder("user-1",
		models.OrderItem{ProductID: "ghost", Quantity: 1, PriceAtPurchase: 100.0},
	)

	err := repo.CreateWithItems(order)
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}

func TestOrderRepository_StockIsNeverOversold(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())
	seedUser(t, db, "user-1")
	seedProduct(t, db, "prod-1", 100.0, 5)

	// Three competing orders of 2 units against 5 in stock: exactly two can
	// succeed, the third must fail on the conditional decrement.
	var succeeded, failed int
	for i := 0; i < 3; i++ {
		order := newOrder("user-1",
			models.OrderItem{ProductID: "prod-1", Quantity: 2, PriceAtPurchase: 100.0},
		)
		if err := repo.CreateWithItems(order); err != nil {
			assert.ErrorIs(t, err, models.ErrInsufficientStock)
			failed++
		} else {
			succeeded++
		}
	}

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, stockLeft(t, db, "prod-1"))
}

func TestOrderRepository_Cancel(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())
	seedUser(t, db, "user-1")
	seedProduct(t, db, "prod-1", 100.0, 10)

	order := newOrder("user-1",
		models.OrderItem{ProductID: "prod-1", Quantity: 4, PriceAtPurchase: 100.0},
	)
	require.NoError(t, repo.CreateWithItems(order))
	require.Equal(t, 6, stockLeft(t, db, "prod-1"))

	cancelled, err := repo.Cancel(order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, stockLeft(t, db, "prod-1"))

	// A second cancel is rejected and must not release stock again
	_, err = repo.Cancel(order.ID)
	assert.ErrorIs(t, err, models.ErrOrderAlreadyCancelled)
	assert.Equal(t, 10, stockLeft(t, db, "prod-1"))
}

func TestOrderRepository_Cancel_ShippedOrder(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())
	seedUser(t, db, "user-1")
	seedProduct(t, db, "prod-1", 100.0, 10)

	order := newOrder("user-1",
		models.OrderItem{ProductID: "prod-1", Quantity: 1, PriceAtPurchase: 100.0},
	)
	require.NoError(t, repo.CreateWithItems(order))
	require.NoError(t, repo.UpdateFields(order.ID, map[string]interface{}{
		"status": models.OrderStatusShipped,
	}))

	_, err := repo.Cancel(order.ID)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)
	assert.Equal(t, 9, stockLeft(t, db, "prod-1"))
}

func TestOrderRepository_Cancel_NotFound(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())

	_, err := repo.Cancel("ghost")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())

	_, err := repo.GetByID("ghost")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestOrderRepository_GetByUserAndStatus(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMOrderRepository(db, repositories.NewGORMInventoryLedger())
	seedUser(t, db, "user-1")
	seedUser(t, db, "user-2")
	seedProduct(t, db, "prod-1", 100.0, 20)

	first := newOrder("user-1", models.OrderItem{ProductID: "prod-1", Quantity: 1, PriceAtPurchase: 100.0})
	second := newOrder("user-2", models.OrderItem{ProductID: "prod-1", Quantity: 2, PriceAtPurchase: 100.0})
	require.NoError(t, repo.CreateWithItems(first))
	require.NoError(t, repo.CreateWithItems(second))
	require.NoError(t, repo.UpdateFields(second.ID, map[string]interface{}{
		"status": models.OrderStatusPaid,
	}))

	mine, err := repo.GetByUser("user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	paid, err := repo.GetByStatus(models.OrderStatusPaid)
	require.NoError(t, err)
	assert.Len(t, paid, 1)
	assert.Equal(t, second.ID, paid[0].ID)
}

func TestPaymentRepository_FindByCorrelation(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMPaymentRepository(db)

	payment := &models.Payment{
		OrderID: "order-1", UserID: "user-1",
		Method: models.PaymentMethodMpesa, Amount: 250.0,
		MerchantRequestID: "M1", CheckoutRequestID: "C1",
	}
	require.NoError(t, repo.Create(payment))
	assert.NotEmpty(t, payment.ID)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)

	found, err := repo.FindByCorrelation("M1", "C1")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, found.ID)

	// Both identifiers must match
	_, err = repo.FindByCorrelation("M1", "C-other")
	assert.ErrorIs(t, err, models.ErrPaymentNotFound)
}

func TestPaymentRepository_GetPending(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewGORMPaymentRepository(db)

	pending := &models.Payment{OrderID: "order-1", UserID: "user-1", Method: models.PaymentMethodMpesa, Amount: 100.0}
	resolved := &models.Payment{OrderID: "order-2", UserID: "user-1", Method: models.PaymentMethodMpesa, Amount: 200.0}
	require.NoError(t, repo.Create(pending))
	require.NoError(t, repo.Create(resolved))

	resolved.Status = models.PaymentStatusCompleted
	require.NoError(t, repo.Update(resolved))

	got, err := repo.GetPending()
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)
}

func TestInventoryLedger_ReserveAndRelease(t *testing.T) {
	db := setupDB(t)
	ledger := repositories.NewGORMInventoryLedger()
	seedProduct(t, db, "prod-1", 100.0, 3)

	remaining, err := ledger.Reserve(db, "prod-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	// Asking for more than remains fails without changing anything
	_, err = ledger.Reserve(db, "prod-1", 2)
	assert.ErrorIs(t, err, models.ErrInsufficientStock)
	assert.Equal(t, 1, stockLeft(t, db, "prod-1"))

	// Unknown product is reported distinctly
	_, err = ledger.Reserve(db, "ghost", 1)
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	require.NoError(t, ledger.Release(db, "prod-1", 2))
	assert.Equal(t, 3, stockLeft(t, db, "prod-1"))
}
