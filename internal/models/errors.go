package models

import "errors"

// Sentinel errors shared by repositories and services. Handlers map these to
// HTTP statuses with errors.Is.
var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrUserNotFound     = errors.New("user not found")

	ErrInsufficientStock = errors.New("insufficient stock")

	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrOrderAlreadyCancelled   = errors.New("order already cancelled")
	ErrTotalMismatch           = errors.New("order total does not match line items")

	ErrPaymentInitiationFailed = errors.New("payment initiation failed")
)
