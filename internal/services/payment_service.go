package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"duka/internal/models"
	"duka/internal/repositories"
	"duka/pkg/mpesa"
	"duka/pkg/rabbitmq"

	"github.com/go-playground/validator/v10"
)

// PaymentGateway is the narrow contract the payment service needs from the
// M-Pesa client. Satisfied by *mpesa.Client.
type PaymentGateway interface {
	InitiatePayment(phone string, amount float64, accountRef string) (*mpesa.STKPushResult, error)
	QueryStatus(checkoutRequestID string) (*mpesa.StatusResult, error)
}

// CreatePaymentRequest records a manual payment attempt (card, cash, or an
// M-Pesa payment initiated out of band).
type CreatePaymentRequest struct {
	OrderID     string  `json:"order_id" validate:"required"`
	UserID      string  `json:"-" validate:"required"`
	Method      string  `json:"method" validate:"required,oneof=mpesa card cash"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	PhoneNumber string  `json:"phone_number"`
}

// PaymentService tracks payment attempts and their resolution. It is the join
// between orders and the external gateway: it persists pending payments with
// the provider's correlation identifiers and finalizes them when the matching
// callback (or a status poll) arrives.
type PaymentService struct {
	paymentRepo repositories.PaymentRepository
	orderRepo   repositories.OrderRepository
	gateway     PaymentGateway
	events      EventPublisher
	validate    *validator.Validate
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	paymentRepo repositories.PaymentRepository,
	orderRepo repositories.OrderRepository,
	gateway PaymentGateway,
	events EventPublisher,
) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		gateway:     gateway,
		events:      events,
		validate:    validator.New(),
	}
}

// CreatePayment validates and persists a payment record in pending status.
func (s *PaymentService) CreatePayment(req CreatePaymentRequest) (*models.Payment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		Method:      req.Method,
		Amount:      req.Amount,
		Status:      models.PaymentStatusPending,
		PhoneNumber: req.PhoneNumber,
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// InitiateMpesaPayment starts an STK push for an order and records the
// pending payment with the provider's correlation identifiers. When the
// gateway call fails no payment row is written: the system never tracks a
// pending payment the provider has not seen.
func (s *PaymentService) InitiateMpesaPayment(orderID, userID string, amount float64, phoneNumber string) (*models.Payment, error) {
	if _, err := s.orderRepo.GetByID(orderID); err != nil {
		return nil, err
	}

	result, err := s.gateway.InitiatePayment(phoneNumber, amount, "Order-"+orderID)
	if err != nil {
		if errors.Is(err, mpesa.ErrInvalidPhone) {
			return nil, err
		}
		return nil, fmt.Errorf("gateway error: %v: %w", err, models.ErrPaymentInitiationFailed)
	}

	payment := &models.Payment{
		OrderID:           orderID,
		UserID:            userID,
		Method:            models.PaymentMethodMpesa,
		Amount:            amount,
		Status:            models.PaymentStatusPending,
		PhoneNumber:       phoneNumber,
		MerchantRequestID: result.MerchantRequestID,
		CheckoutRequestID: result.CheckoutRequestID,
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		return nil, err
	}

	if err := s.orderRepo.UpdateFields(orderID, map[string]interface{}{
		"payment_status": models.OrderPaymentPending,
	}); err != nil {
		log.Printf("Warning: failed to mark order %s payment pending: %v", orderID, err)
	}

	return payment, nil
}

// HandleCallback reconciles a provider callback with its pending payment,
// matching on the correlation identifier pair. An unmatched callback returns
// ErrPaymentNotFound and mutates nothing; that is the expected outcome for
// stale, duplicate or bogus callbacks, not a fault. A duplicate of an already
// applied callback is a no-op.
func (s *PaymentService) HandleCallback(cb mpesa.CallbackPayload) (*models.Payment, error) {
	payment, err := s.paymentRepo.FindByCorrelation(cb.MerchantRequestID, cb.CheckoutRequestID)
	if err != nil {
		return nil, err
	}

	status := models.PaymentStatusFailed
	if cb.ResultCode == 0 {
		status = models.PaymentStatusCompleted
	}

	if payment.Status == status {
		// Provider retry of a callback already applied; the overwrite would
		// change nothing, so skip the write and the side effects.
		return payment, nil
	}

	payment.Status = status
	if cb.MpesaReceiptNumber != "" {
		payment.TransactionCode = cb.MpesaReceiptNumber
	}
	if status == models.PaymentStatusCompleted && payment.PaidAt == nil {
		now := time.Now()
		payment.PaidAt = &now
	}
	if err := s.paymentRepo.Update(payment); err != nil {
		return nil, err
	}

	if status == models.PaymentStatusCompleted {
		s.markOrderPaid(payment.OrderID)
		s.publish("payment.completed", map[string]interface{}{
			"payment_id":       payment.ID,
			"order_id":         payment.OrderID,
			"amount":           payment.Amount,
			"transaction_code": payment.TransactionCode,
		})
	} else {
		if err := s.orderRepo.UpdateFields(payment.OrderID, map[string]interface{}{
			"payment_status": models.OrderPaymentFailed,
		}); err != nil {
			log.Printf("Warning: failed to mark order %s payment failed: %v", payment.OrderID, err)
		}
	}

	return payment, nil
}

// VerifyPayment polls the provider for the final status of a pending M-Pesa
// payment. Fallback reconciliation path for when the callback never arrives.
func (s *PaymentService) VerifyPayment(paymentID string) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Method != models.PaymentMethodMpesa ||
		payment.Status != models.PaymentStatusPending ||
		payment.CheckoutRequestID == "" {
		return payment, nil
	}

	result, err := s.gateway.QueryStatus(payment.CheckoutRequestID)
	if err != nil {
		return nil, err
	}

	code, err := strconv.Atoi(result.ResultCode)
	if err != nil {
		return nil, fmt.Errorf("unparseable result code %q from status query: %w", result.ResultCode, err)
	}

	return s.HandleCallback(mpesa.CallbackPayload{
		MerchantRequestID: payment.MerchantRequestID,
		CheckoutRequestID: payment.CheckoutRequestID,
		ResultCode:        code,
		ResultDesc:        result.ResultDesc,
	})
}

// GetPaymentByID retrieves a single payment by its ID.
func (s *PaymentService) GetPaymentByID(id string) (*models.Payment, error) {
	return s.paymentRepo.GetByID(id)
}

// GetAllPayments retrieves all payments.
func (s *PaymentService) GetAllPayments() ([]models.Payment, error) {
	return s.paymentRepo.GetAll()
}

// GetPaymentsByOrder retrieves all payments for an order.
func (s *PaymentService) GetPaymentsByOrder(orderID string) ([]models.Payment, error) {
	return s.paymentRepo.GetByOrder(orderID)
}

// GetPaymentsByUser retrieves all payments made by a user.
func (s *PaymentService) GetPaymentsByUser(userID string) ([]models.Payment, error) {
	return s.paymentRepo.GetByUser(userID)
}

// GetPendingPayments retrieves all payments awaiting resolution.
func (s *PaymentService) GetPendingPayments() ([]models.Payment, error) {
	return s.paymentRepo.GetPending()
}

// markOrderPaid flips the order's payment status and, when legal, its status
// to paid. A failure here is logged, never surfaced: the payment record is
// the source of truth and has already been finalized.
func (s *PaymentService) markOrderPaid(orderID string) {
	fields := map[string]interface{}{"payment_status": models.OrderPaymentPaid}

	order, err := s.orderRepo.GetByID(orderID)
	if err == nil && models.CanTransitionOrderStatus(order.Status, models.OrderStatusPaid) {
		fields["status"] = models.OrderStatusPaid
	}
	if err := s.orderRepo.UpdateFields(orderID, fields); err != nil {
		log.Printf("Warning: failed to mark order %s paid: %v", orderID, err)
	}
}

// publish sends a payment event; failures are logged, never propagated.
func (s *PaymentService) publish(event string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(rabbitmq.PaymentEventsQueue, event, payload); err != nil {
		log.Printf("Warning: failed to publish %s: %v", event, err)
	}
}
