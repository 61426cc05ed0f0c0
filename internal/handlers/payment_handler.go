package handlers

import (
	"errors"
	"log"

	"duka/internal/middleware"
	"duka/internal/models"
	"duka/internal/services"
	"duka/pkg/mpesa"

	"github.com/gofiber/fiber/v2"
)

// PaymentHandler handles HTTP requests for payments, including the provider's
// asynchronous callback webhook.
type PaymentHandler struct {
	service *services.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		service: service,
	}
}

// RegisterRoutes registers the payment routes. The callback route is
// registered separately on a public router: the provider does not authenticate.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router, admin fiber.Router) {
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Post("/", h.HandleCreatePayment)
	paymentRoutes.Post("/mpesa", h.HandleInitiateMpesaPayment)
	paymentRoutes.Get("/mine", h.HandleGetMyPayments)
	paymentRoutes.Get("/order/:orderId", h.HandleGetPaymentsByOrder)
	paymentRoutes.Get("/:id", h.HandleGetPaymentByID)

	adminPayments := admin.Group("/payments")
	adminPayments.Get("/", h.HandleGetPayments)
	adminPayments.Get("/pending", h.HandleGetPendingPayments)
	adminPayments.Get("/user/:userId", h.HandleGetPaymentsByUser)
	adminPayments.Post("/:id/verify", h.HandleVerifyPayment)
}

// RegisterCallbackRoute registers the provider webhook on a public router.
func (h *PaymentHandler) RegisterCallbackRoute(router fiber.Router) {
	router.Post("/payments/mpesa/callback", h.HandleMpesaCallback)
}

// HandleCreatePayment records a payment attempt for an order.
func (h *PaymentHandler) HandleCreatePayment(c *fiber.Ctx) error {
	var req services.CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing payment request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	req.UserID = middleware.UserID(c)

	payment, err := h.service.CreatePayment(req)
	if err != nil {
		if handled, resp := respondValidationError(c, err); handled {
			return resp
		}
		return respondError(c, err, "Could not create payment")
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

// MpesaPaymentRequest is the body for initiating an STK push.
type MpesaPaymentRequest struct {
	OrderID     string  `json:"order_id"`
	Amount      float64 `json:"amount"`
	PhoneNumber string  `json:"phone_number"`
}

// HandleInitiateMpesaPayment starts an STK push for an order and records the
// pending payment.
func (h *PaymentHandler) HandleInitiateMpesaPayment(c *fiber.Ctx) error {
	var req MpesaPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing mpesa request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if req.OrderID == "" || req.Amount <= 0 || req.PhoneNumber == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "order_id, amount and phone_number are required",
		})
	}

	payment, err := h.service.InitiateMpesaPayment(req.OrderID, middleware.UserID(c), req.Amount, req.PhoneNumber)
	if err != nil {
		return respondError(c, err, "Could not initiate payment")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payment initiated. Complete the prompt on your phone.",
		"payment": payment,
	})
}

// HandleMpesaCallback reconciles the provider's webhook with its pending
// payment. An unmatched callback is answered with 404 and no side effects;
// this is routine for stale or replayed deliveries.
func (h *PaymentHandler) HandleMpesaCallback(c *fiber.Ctx) error {
	var payload mpesa.CallbackPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing mpesa callback body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid callback payload",
		})
	}

	payment, err := h.service.HandleCallback(payload)
	if err != nil {
		if errors.Is(err, models.ErrPaymentNotFound) {
			log.Printf("Unmatched mpesa callback %s/%s", payload.MerchantRequestID, payload.CheckoutRequestID)
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "No matching payment for callback",
			})
		}
		return respondError(c, err, "Could not process callback")
	}

	return c.JSON(fiber.Map{
		"message": "Callback processed",
		"status":  payment.Status,
	})
}

// HandleGetPaymentByID retrieves a single payment.
func (h *PaymentHandler) HandleGetPaymentByID(c *fiber.Ctx) error {
	payment, err := h.service.GetPaymentByID(c.Params("id"))
	if err != nil {
		return respondError(c, err, "Could not retrieve payment")
	}
	return c.JSON(payment)
}

// HandleGetMyPayments lists the authenticated user's payments.
func (h *PaymentHandler) HandleGetMyPayments(c *fiber.Ctx) error {
	payments, err := h.service.GetPaymentsByUser(middleware.UserID(c))
	if err != nil {
		return respondError(c, err, "Could not retrieve payments")
	}
	return c.JSON(payments)
}

// HandleGetPaymentsByOrder lists payments for an order.
func (h *PaymentHandler) HandleGetPaymentsByOrder(c *fiber.Ctx) error {
	payments, err := h.service.GetPaymentsByOrder(c.Params("orderId"))
	if err != nil {
		return respondError(c, err, "Could not retrieve payments")
	}
	return c.JSON(payments)
}

// HandleGetPayments lists all payments (admin).
func (h *PaymentHandler) HandleGetPayments(c *fiber.Ctx) error {
	payments, err := h.service.GetAllPayments()
	if err != nil {
		return respondError(c, err, "Could not retrieve payments")
	}
	return c.JSON(payments)
}

// HandleGetPendingPayments lists unresolved payments (admin).
func (h *PaymentHandler) HandleGetPendingPayments(c *fiber.Ctx) error {
	payments, err := h.service.GetPendingPayments()
	if err != nil {
		return respondError(c, err, "Could not retrieve pending payments")
	}
	return c.JSON(payments)
}

// HandleGetPaymentsByUser lists a user's payments (admin).
func (h *PaymentHandler) HandleGetPaymentsByUser(c *fiber.Ctx) error {
	payments, err := h.service.GetPaymentsByUser(c.Params("userId"))
	if err != nil {
		return respondError(c, err, "Could not retrieve payments")
	}
	return c.JSON(payments)
}

// HandleVerifyPayment polls the provider for a pending payment's final status
// (admin fallback when a callback never arrived).
func (h *PaymentHandler) HandleVerifyPayment(c *fiber.Ctx) error {
	payment, err := h.service.VerifyPayment(c.Params("id"))
	if err != nil {
		return respondError(c, err, "Could not verify payment")
	}
	return c.JSON(payment)
}
