package handlers

import (
	"log"

	"duka/internal/middleware"
	"duka/internal/services"

	"github.com/gofiber/fiber/v2"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService) *OrderHandler {
	return &OrderHandler{
		service: service,
	}
}

// RegisterRoutes registers the order routes with the Fiber app. The admin
// group carries the AdminRequired middleware.
func (h *OrderHandler) RegisterRoutes(router fiber.Router, admin fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Get("/mine", h.HandleGetMyOrders)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Post("/:id/cancel", h.HandleCancelOrder)

	adminOrders := admin.Group("/orders")
	adminOrders.Get("/", h.HandleGetOrders)
	adminOrders.Get("/status/:status", h.HandleGetOrdersByStatus)
	adminOrders.Get("/user/:userId", h.HandleGetOrdersByUser)
	adminOrders.Patch("/:id", h.HandleUpdateOrder)
}

// HandleCreateOrder places a new order for the authenticated user.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var req services.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing order request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	req.UserID = middleware.UserID(c)

	order, err := h.service.CreateOrder(req)
	if err != nil {
		if handled, resp := respondValidationError(c, err); handled {
			return resp
		}
		return respondError(c, err, "Could not create order")
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleGetMyOrders lists the authenticated user's orders.
func (h *OrderHandler) HandleGetMyOrders(c *fiber.Ctx) error {
	orders, err := h.service.GetOrdersByUser(middleware.UserID(c))
	if err != nil {
		return respondError(c, err, "Could not retrieve orders")
	}
	return c.JSON(orders)
}

// HandleGetOrderByID retrieves a single order by its ID.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrderByID(c.Params("id"))
	if err != nil {
		return respondError(c, err, "Could not retrieve order")
	}
	return c.JSON(order)
}

// HandleCancelOrder cancels an order and restores its stock.
func (h *OrderHandler) HandleCancelOrder(c *fiber.Ctx) error {
	order, err := h.service.CancelOrder(c.Params("id"))
	if err != nil {
		return respondError(c, err, "Could not cancel order")
	}
	return c.JSON(fiber.Map{
		"message": "Order cancelled successfully",
		"order":   order,
	})
}

// HandleGetOrders retrieves all orders (admin).
func (h *OrderHandler) HandleGetOrders(c *fiber.Ctx) error {
	orders, err := h.service.GetAllOrders()
	if err != nil {
		return respondError(c, err, "Could not retrieve orders")
	}
	return c.JSON(orders)
}

// HandleGetOrdersByStatus lists orders in a given status (admin).
func (h *OrderHandler) HandleGetOrdersByStatus(c *fiber.Ctx) error {
	orders, err := h.service.GetOrdersByStatus(c.Params("status"))
	if err != nil {
		return respondError(c, err, "Could not retrieve orders")
	}
	return c.JSON(orders)
}

// HandleGetOrdersByUser lists a user's orders (admin).
func (h *OrderHandler) HandleGetOrdersByUser(c *fiber.Ctx) error {
	orders, err := h.service.GetOrdersByUser(c.Params("userId"))
	if err != nil {
		return respondError(c, err, "Could not retrieve orders")
	}
	return c.JSON(orders)
}

// HandleUpdateOrder updates mutable order fields (admin). Status changes are
// validated against the order state machine.
func (h *OrderHandler) HandleUpdateOrder(c *fiber.Ctx) error {
	var req services.UpdateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing order update body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	order, err := h.service.UpdateOrder(c.Params("id"), req)
	if err != nil {
		return respondError(c, err, "Could not update order")
	}
	return c.JSON(order)
}
