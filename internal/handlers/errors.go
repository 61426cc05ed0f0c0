package handlers

import (
	"errors"
	"fmt"
	"log"

	"duka/internal/models"
	"duka/pkg/mpesa"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// respondError maps a service error to an HTTP response. Domain errors carry
// their detail to the client; anything unrecognized is logged server-side and
// returned as a generic failure.
func respondError(c *fiber.Ctx, err error, message string) error {
	switch {
	case errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, models.ErrCategoryNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrPaymentNotFound),
		errors.Is(err, models.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": message,
			"error":   err.Error(),
		})
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrInvalidStatusTransition),
		errors.Is(err, models.ErrOrderAlreadyCancelled):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": message,
			"error":   err.Error(),
		})
	case errors.Is(err, models.ErrTotalMismatch),
		errors.Is(err, mpesa.ErrInvalidPhone):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": message,
			"error":   err.Error(),
		})
	case errors.Is(err, models.ErrPaymentInitiationFailed),
		errors.Is(err, mpesa.ErrGatewayRejected),
		errors.Is(err, mpesa.ErrAuthFailed):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": message,
			"error":   err.Error(),
		})
	}

	log.Printf("%s: %v", message, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": message,
	})
}

// respondValidationError turns validator errors into a field-level error map.
// Returns false when err is not a validation error.
func respondValidationError(c *fiber.Ctx, err error) (bool, error) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return false, nil
	}

	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errorMessages,
	})
}
