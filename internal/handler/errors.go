package handler

import (
	"errors"

	"go-customs-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
)

// respondError maps service errors onto HTTP statuses. Unknown errors are
// reported without their message.
func respondError(c *fiber.Ctx, err error) error {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed.",
			"errors":  verr.Fields,
		})
	}

	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		return c.Status(status).JSON(fiber.Map{"error": "Internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrProductNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrSourceNotFound),
		errors.Is(err, service.ErrInvalidSource),
		errors.Is(err, service.ErrQuantityMismatch),
		errors.Is(err, service.ErrPackageQuantityMismatch),
		errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrInsufficientPackageBalance):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSourceInUse):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusInternalServerError
	}
}

// Helper untuk ambil operator dari JWT context (set by auth middleware)
func getUsername(c *fiber.Ctx) string {
	username, ok := c.Locals("username").(string)
	if !ok || username == "" {
		return "system"
	}
	return username
}
