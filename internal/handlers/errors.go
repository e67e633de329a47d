package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/ats-analyzer/internal/repositories"
	"alfredoptarigan/ats-analyzer/internal/services"
)

// StatusFor maps an error from the services layer to an HTTP status code.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrInvalidFilename),
		errors.Is(err, services.ErrEngineRejected):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrReportNotFound),
		errors.Is(err, repositories.ErrAnalysisNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrTimeout):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders every error returned by a handler as {error, code}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := StatusFor(err)

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
