package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, internal_error, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

// errInternal returns a 500 error with a generic message; the cause goes to
// the log only.
func errInternal(c *fiber.Ctx, cause error) error {
	LoggerFromCtx(c.UserContext()).Error("request failed",
		"method", c.Method(),
		"path", c.Path(),
		"error", cause,
	)
	return newError(c, fiber.StatusInternalServerError, "internal_error", "internal server error")
}

// respondError maps domain errors onto API errors.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case domain.IsValidation(err):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, "not found")
	default:
		return errInternal(c, err)
	}
}

// fiberErrorHandler renders errors returned from handlers and middleware
// (timeouts, body limits, unknown routes) as APIError envelopes.
func fiberErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		slog.Error("unhandled error", "path", c.Path(), "error", err)
		return newError(c, code, "internal_error", "internal server error")
	}
	return newError(c, code, errorCode(code), err.Error())
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusRequestTimeout:
		return "timeout"
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	case fiber.StatusUpgradeRequired:
		return "upgrade_required"
	default:
		return "error"
	}
}
