package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"metarepo/internal/http/middleware"
	"metarepo/internal/model"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "VALIDATION_FAILED", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// serviceErrors maps service error kinds to responses. Messages of client
// errors are safe to echo: they name fields and documents, never internals.
var serviceErrors = []struct {
	kind   error
	status int
	code   string
	echo   bool
}{
	{model.ErrValidation, fiber.StatusBadRequest, "VALIDATION_FAILED", true},
	{model.ErrUnresolvedType, fiber.StatusBadRequest, "UNKNOWN_CLASS", true},
	{model.ErrAuthorization, fiber.StatusForbidden, "FORBIDDEN", true},
	{model.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND", false},
	{model.ErrConflict, fiber.StatusConflict, "CONFLICT", true},
	{model.ErrStorage, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", false},
}

// writeServiceError translates an error returned by the document service.
func writeServiceError(c *fiber.Ctx, err error) error {
	for _, e := range serviceErrors {
		if !errors.Is(err, e.kind) {
			continue
		}
		msg := e.kind.Error()
		if e.echo {
			msg = err.Error()
		}
		return writeError(c, e.status, e.code, msg)
	}
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusUnauthorized:
			return writeError(c, status, "UNAUTHORIZED", err.Error())
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusServiceUnavailable:
			return writeError(c, status, "SERVICE_UNAVAILABLE", "dependency unavailable")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
