package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/models"
	"github.com/soltixdb/forecaster/internal/services"
)

// StatusForCode maps a service error code to its HTTP status.
func StatusForCode(code string) int {
	switch code {
	case services.CodeInvalidRequest:
		return fiber.StatusBadRequest
	case services.CodeUploadNotFound, services.CodeJobNotFound, services.CodeFileNotFound:
		return fiber.StatusNotFound
	case services.CodeResultNotReady:
		return fiber.StatusConflict
	case services.CodeQueueUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// StatusForError returns the HTTP status an error is rendered with.
func StatusForError(err error) int {
	var se *services.ServiceError
	var fe *fiber.Error
	switch {
	case errors.As(err, &se):
		return StatusForCode(se.Code)
	case errors.As(err, &fe):
		return fe.Code
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders handler errors as models.ErrorResponse. Service
// errors keep their code and details; anything unrecognised becomes a 500
// whose message does not leak internals.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusForError(err)
		detail := models.ErrorDetail{
			Code:    services.CodeInternal,
			Message: "Internal Server Error",
			Path:    c.Path(),
		}

		var se *services.ServiceError
		var fe *fiber.Error
		if errors.As(err, &se) {
			detail.Code = se.Code
			detail.Message = se.Message
			detail.Details = se.Details
		} else if errors.As(err, &fe) {
			detail.Code = codeForStatus(fe.Code)
			detail.Message = fe.Message
		}

		fields := []interface{}{
			"path", c.Path(),
			"method", c.Method(),
			"status", status,
			"error", err,
		}
		if status >= fiber.StatusInternalServerError {
			logger.WithContext(c.UserContext()).Error("Request error", fields...)
		} else {
			logger.WithContext(c.UserContext()).Debug("Request rejected", fields...)
		}

		return c.Status(status).JSON(models.ErrorResponse{Error: detail})
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		if status >= fiber.StatusInternalServerError {
			return services.CodeInternal
		}
		return "ERROR"
	}
}
