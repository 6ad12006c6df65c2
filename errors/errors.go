// Package errors writes the JSON envelope {status, message, data} used by
// every handler and maps failure kinds onto HTTP status codes.
package errors

import (
	"github.com/gofiber/fiber/v2"

	"conference-central/apperrors"
	"conference-central/logging"
)

func RaiseError(context *fiber.Ctx, status int, message string, data string) error {
	return context.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
		"data":    data})
}

func RaisePermissionsError(context *fiber.Ctx, data string) error {
	return RaiseError(context, fiber.StatusUnauthorized, "lack of permissions", data)
}

func RaiseUnauthorizedError(context *fiber.Ctx, data string) error {
	return RaiseError(context, fiber.StatusUnauthorized, "unauthorized", data)
}

func RaiseForbiddenError(context *fiber.Ctx, data string) error {
	return RaiseError(context, fiber.StatusForbidden, "forbidden", data)
}

func RaiseInternalServerError(context *fiber.Ctx, data string) error {
	return RaiseError(context, fiber.StatusInternalServerError, "internal error", data)
}

func RaiseBadRequestError(context *fiber.Ctx, data string) error {
	return RaiseError(context, fiber.StatusBadRequest, "bad request", data)
}

func RaiseNotFoundError(context *fiber.Ctx, data string) error {
	return RaiseError(context, fiber.StatusNotFound, "resource not found", data)
}

func RaiseConflictError(context *fiber.Ctx, data string) error {
	return RaiseError(context, fiber.StatusConflict, "conflict", data)
}

// RaiseFromError reports err according to its kind. Internal failures are
// logged and answered with 500.
func RaiseFromError(context *fiber.Ctx, err error) error {
	reason := apperrors.ReasonOf(err)
	switch apperrors.KindOf(err) {
	case apperrors.Unauthenticated:
		return RaiseUnauthorizedError(context, reason)
	case apperrors.NotFound:
		return RaiseNotFoundError(context, reason)
	case apperrors.Conflict:
		return RaiseConflictError(context, reason)
	case apperrors.InvalidQuery, apperrors.InvalidArgument:
		return RaiseBadRequestError(context, reason)
	default:
		logging.Ctx(context.UserContext()).Error().Err(err).Str("path", context.Path()).Msg("request failed")
		return RaiseInternalServerError(context, reason)
	}
}

// RaiseFromRegistrationError is RaiseFromError for register and unregister,
// where internal failures are answered with 403.
func RaiseFromRegistrationError(context *fiber.Ctx, err error) error {
	switch apperrors.KindOf(err) {
	case apperrors.Internal, apperrors.Contention:
		return RaiseForbiddenError(context, apperrors.ReasonOf(err))
	default:
		return RaiseFromError(context, err)
	}
}

// Success writes the success envelope.
func Success(context *fiber.Ctx, message string, data any) error {
	return context.JSON(fiber.Map{
		"status":  "success",
		"message": message,
		"data":    data})
}
