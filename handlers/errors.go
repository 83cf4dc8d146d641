package handlers

import (
	"errors"
	"net/http"

	"github.com/desietsy/desietsy-backend-go/logging"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/labstack/echo/v4"
)

// errorStatus maps a domain error to an HTTP status. Invalid state is a 400
// on some routes and a 409 on others, so the caller picks it.
func errorStatus(err error, invalidState int) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidState):
		return invalidState
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error, invalidState int) error {
	status := errorStatus(err, invalidState)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("request failed", "error", err)
		msg = "Internal server error"
	}
	return c.JSON(status, map[string]string{"error": msg, "code": models.ErrorCode(err)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg, "code": "validation"})
}

func forbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, map[string]string{"error": "Access denied", "code": "forbidden"})
}
