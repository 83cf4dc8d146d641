package handlers

import (
	"context"
	"net/http"

	"github.com/desietsy/desietsy-backend-go/notify"
	"github.com/labstack/echo/v4"
)

type ConfirmationMailer interface {
	OrderConfirmation(ctx context.Context, c notify.OrderConfirmation) error
}

type EmailHandler struct {
	mailer ConfirmationMailer
}

func NewEmailHandler(m ConfirmationMailer) *EmailHandler {
	return &EmailHandler{mailer: m}
}

func (h *EmailHandler) SendOrderConfirmation(c echo.Context) error {
	var req notify.OrderConfirmation
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if err := h.mailer.OrderConfirmation(c.Request().Context(), req); err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Order confirmation email sent."})
}
