package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/desietsy/desietsy-backend-go/database"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/desietsy/desietsy-backend-go/utils"
	"github.com/labstack/echo/v4"
)

type OTPStore interface {
	Save(ctx context.Context, email, code string) error
	Find(ctx context.Context, email string) (*models.EmailOTP, error)
	Delete(ctx context.Context, email string) error
}

type OTPMailer interface {
	OTP(ctx context.Context, email, code string, validFor time.Duration) error
}

type OTPHandler struct {
	users  UserFinder
	otps   OTPStore
	mailer OTPMailer
}

func NewOTPHandler(users UserFinder, otps OTPStore, mailer OTPMailer) *OTPHandler {
	return &OTPHandler{users: users, otps: otps, mailer: mailer}
}

func (h *OTPHandler) SendEmailOTP(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || !isValidEmail(req.Email) {
		return badRequest(c, "Invalid email format")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ctx := c.Request().Context()

	if _, err := h.users.FindByEmail(ctx, email); err == nil {
		return badRequest(c, "Email already exists")
	} else if !errors.Is(err, models.ErrNotFound) {
		return respondError(c, err, http.StatusBadRequest)
	}

	code, err := utils.GenerateOTP()
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	if err := h.mailer.OTP(ctx, email, code, database.OTPLifetime); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to send OTP. Check email settings.", "code": "dependency"})
	}
	if err := h.otps.Save(ctx, email, code); err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "OTP sent successfully"})
}

func (h *OTPHandler) VerifyEmailOTP(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	ctx := c.Request().Context()

	stored, err := h.otps.Find(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"verified": false, "message": "OTP expired or not sent"})
	}
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	if stored.Code != strings.TrimSpace(req.OTP) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"verified": false, "message": "Invalid OTP"})
	}
	if err := h.otps.Delete(ctx, email); err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, map[string]bool{"verified": true})
}
