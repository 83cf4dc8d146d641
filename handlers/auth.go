package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/desietsy/desietsy-backend-go/logging"
	"github.com/desietsy/desietsy-backend-go/middleware"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/desietsy/desietsy-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type AccountStore interface {
	UserFinder
	Insert(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	SetPassword(ctx context.Context, id primitive.ObjectID, hash string) error
	SetResetToken(ctx context.Context, id primitive.ObjectID, token string, expires time.Time) error
}

type ResetMailer interface {
	PasswordReset(ctx context.Context, email, link string, validFor time.Duration) error
}

type AuthHandler struct {
	users        AccountStore
	mailer       ResetMailer
	secret       string
	resetURLBase string
}

func NewAuthHandler(users AccountStore, mailer ResetMailer, secret, resetURLBase string) *AuthHandler {
	return &AuthHandler{
		users:        users,
		mailer:       mailer,
		secret:       secret,
		resetURLBase: strings.TrimRight(resetURLBase, "/"),
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Name     string      `json:"name"`
		Email    string      `json:"email"`
		Password string      `json:"password"`
		Role     models.Role `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		return badRequest(c, "Missing required fields")
	}
	if req.Role == models.RoleAdmin {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Unauthorized to register as admin", "code": "forbidden"})
	}
	if !req.Role.Valid() {
		return badRequest(c, "Invalid role")
	}
	if !isValidEmail(req.Email) {
		return badRequest(c, "Invalid email format")
	}
	if len(req.Password) < utils.MinPasswordLength {
		return badRequest(c, "Password is too short")
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}

	user := &models.User{
		ID:       primitive.NewObjectID(),
		Name:     strings.TrimSpace(req.Name),
		Email:    normalizeEmail(req.Email),
		Password: hashedPassword,
		Role:     req.Role,
		// Artisans wait for an administrator.
		IsApproved: req.Role != models.RoleArtisan,
	}
	if err := h.users.Insert(c.Request().Context(), user); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return badRequest(c, "Email already exists")
		}
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	user, err := h.users.FindByEmail(c.Request().Context(), normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "User not found", "code": "not_found"})
		}
		return respondError(c, err, http.StatusBadRequest)
	}
	if !utils.CheckPassword(user.Password, req.Password) {
		return badRequest(c, "Invalid credentials")
	}

	token, err := utils.GenerateJWT(user.ID.Hex(), string(user.Role), h.secret, utils.AccessTokenTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if len(req.NewPassword) < utils.MinPasswordLength {
		return badRequest(c, "Password is too short")
	}

	userID, _ := middleware.CurrentUserID(c)
	ctx := c.Request().Context()
	user, err := h.users.FindByID(ctx, userID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	if !utils.CheckPassword(user.Password, req.OldPassword) {
		return badRequest(c, "Old password is incorrect")
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	if err := h.users.SetPassword(ctx, user.ID, hashed); err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

const resetSentMessage = "If this email exists, a reset link has been sent."

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	ctx := c.Request().Context()
	user, err := h.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, models.ErrNotFound) {
		return c.JSON(http.StatusOK, map[string]string{"message": resetSentMessage})
	}
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}

	token, err := utils.GenerateResetToken(user.ID.Hex(), h.secret)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	if err := h.users.SetResetToken(ctx, user.ID, token, time.Now().Add(utils.ResetTokenTTL)); err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}

	link := h.resetURLBase + "/reset-password/" + token
	if err := h.mailer.PasswordReset(ctx, user.Email, link, utils.ResetTokenTTL); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Could not send reset link", "code": "dependency"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": resetSentMessage})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if len(req.NewPassword) < utils.MinPasswordLength {
		return badRequest(c, "Password is too short")
	}

	claims, err := utils.ValidateResetToken(req.Token, h.secret)
	if err != nil {
		if utils.IsExpired(err) {
			return badRequest(c, "Reset link has expired")
		}
		return badRequest(c, "Invalid reset link")
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return badRequest(c, "Invalid reset link")
	}

	ctx := c.Request().Context()
	user, err := h.users.FindByID(ctx, userID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	// Each link works once; SetPassword clears the stored token.
	if user.ResetPasswordToken == "" || user.ResetPasswordToken != req.Token {
		return badRequest(c, "Invalid reset link")
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	if err := h.users.SetPassword(ctx, user.ID, hashed); err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	logging.FromContext(ctx).Info("password reset", "user_id", user.ID.Hex())
	return c.JSON(http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
