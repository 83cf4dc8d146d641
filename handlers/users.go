package handlers

import (
	"context"
	"net/http"

	"github.com/desietsy/desietsy-backend-go/middleware"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserDirectory interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	ListUnapprovedArtisans(ctx context.Context) ([]models.User, error)
	Approve(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// UserHandler serves the signed-in profile and the admin approval queue.
type UserHandler struct {
	users UserDirectory
}

func NewUserHandler(users UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

// GetUserProfile retrieves the caller's profile
func (h *UserHandler) GetUserProfile(c echo.Context) error {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	user, err := h.users.FindByID(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) GetUnapprovedArtisans(c echo.Context) error {
	artisans, err := h.users.ListUnapprovedArtisans(c.Request().Context())
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, artisans)
}

func (h *UserHandler) ApproveArtisan(c echo.Context) error {
	objID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}

	user, err := h.users.Approve(c.Request().Context(), objID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, user)
}

// RejectArtisan removes the account. Only artisans can be rejected.
func (h *UserHandler) RejectArtisan(c echo.Context) error {
	objID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}

	ctx := c.Request().Context()
	user, err := h.users.FindByID(ctx, objID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	if user.Role != models.RoleArtisan {
		return badRequest(c, "User is not an artisan")
	}
	if err := h.users.Delete(ctx, objID); err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Artisan rejected and removed"})
}
