package middleware

import (
	"net/http"
	"strings"

	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/desietsy/desietsy-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	UserIDKey = "userID"
	RoleKey   = "role"
)

// Auth validates bearer tokens signed with secret.
type Auth struct {
	secret string
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: secret}
}

func (a *Auth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing authorization header"})
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid authorization header format"})
		}

		claims, err := utils.ValidateJWT(tokenParts[1], a.secret)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
		}

		userID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid user ID"})
		}

		c.Set(UserIDKey, userID)
		c.Set(RoleKey, models.Role(claims.Role))
		return next(c)
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := CurrentRole(c)
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Access denied"})
		}
	}
}

func CurrentUserID(c echo.Context) (primitive.ObjectID, bool) {
	id, ok := c.Get(UserIDKey).(primitive.ObjectID)
	return id, ok
}

func CurrentRole(c echo.Context) models.Role {
	role, _ := c.Get(RoleKey).(models.Role)
	return role
}
