package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/desietsy/desietsy-backend-go/middleware"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/desietsy/desietsy-backend-go/repository"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductStore interface {
	Insert(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	ListApproved(ctx context.Context, approved bool) ([]models.Product, error)
	ListByArtisan(ctx context.Context, artisanID primitive.ObjectID) ([]models.Product, error)
	Update(ctx context.Context, id primitive.ObjectID, upd repository.ProductUpdate) (*models.Product, error)
	SetApproved(ctx context.Context, id primitive.ObjectID, approved bool) (*models.Product, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

type ArtisanDirectory interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindSummaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error)
}

type ProductHandler struct {
	products ProductStore
	users    ArtisanDirectory
}

func NewProductHandler(products ProductStore, users ArtisanDirectory) *ProductHandler {
	return &ProductHandler{products: products, users: users}
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	products, err := h.products.ListApproved(c.Request().Context(), true)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	objID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return badRequest(c, "Invalid product ID")
	}
	product, err := h.products.FindByID(c.Request().Context(), objID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetArtisanProducts(c echo.Context) error {
	artisanID, err := primitive.ObjectIDFromHex(c.Param("artisanId"))
	if err != nil {
		return badRequest(c, "Invalid artisan ID")
	}
	products, err := h.products.ListByArtisan(c.Request().Context(), artisanID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, products)
}

type productWithArtisan struct {
	models.Product
	Artisan *models.UserSummary `json:"artisan,omitempty"`
}

// GetUnapprovedProducts lists listings awaiting review together with their
// artisan's name and email.
func (h *ProductHandler) GetUnapprovedProducts(c echo.Context) error {
	ctx := c.Request().Context()
	products, err := h.products.ListApproved(ctx, false)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}

	ids := make([]primitive.ObjectID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ArtisanID)
	}
	artisans, err := h.users.FindSummaries(ctx, ids)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}

	out := make([]productWithArtisan, len(products))
	for i, p := range products {
		out[i] = productWithArtisan{Product: p}
		if a, ok := artisans[p.ArtisanID]; ok {
			a := a
			out[i].Artisan = &a
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		Image       string  `json:"image"`
		Category    string  `json:"category"`
		ArtisanID   string  `json:"artisanId"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if strings.TrimSpace(req.Title) == "" || req.Price <= 0 {
		return badRequest(c, "Title and a positive price are required")
	}

	ctx := c.Request().Context()
	userID, _ := middleware.CurrentUserID(c)
	artisanID := userID
	if middleware.CurrentRole(c) == models.RoleAdmin && req.ArtisanID != "" {
		id, err := primitive.ObjectIDFromHex(req.ArtisanID)
		if err != nil {
			return badRequest(c, "Invalid artisan ID")
		}
		artisanID = id
	}

	artisan, err := h.users.FindByID(ctx, artisanID)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	if artisan.Role == models.RoleArtisan && !artisan.IsApproved {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Your artisan profile is not approved yet.", "code": "forbidden"})
	}

	product := &models.Product{
		ID:          primitive.NewObjectID(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Price:       req.Price,
		Image:       req.Image,
		Category:    req.Category,
		ArtisanID:   artisanID,
	}
	if err := h.products.Insert(ctx, product); err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(c echo.Context) error {
	objID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return badRequest(c, "Invalid product ID")
	}
	var upd repository.ProductUpdate
	if err := c.Bind(&upd); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if upd.Empty() {
		return badRequest(c, "Nothing to update")
	}
	if upd.Price != nil && *upd.Price <= 0 {
		return badRequest(c, "Price must be positive")
	}

	if ok, err := h.mayEdit(c, objID); !ok {
		return err
	}
	product, err := h.products.Update(c.Request().Context(), objID, upd)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) ApproveProduct(c echo.Context) error {
	objID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return badRequest(c, "Invalid product ID")
	}
	var req struct {
		IsApproved *bool `json:"isApproved"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	approved := true
	if req.IsApproved != nil {
		approved = *req.IsApproved
	}

	product, err := h.products.SetApproved(c.Request().Context(), objID, approved)
	if err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	objID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return badRequest(c, "Invalid product ID")
	}
	if ok, err := h.mayEdit(c, objID); !ok {
		return err
	}
	if err := h.products.Delete(c.Request().Context(), objID); err != nil {
		return respondError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Product deleted"})
}

// mayEdit reports whether the caller owns the listing. When it returns false
// the response has already been written.
func (h *ProductHandler) mayEdit(c echo.Context, id primitive.ObjectID) (bool, error) {
	if middleware.CurrentRole(c) == models.RoleAdmin {
		return true, nil
	}
	product, err := h.products.FindByID(c.Request().Context(), id)
	if err != nil {
		return false, respondError(c, err, http.StatusBadRequest)
	}
	userID, _ := middleware.CurrentUserID(c)
	if product.ArtisanID != userID {
		return false, forbidden(c)
	}
	return true, nil
}
