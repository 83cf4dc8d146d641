package routes

import (
	"net/http"

	"github.com/desietsy/desietsy-backend-go/handlers"
	customMiddleware "github.com/desietsy/desietsy-backend-go/middleware"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	OTP      *handlers.OTPHandler
	Users    *handlers.UserHandler
	Products *handlers.ProductHandler
	Orders   *handlers.OrderHandler
	Payment  *handlers.PaymentHandler
	Email    *handlers.EmailHandler
}

func SetupRoutes(e *echo.Echo, h Handlers, auth *customMiddleware.Auth, metrics http.Handler) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	api := e.Group("/api")
	signedIn := auth.RequireAuth
	admin := customMiddleware.RequireRole(models.RoleAdmin)

	// Auth routes
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)
	api.PUT("/auth/update-password", h.Auth.UpdatePassword, signedIn)
	api.POST("/auth/forgot-password", h.Auth.ForgotPassword)
	api.POST("/auth/reset-password", h.Auth.ResetPassword)

	api.POST("/otp/send-email-otp", h.OTP.SendEmailOTP)
	api.POST("/otp/verify-email-otp", h.OTP.VerifyEmailOTP)

	api.GET("/users/me", h.Users.GetUserProfile, signedIn)

	adminGroup := api.Group("/admin", signedIn, admin)
	adminGroup.GET("/unapproved-artisans", h.Users.GetUnapprovedArtisans)
	adminGroup.PATCH("/approve-artisan/:id", h.Users.ApproveArtisan)
	adminGroup.DELETE("/reject-artisan/:id", h.Users.RejectArtisan)

	// Product routes
	sellers := customMiddleware.RequireRole(models.RoleArtisan, models.RoleAdmin)
	api.GET("/products", h.Products.GetProducts)
	api.GET("/products/unapproved", h.Products.GetUnapprovedProducts, signedIn, admin)
	api.GET("/products/artisan/:artisanId", h.Products.GetArtisanProducts)
	api.GET("/products/:id", h.Products.GetProduct)
	api.POST("/products", h.Products.CreateProduct, signedIn, sellers)
	api.PUT("/products/:id", h.Products.UpdateProduct, signedIn, sellers)
	api.PATCH("/products/approve/:id", h.Products.ApproveProduct, signedIn, admin)
	api.DELETE("/products/:id", h.Products.DeleteProduct, signedIn, sellers)

	// Order routes
	orders := api.Group("/orders", signedIn)
	orders.POST("", h.Orders.CreateOrder)
	orders.GET("/user/:buyerId", h.Orders.GetBuyerOrders)
	orders.GET("/seller/:sellerId", h.Orders.GetSellerOrders)
	orders.GET("/artisan/:sellerId", h.Orders.GetSellerOrders)
	orders.GET("/:id", h.Orders.GetOrder)
	orders.PUT("/:id/status", h.Orders.UpdateOrderStatus)
	orders.PUT("/:id/cancel", h.Orders.CancelOrder)

	api.POST("/payment/order", h.Payment.CreatePaymentOrder, signedIn)
	api.POST("/payment/verify", h.Payment.VerifyPayment, signedIn)

	api.POST("/email/order-confirmation", h.Email.SendOrderConfirmation, signedIn)
}
