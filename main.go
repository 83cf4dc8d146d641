package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desietsy/desietsy-backend-go/config"
	"github.com/desietsy/desietsy-backend-go/database"
	"github.com/desietsy/desietsy-backend-go/events"
	"github.com/desietsy/desietsy-backend-go/handlers"
	"github.com/desietsy/desietsy-backend-go/ledger"
	"github.com/desietsy/desietsy-backend-go/logging"
	"github.com/desietsy/desietsy-backend-go/metrics"
	customMiddleware "github.com/desietsy/desietsy-backend-go/middleware"
	"github.com/desietsy/desietsy-backend-go/notify"
	"github.com/desietsy/desietsy-backend-go/payment"
	"github.com/desietsy/desietsy-backend-go/repository"
	"github.com/desietsy/desietsy-backend-go/routes"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	// Load environment variables
	config.LoadEnv()
	cfg := config.Load()

	log := logging.New("desietsy-api", cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := ledger.ParsePolicy(cfg.OrderStatusPolicy)
	if err != nil {
		log.Error("invalid ORDER_STATUS_POLICY", "error", err)
		os.Exit(1)
	}

	// Connect to MongoDB
	client, db, err := database.ConnectDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()
	if err := database.EnsureIndexes(ctx, db); err != nil {
		log.Error("failed to create indexes", "error", err)
		os.Exit(1)
	}

	users := repository.NewUserRepository(db)
	products := repository.NewProductRepository(db)
	orders := repository.NewOrderRepository(db)
	intents := repository.NewPaymentRepository(db)
	otps := repository.NewOTPRepository(db)

	m := metrics.New()
	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
	if c, ok := publisher.(io.Closer); ok {
		defer c.Close()
	}

	payments := payment.NewService(
		payment.NewRazorpayClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret),
		intents,
		payment.Config{KeySecret: cfg.RazorpayKeySecret, Currency: cfg.PaymentCurrency, IntentTTL: cfg.IntentTTL},
		m,
	)
	reconciler := payment.NewReconciler(intents, orders, publisher, m, log, cfg.ReconcileGrace)
	go reconciler.Run(ctx, cfg.ReconcileInterval)

	var transport notify.Transport = notify.LogTransport{Log: log}
	if cfg.MailUser != "" {
		transport = notify.NewSMTPTransport(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPass)
	} else {
		log.Warn("MAIL_USER not set, emails will only be logged")
	}
	sender := notify.NewSender(transport, m)

	orderLedger := ledger.New(orders, products, users,
		ledger.WithPayments(payments),
		ledger.WithPublisher(publisher),
		ledger.WithMetrics(m),
		ledger.WithPolicy(policy),
	)

	secret := string(cfg.JWTSecret)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	e.Use(m.Middleware())
	e.Use(customMiddleware.RequestLogger(log))

	routes.SetupRoutes(e, routes.Handlers{
		Auth:     handlers.NewAuthHandler(users, sender, secret, cfg.ResetURLBase),
		OTP:      handlers.NewOTPHandler(users, otps, sender),
		Users:    handlers.NewUserHandler(users),
		Products: handlers.NewProductHandler(products, users),
		Orders:   handlers.NewOrderHandler(orderLedger),
		Payment:  handlers.NewPaymentHandler(payments, cfg.RazorpayKeyID),
		Email:    handlers.NewEmailHandler(sender),
	}, customMiddleware.NewAuth(secret), m.Handler())

	go func() {
		log.Info("server starting", "port", cfg.Port, "policy", policy.String())
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
