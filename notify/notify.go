// Package notify sends transactional mail. Delivery is best effort; callers
// decide whether a failure matters.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/desietsy/desietsy-backend-go/logging"
	"github.com/desietsy/desietsy-backend-go/metrics"
	"github.com/desietsy/desietsy-backend-go/models"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPTransport struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPTransport(host string, port int, user, pass string) *SMTPTransport {
	return &SMTPTransport{
		dialer: gomail.NewDialer(host, port, user, pass),
		from:   user,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return t.dialer.DialAndSend(m)
}

// LogTransport writes mail to the log instead of sending it. Used when no
// SMTP host is configured.
type LogTransport struct {
	Log *slog.Logger
}

func (t LogTransport) Send(_ context.Context, msg Message) error {
	t.Log.Info("mail not sent, no smtp configured", "to", msg.To, "subject", msg.Subject)
	return nil
}

type Item struct {
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type OrderConfirmation struct {
	OrderID       string  `json:"orderId"`
	CustomerEmail string  `json:"customerEmail"`
	CustomerName  string  `json:"customerName"`
	Items         []Item  `json:"items"`
	TotalAmount   float64 `json:"totalAmount"`
	PaymentMethod string  `json:"paymentMethod"`
}

func (c OrderConfirmation) Validate() error {
	if strings.TrimSpace(c.CustomerEmail) == "" || strings.TrimSpace(c.OrderID) == "" {
		return fmt.Errorf("%w: orderId and customerEmail are required", models.ErrValidation)
	}
	return nil
}

type Sender struct {
	transport Transport
	metrics   *metrics.Metrics
}

func NewSender(t Transport, m *metrics.Metrics) *Sender {
	return &Sender{transport: t, metrics: m}
}

func (s *Sender) OrderConfirmation(ctx context.Context, c OrderConfirmation) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.PaymentMethod == "" {
		c.PaymentMethod = "Razorpay (Online)"
	}
	body, err := render("order_confirmation", c)
	if err != nil {
		return fmt.Errorf("render order confirmation: %w", err)
	}
	return s.send(ctx, "order_confirmation", Message{
		To:      c.CustomerEmail,
		Subject: "Order Confirmation - Desi-Etsy",
		HTML:    body,
	})
}

func (s *Sender) OTP(ctx context.Context, email, code string, validFor time.Duration) error {
	body, err := render("otp", struct {
		Code    string
		Minutes int
	}{code, int(validFor.Minutes())})
	if err != nil {
		return fmt.Errorf("render otp: %w", err)
	}
	return s.send(ctx, "otp", Message{To: email, Subject: "OTP Verification - Desi-Etsy", HTML: body})
}

func (s *Sender) PasswordReset(ctx context.Context, email, link string, validFor time.Duration) error {
	body, err := render("password_reset", struct {
		Link    string
		Minutes int
	}{link, int(validFor.Minutes())})
	if err != nil {
		return fmt.Errorf("render password reset: %w", err)
	}
	return s.send(ctx, "password_reset", Message{To: email, Subject: "Desi-Etsy Password Reset", HTML: body})
}

func (s *Sender) send(ctx context.Context, kind string, msg Message) error {
	err := s.transport.Send(ctx, msg)
	s.metrics.EmailSent(kind, err)
	if err != nil {
		logging.FromContext(ctx).Error("send mail", "kind", kind, "to", msg.To, "error", err)
		return fmt.Errorf("%w: send %s mail: %v", models.ErrDependency, kind, err)
	}
	return nil
}
