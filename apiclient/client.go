// Package apiclient talks to the marketplace API. It implements the checkout
// ports so a terminal or test client can drive a real server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/desietsy/desietsy-backend-go/checkout"
	"github.com/desietsy/desietsy-backend-go/models"
	"github.com/shopspring/decimal"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// APIError is a non-2xx response. It unwraps to the matching domain error
// so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

func (e *APIError) Unwrap() error {
	if err := models.ErrorFromCode(e.Code); err != nil {
		return err
	}
	switch {
	case e.Status >= 500:
		return models.ErrDependency
	case e.Status == http.StatusNotFound:
		return models.ErrNotFound
	case e.Status == http.StatusConflict:
		return models.ErrConflict
	case e.Status == http.StatusBadRequest:
		return models.ErrValidation
	default:
		return nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", models.ErrDependency, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
			if apiErr.Message == "" {
				apiErr.Message = payload.Message
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login exchanges credentials for a token and remembers it.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &s)
	if err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

func (c *Client) Products(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Product(ctx context.Context, id string) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) BuyerOrders(ctx context.Context, buyerID string) ([]models.OrderView, error) {
	var out []models.OrderView
	if err := c.do(ctx, http.MethodGet, "/api/orders/user/"+buyerID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type orderEnvelope struct {
	Message string        `json:"message"`
	Order   *models.Order `json:"order"`
}

func (c *Client) CancelOrder(ctx context.Context, id string) (*models.Order, error) {
	var out orderEnvelope
	if err := c.do(ctx, http.MethodPut, "/api/orders/"+id+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	return out.Order, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req checkout.OrderRequest) (*models.Order, error) {
	var out orderEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &out); err != nil {
		return nil, err
	}
	if out.Order == nil {
		return nil, fmt.Errorf("%w: order missing from response", models.ErrDependency)
	}
	return out.Order, nil
}

func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal) (*checkout.Intent, error) {
	var out checkout.Intent
	err := c.do(ctx, http.MethodPost, "/api/payment/order", map[string]float64{"amount": amount.InexactFloat64()}, &out)
	if err != nil {
		return nil, err
	}
	if out.GatewayOrderID == "" {
		return nil, fmt.Errorf("%w: gateway order id missing from response", models.ErrDependency)
	}
	return &out, nil
}

func (c *Client) VerifyPayment(ctx context.Context, conf checkout.PaymentConfirmation) error {
	return c.do(ctx, http.MethodPost, "/api/payment/verify", conf, nil)
}

func (c *Client) SendOrderConfirmation(ctx context.Context, conf checkout.Confirmation) error {
	return c.do(ctx, http.MethodPost, "/api/email/order-confirmation", conf, nil)
}

var (
	_ checkout.OrderPlacer    = (*Client)(nil)
	_ checkout.PaymentGateway = (*Client)(nil)
	_ checkout.Notifier       = (*Client)(nil)
)
