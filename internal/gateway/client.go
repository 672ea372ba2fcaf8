package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Skotchmaster/coffee_shop/internal/models"
	"github.com/shopspring/decimal"
)

// APIError is the normalized error envelope of the commerce backend. Both
// server-reported failures and transport failures surface as this type, never
// as raw transport errors.
type APIError struct {
	ResultCode string `json:"resultCode"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.ResultCode, e.Msg)
}

const fetchErrorCode = "FETCH_ERROR"

// Credentials carry the caller's session identity to the backend. The backend
// resolves the user from the cookie, the client never sends a user id of its
// own choosing for identity-scoped endpoints.
type Credentials struct {
	AccessToken string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type envelope struct {
	ResultCode string          `json:"resultCode"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, creds Credentials, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return &APIError{ResultCode: fetchErrorCode, Msg: "encode request: " + err.Error()}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return &APIError{ResultCode: fetchErrorCode, Msg: "create request: " + err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if creds.AccessToken != "" {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: creds.AccessToken})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{ResultCode: fetchErrorCode, Msg: "do request: " + err.Error()}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{ResultCode: fetchErrorCode, Msg: "decode response: " + err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{ResultCode: env.ResultCode, Msg: env.Msg}
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &APIError{ResultCode: fetchErrorCode, Msg: "decode payload: " + err.Error()}
		}
	}
	return nil
}

func (c *Client) Products(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := c.do(ctx, http.MethodGet, "/api/v1/products", Credentials{}, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

type CreateOrderRequest struct {
	OrderCount    int             `json:"orderCount"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	PaymentMethod string          `json:"paymentMethod"`
	PaymentStatus string          `json:"paymentStatus"`
	UserID        int64           `json:"userId"`
	Address       string          `json:"address"`
}

func (c *Client) CreateOrder(ctx context.Context, creds Credentials, req CreateOrderRequest) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders", creds, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

type CreateOrderItemRequest struct {
	OrderID   int64           `json:"orderId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	ProductID int64           `json:"productId"`
}

func (c *Client) CreateOrderItem(ctx context.Context, creds Credentials, req CreateOrderItemRequest) (*models.OrderItem, error) {
	var item models.OrderItem
	if err := c.do(ctx, http.MethodPost, "/api/v1/orderItems", creds, req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) MyOrders(ctx context.Context, creds Credentials) ([]models.Order, error) {
	var orders []models.Order
	if err := c.do(ctx, http.MethodGet, "/api/v1/orders/my", creds, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

type UpdateOrderRequest struct {
	Address       string `json:"address,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

func (c *Client) UpdateOrder(ctx context.Context, creds Credentials, orderID int64, req UpdateOrderRequest) (*models.Order, error) {
	var order models.Order
	path := fmt.Sprintf("/api/v1/orders/%d", orderID)
	if err := c.do(ctx, http.MethodPut, path, creds, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) CancelOrder(ctx context.Context, creds Credentials, orderID int64) error {
	path := fmt.Sprintf("/api/v1/orders/%d", orderID)
	return c.do(ctx, http.MethodDelete, path, creds, nil, nil)
}

func (c *Client) WishList(ctx context.Context, creds Credentials) ([]models.WishListEntry, error) {
	var entries []models.WishListEntry
	if err := c.do(ctx, http.MethodGet, "/api/v1/wish-lists", creds, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

type toggleWishListRequest struct {
	ProductID int64 `json:"productId"`
}

func (c *Client) ToggleWishList(ctx context.Context, creds Credentials, productID int64) error {
	return c.do(ctx, http.MethodPost, "/api/v1/wish-lists/toggle", creds, toggleWishListRequest{ProductID: productID}, nil)
}

func (c *Client) DeleteWishList(ctx context.Context, creds Credentials, productID int64) error {
	path := fmt.Sprintf("/api/v1/wish-lists/%d", productID)
	return c.do(ctx, http.MethodDelete, path, creds, nil, nil)
}
