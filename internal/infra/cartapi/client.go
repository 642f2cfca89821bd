package cartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	domcart "example.com/cartsync/internal/domain/cart"
)

const maxErrorBody = 4 << 10

type Config struct {
	BaseURL string
	Timeout time.Duration

	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
}

// StatusError is a non-2xx answer from the cart backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cart api %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("cart api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the cart REST backend. Every call goes through a circuit
// breaker; authorization failures and other 4xx answers do not trip it.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.5
	}

	st := gobreaker.Settings{
		Name:        "CartAPI",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= minRequests && float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: isBreakerSuccess,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		cb:      gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

type productDTO struct {
	ID    string  `json:"_id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

type lineItemDTO struct {
	ID       string     `json:"_id"`
	Product  productDTO `json:"productId"`
	Quantity int64      `json:"quantity"`
}

type cartResponse struct {
	Items []lineItemDTO `json:"items"`
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type addToCartResponse struct {
	Item *struct {
		ID string `json:"_id"`
	} `json:"item"`
}

type updateCartRequest struct {
	Quantity int64 `json:"quantity"`
}

type catalogProductDTO struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (c *Client) FetchCart(ctx context.Context, token string) ([]domcart.LineItem, error) {
	var resp cartResponse
	if err := c.do(ctx, http.MethodGet, "/getCart", token, nil, &resp); err != nil {
		return nil, err
	}

	items := make([]domcart.LineItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, domcart.LineItem{
			ID: it.ID,
			Product: domcart.ProductRef{
				ID:    it.Product.ID,
				Title: it.Product.Title,
				Price: it.Product.Price,
				Image: it.Product.Image,
			},
			Quantity: it.Quantity,
		})
	}
	return items, nil
}

func (c *Client) CreateItem(ctx context.Context, token string, productID string, quantity int64) (string, error) {
	var resp addToCartResponse
	body := addToCartRequest{ProductID: productID, Quantity: quantity}
	if err := c.do(ctx, http.MethodPost, "/addToCart", token, body, &resp); err != nil {
		return "", err
	}
	if resp.Item == nil {
		return "", nil
	}
	return resp.Item.ID, nil
}

func (c *Client) SetQuantity(ctx context.Context, token string, productID string, quantity int64) error {
	path := "/updateCart/" + url.PathEscape(productID)
	return c.do(ctx, http.MethodPut, path, token, updateCartRequest{Quantity: quantity}, nil)
}

func (c *Client) DeleteItem(ctx context.Context, token string, lineItemID string) error {
	path := "/deletedProduct/" + url.PathEscape(lineItemID)
	return c.do(ctx, http.MethodDelete, path, token, nil, nil)
}

// Product looks up a storefront product and returns the snapshot a cart line
// keeps.
func (c *Client) Product(ctx context.Context, productID string) (domcart.ProductRef, error) {
	var resp catalogProductDTO
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(productID), "", nil, &resp); err != nil {
		return domcart.ProductRef{}, err
	}
	return domcart.ProductRef{
		ID:    strconv.FormatInt(resp.ID, 10),
		Title: resp.Name,
		Price: resp.Price,
		Image: resp.Image,
	}, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	body := loginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("cart api: login response has no token")
	}
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, token, body, out)
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cart api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("cart api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %w", domcart.ErrUnauthenticated, statusErr)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < http.StatusInternalServerError
	}
	return false
}
