// Package apiclient calls the REST layer over HTTP on behalf of the web pages.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cryptex/internal/models"
	"cryptex/internal/valuation"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized is returned by SignIn when the password does not match.
	ErrUnauthorized = errors.New("wrong credentials")
	// ErrUserNotFound is returned by GetUser when the URL names no user.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotFound is returned when a balance to update does not exist.
	ErrNotFound = errors.New("not found")
)

// StatusError is an unexpected answer from the REST layer.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Client is a REST layer client bound to one base URL.
type Client struct {
	http   *resty.Client
	base   string
	logger *zap.Logger
}

// New creates a client for the REST layer at base (scheme://host). Each call is
// bounded by timeout.
func New(base string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		http:   resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
		base:   strings.TrimSuffix(base, "/"),
		logger: logger.Named("apiclient"),
	}
}

// BaseURL is the base the client talks to.
func (c *Client) BaseURL() string {
	return c.base
}

// SignInResult is a successful answer of POST /api/v1/users.
type SignInResult struct {
	Created  bool
	Location string
}

// SignIn posts credentials to the user resource. It returns ErrUnauthorized for
// a wrong password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		Post(c.base + "/api/v1/users")
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return &SignInResult{
			Created:  resp.StatusCode() == http.StatusCreated,
			Location: resp.Header().Get("Location"),
		}, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, statusError(resp)
	}
}

// GetUser fetches the user projection at an absolute user URL.
func (c *Client) GetUser(ctx context.Context, url string) (*models.UserProjection, error) {
	var body struct {
		User models.UserProjection `json:"user"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(resp)
	}
	if body.User.ID == 0 {
		return nil, ErrUserNotFound
	}
	return &body.User, nil
}

// ListCoins fetches all coins.
func (c *Client) ListCoins(ctx context.Context) ([]models.CoinProjection, error) {
	var coins []models.CoinProjection
	resp, err := c.http.R().SetContext(ctx).SetResult(&coins).Get(c.base + "/api/v1/coins")
	if err != nil {
		return nil, fmt.Errorf("failed to list coins: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(resp)
	}
	return coins, nil
}

// ListBalances fetches the valued balances of a user.
func (c *Client) ListBalances(ctx context.Context, userID uint) ([]valuation.Valued, error) {
	var balances []valuation.Valued
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&balances).
		Get(fmt.Sprintf("%s/api/v1/balances/%d", c.base, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(resp)
	}
	return balances, nil
}

// CreateBalance adds a balance for a user. amount is a decimal string.
func (c *Client) CreateBalance(ctx context.Context, userID, coinID uint, amount string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"user_id": userID, "coin_id": coinID, "amount": amount}).
		Post(c.base + "/api/v1/balances")
	if err != nil {
		return fmt.Errorf("failed to create balance: %w", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		return statusError(resp)
	}
	return nil
}

// UpdateBalance changes the amount and coin of a balance.
func (c *Client) UpdateBalance(ctx context.Context, id, coinID uint, amount string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"coin_id": coinID, "amount": amount}).
		Put(fmt.Sprintf("%s/api/v1/balances/%d", c.base, id))
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return statusError(resp)
	}
}

// DeleteBalance removes a balance.
func (c *Client) DeleteBalance(ctx context.Context, id uint) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("%s/api/v1/balances/%d", c.base, id))
	if err != nil {
		return fmt.Errorf("failed to delete balance: %w", err)
	}
	if resp.StatusCode() != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}

func statusError(resp *resty.Response) error {
	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL,
		Code:   resp.StatusCode(),
		Body:   resp.String(),
	}
}
