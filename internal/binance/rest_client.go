package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"cryptex/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL    = "https://api.binance.com/api/v3"
	maxRetries = 3
)

// PriceSource looks up current prices for exchange ticker symbols.
type PriceSource interface {
	GetTickerPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// RestClient is a client for the public Binance market data API.
type RestClient struct {
	client    *resty.Client
	logger    *zap.Logger
	limiter   *rate.Limiter
	retryBase time.Duration
}

// ensure RestClient implements the interface
var _ PriceSource = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client. Every call is bounded by
// cfg.Timeout.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	if url == "" {
		url = baseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &RestClient{
		client:    resty.New().SetBaseURL(url).SetTimeout(timeout),
		logger:    logger.Named("binance"),
		limiter:   rate.NewLimiter(limit, burst),
		retryBase: time.Second,
	}
}

// APIError is a non-retryable error answer from Binance.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: status %d, code %d: %s", e.StatusCode, e.Code, e.Msg)
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetContext(ctx).
		SetResult(&ServerTimeResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// GetTickerPrices fetches the latest price of each symbol in one batched call.
// Symbols the exchange does not know are absent from the result. When Binance
// rejects the whole batch because of an unknown symbol, the symbols are looked
// up one by one instead.
func (c *RestClient) GetTickerPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	encoded, err := json.Marshal(sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to encode symbols: %w", err)
	}

	var prices []TickerPrice
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbols", string(encoded)).
		SetResult(&prices)

	_, err = c.doRequest(ctx, http.MethodGet, "/ticker/price", req)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest && len(sorted) > 1 {
		c.logger.Warn("Batched price lookup rejected, falling back to single lookups",
			zap.Strings("symbols", sorted), zap.Error(err))
		return c.getTickerPricesOneByOne(ctx, sorted)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker prices: %w", err)
	}

	priceMap := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		priceMap[p.Symbol] = p.Price
	}
	return priceMap, nil
}

func (c *RestClient) getTickerPricesOneByOne(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	priceMap := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		var price TickerPrice
		req := c.client.R().
			SetContext(ctx).
			SetQueryParam("symbol", symbol).
			SetResult(&price)

		_, err := c.doRequest(ctx, http.MethodGet, "/ticker/price", req)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.logger.Warn("Unknown ticker symbol", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get ticker price for %s: %w", symbol, err)
		}
		priceMap[price.Symbol] = price.Price
	}
	return priceMap, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
			err = fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		} else if ctx.Err() == nil { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			if resp != nil && resp.IsError() {
				return nil, newAPIError(resp)
			}
			return nil, err
		}

		if i == maxRetries-1 {
			break
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.retryBase
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

func newAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if jsonErr := json.Unmarshal(resp.Body(), apiErr); jsonErr != nil || apiErr.Msg == "" {
		apiErr.Msg = resp.String()
	}
	return apiErr
}
