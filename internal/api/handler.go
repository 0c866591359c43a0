// Package api implements the internal REST layer under /api/v1.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptex/internal/accounts"
	"cryptex/internal/binance"
	"cryptex/internal/metrics"
	"cryptex/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler holds dependencies for the API endpoints.
type Handler struct {
	store     *store.Store
	accounts  *accounts.Service
	prices    binance.PriceSource
	metrics   *metrics.Metrics
	logger    *zap.Logger
	publicURL string

	priceTimeout time.Duration
}

// DefaultPriceTimeout bounds the exchange lookup of one balance listing,
// retries included.
const DefaultPriceTimeout = 3 * time.Second

// Option configures a Handler.
type Option func(*Handler)

// WithPriceTimeout sets the overall deadline of the price lookup made while
// listing balances. When it passes, the balances are returned unvalued.
func WithPriceTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.priceTimeout = d
		}
	}
}

// NewHandler creates a new Handler. publicURL, when set, is the base of the
// Location headers; otherwise the base is taken from each request.
func NewHandler(st *store.Store, acc *accounts.Service, prices binance.PriceSource, m *metrics.Metrics, logger *zap.Logger, publicURL string, opts ...Option) *Handler {
	h := &Handler{
		store:        st,
		accounts:     acc,
		prices:       prices,
		metrics:      m,
		logger:       logger.Named("api"),
		publicURL:    strings.TrimSuffix(publicURL, "/"),
		priceTimeout: DefaultPriceTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the endpoints on rg, which is expected to be /api/v1.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/users/:id", h.GetUser)
	rg.POST("/users", h.SignIn)

	rg.GET("/coins", h.ListCoins)

	rg.GET("/balances/:id", h.ListBalances)
	rg.POST("/balances", h.CreateBalance)
	rg.PUT("/balances/:id", h.UpdateBalance)
	rg.DELETE("/balances/:id", h.DeleteBalance)
}

// UserURL is the canonical URL of a user resource.
func (h *Handler) UserURL(c *gin.Context, id uint) string {
	return fmt.Sprintf("%s/api/v1/users/%d", BaseURL(c, h.publicURL), id)
}

// BaseURL returns publicURL if set, otherwise scheme://host of the request.
func BaseURL(c *gin.Context, publicURL string) string {
	if publicURL != "" {
		return strings.TrimSuffix(publicURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return uint(id), true
}

func missingArguments(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "missing arguments"})
}

func invalidArgument(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

// bindJSON decodes an optional JSON body into dst. An empty body leaves dst
// untouched so that absent fields are reported as missing arguments.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return false
	}
	return true
}
