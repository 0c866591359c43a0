package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cryptex/internal/models"
	"cryptex/internal/store"
	"cryptex/internal/valuation"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type listBalancesRequest struct {
	FromDate string `json:"from_date" form:"from_date"`
	ToDate   string `json:"to_date" form:"to_date"`
}

type createBalanceRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	UserID *uint            `json:"user_id"`
	CoinID *uint            `json:"coin_id"`
}

type updateBalanceRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	CoinID *uint            `json:"coin_id"`
}

// ListBalances returns the valued balances of the user named by :id, optionally
// limited to a creation date window. Query parameters take precedence over a
// JSON body. Balances whose price is unavailable carry value null and an error.
func (h *Handler) ListBalances(c *gin.Context) {
	userID, ok := idParam(c)
	if !ok {
		return
	}

	var req listBalancesRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		invalidArgument(c, err)
		return
	}

	window, err := parseWindow(req)
	if err != nil {
		invalidArgument(c, err)
		return
	}

	ctx := c.Request.Context()
	balances, err := h.store.ListBalances(ctx, userID, window)
	if err != nil {
		h.internalError(c, "Failed to list balances", err)
		return
	}

	symbols := valuation.Symbols(balances)
	if len(symbols) == 0 {
		c.JSON(http.StatusOK, []valuation.Valued{})
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, h.priceTimeout)
	prices, err := h.prices.GetTickerPrices(lookupCtx, symbols)
	cancel()
	if err != nil {
		h.logger.Warn("Price lookup failed, balances left unvalued",
			zap.Uint("user_id", userID), zap.Strings("symbols", symbols), zap.Error(err))
		h.metrics.PriceLookup("error")
	} else {
		h.metrics.PriceLookup("ok")
	}

	results := valuation.Value(balances, prices)
	if missing := valuation.Missing(results); len(missing) > 0 {
		h.logger.Warn("Prices unavailable", zap.Uint("user_id", userID), zap.Strings("symbols", missing))
	}

	out := make([]valuation.Valued, 0, len(results))
	unvalued := 0
	for _, r := range results {
		if !r.OK() {
			unvalued++
		}
		out = append(out, r.Projection())
	}
	h.metrics.MissingPrices(unvalued)

	c.JSON(http.StatusOK, out)
}

// CreateBalance stores a new balance. It answers 201 with an empty object.
func (h *Handler) CreateBalance(c *gin.Context) {
	var req createBalanceRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Amount == nil || req.UserID == nil || req.CoinID == nil {
		h.logger.Info("Create balance failed, missing arguments")
		missingArguments(c)
		return
	}

	ctx := c.Request.Context()
	if !h.checkBalanceFields(c, *req.Amount, *req.CoinID) {
		return
	}
	if _, err := h.store.GetUser(ctx, *req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			invalidArgument(c, fmt.Errorf("unknown user %d", *req.UserID))
			return
		}
		h.internalError(c, "Failed to get user", err)
		return
	}

	b := &models.Balance{Amount: *req.Amount, UserID: *req.UserID, CoinID: *req.CoinID}
	if err := h.store.CreateBalance(ctx, b); err != nil {
		h.internalError(c, "Failed to create balance", err)
		return
	}

	h.logger.Info("Balance created", zap.Uint("balance_id", b.ID), zap.Uint("user_id", b.UserID))
	c.JSON(http.StatusCreated, gin.H{})
}

// UpdateBalance changes the amount and coin of a balance and returns its
// projection. An unknown id is a 404.
func (h *Handler) UpdateBalance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req updateBalanceRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Amount == nil || req.CoinID == nil {
		missingArguments(c)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetBalance(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "balance not found"})
			return
		}
		h.internalError(c, "Failed to get balance", err)
		return
	}
	if !h.checkBalanceFields(c, *req.Amount, *req.CoinID) {
		return
	}

	b, err := h.store.UpdateBalance(ctx, id, *req.Amount, *req.CoinID)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "balance not found"})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to update balance", err)
		return
	}

	h.logger.Info("Balance updated", zap.Uint("balance_id", b.ID))
	c.JSON(http.StatusOK, b.Projection())
}

// DeleteBalance removes a balance. Unknown ids are a no-op; the answer is
// always 204.
func (h *Handler) DeleteBalance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.store.DeleteBalance(c.Request.Context(), id); err != nil {
		h.internalError(c, "Failed to delete balance", err)
		return
	}

	h.logger.Info("Balance deleted", zap.Uint("balance_id", id))
	c.Status(http.StatusNoContent)
}

func (h *Handler) checkBalanceFields(c *gin.Context, amount decimal.Decimal, coinID uint) bool {
	if err := models.ValidateAmount(amount); err != nil {
		invalidArgument(c, err)
		return false
	}
	if _, err := h.store.GetCoin(c.Request.Context(), coinID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			invalidArgument(c, fmt.Errorf("unknown coin %d", coinID))
			return false
		}
		h.internalError(c, "Failed to get coin", err)
		return false
	}
	return true
}

// parseWindow accepts dates as 2006-01-02 or RFC 3339. A date-only to_date
// covers the whole day.
func parseWindow(req listBalancesRequest) (store.DateRange, error) {
	var r store.DateRange
	if req.FromDate != "" {
		t, _, err := parseDate(req.FromDate)
		if err != nil {
			return r, fmt.Errorf("invalid from_date: %w", err)
		}
		r.From = t
	}
	if req.ToDate != "" {
		t, dateOnly, err := parseDate(req.ToDate)
		if err != nil {
			return r, fmt.Errorf("invalid to_date: %w", err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		r.To = t
	}
	return r, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}
