package api

import (
	"errors"
	"net/http"

	"cryptex/internal/accounts"
	"cryptex/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type signInRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// GetUser returns {"user": projection}, or {"user": {}} for an unknown id.
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	u, err := h.store.GetUser(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"user": gin.H{}})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to get user", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": u.Projection()})
}

// SignIn logs in an existing email or registers a new one. 200 means the
// password matched an existing user, 201 that a user was created; both carry a
// Location header with the user's URL.
func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Email == nil || req.Password == nil || *req.Email == "" || *req.Password == "" {
		h.logger.Info("Sign in failed, missing arguments")
		missingArguments(c)
		return
	}

	l := h.logger.With(zap.String("email", *req.Email))
	l.Info("Sign in request")

	outcome, u, err := h.accounts.SignIn(c.Request.Context(), *req.Email, *req.Password)
	if errors.Is(err, accounts.ErrMissingArgument) {
		missingArguments(c)
		return
	}
	if err != nil {
		h.internalError(c, "Failed to sign in", err)
		return
	}

	switch outcome {
	case accounts.OutcomeWrongPassword:
		l.Info("Sign in failed, wrong password")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	case accounts.OutcomeCreated:
		c.Header("Location", h.UserURL(c, u.ID))
		c.JSON(http.StatusCreated, gin.H{"email": u.Email})
	default:
		c.Header("Location", h.UserURL(c, u.ID))
		c.JSON(http.StatusOK, gin.H{"email": u.Email})
	}
	l.Info("Sign in succeeded", zap.Stringer("outcome", outcome), zap.Uint("user_id", u.ID))
}
