package api

import (
	"net/http"

	"cryptex/internal/models"

	"github.com/gin-gonic/gin"
)

// ListCoins returns every coin as [{id, abbreviation}].
func (h *Handler) ListCoins(c *gin.Context) {
	coins, err := h.store.ListCoins(c.Request.Context())
	if err != nil {
		h.internalError(c, "Failed to list coins", err)
		return
	}

	out := make([]models.CoinProjection, 0, len(coins))
	for _, coin := range coins {
		out = append(out, coin.Projection())
	}
	c.JSON(http.StatusOK, out)
}
