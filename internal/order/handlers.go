package order

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/electrovision/storefront/internal/auth"
)

type Handlers struct {
	repo Repository
}

func NewHandlers(repo Repository) *Handlers { return &Handlers{repo: repo} }

func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.GET("/orders", h.listForUser)
}

// listForUser returns the caller's order history with items and product
// details.
func (h *Handlers) listForUser(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated or user data is missing."})
		return
	}

	orders, err := h.repo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("listing orders failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred."})
		return
	}
	c.JSON(http.StatusOK, orders)
}
