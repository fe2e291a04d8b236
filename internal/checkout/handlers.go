package checkout

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/electrovision/storefront/internal/auth"
	"github.com/electrovision/storefront/internal/cart"
	"github.com/electrovision/storefront/internal/catalog"
)

type Handlers struct {
	initiator *Initiator
}

func NewHandlers(initiator *Initiator) *Handlers { return &Handlers{initiator: initiator} }

func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.POST("/checkout/create-session", h.createSession)
	rg.POST("/checkout/create-cart-session", h.createCartSession)
}

type createSessionRequest struct {
	ProductID int64 `json:"productId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

func (h *Handlers) createSession(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User is not authenticated."})
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "A valid product ID and positive quantity are required."})
		return
	}

	url, err := h.initiator.SingleProductSession(c.Request.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Checkout session created successfully.",
		"url":     url,
	})
}

type createCartSessionRequest struct {
	CartItemIDs []int64 `json:"cartItemIds" binding:"required,min=1"`
}

func (h *Handlers) createCartSession(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User is not authenticated."})
		return
	}

	var req createCartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "A non-empty cartItemIds array is required."})
		return
	}

	url, err := h.initiator.CartSession(c.Request.Context(), userID, req.CartItemIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Checkout session created successfully.",
		"url":     url,
	})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Product not found."})
	case errors.Is(err, cart.ErrCartNotFound), errors.Is(err, ErrNoItemsSelected):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No cart items found."})
	case errors.Is(err, ErrInsufficientStock):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Not enough items in stock."})
	case errors.Is(err, ErrNotOwnedItem):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Selected cart item is not from your cart."})
	default:
		log.Error().Err(err).Msg("stripe session creation error")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create checkout session."})
	}
}
