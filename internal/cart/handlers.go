package cart

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/electrovision/storefront/internal/auth"
	"github.com/electrovision/storefront/internal/catalog"
)

var ErrInsufficientStock = errors.New("not enough items in stock")

type Handlers struct {
	carts    Repository
	products catalog.Repository
}

func NewHandlers(carts Repository, products catalog.Repository) *Handlers {
	return &Handlers{carts: carts, products: products}
}

func (h *Handlers) Register(rg *gin.RouterGroup) {
	rg.POST("/cart/add", h.addToCart)
	rg.GET("/cart", h.getItems)
	rg.PATCH("/cart/item/:itemId", h.updateItemQuantity)
	rg.DELETE("/cart/item/:itemId", h.removeItem)
}

type addToCartRequest struct {
	ProductID int64 `json:"productId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

func (h *Handlers) addToCart(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User is not authenticated."})
		return
	}

	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "A valid product ID and positive quantity are required."})
		return
	}

	ctx := c.Request.Context()
	product, err := h.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Product not found."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "An internal server error occurred."})
		return
	}

	userCart, err := h.carts.GetByUserID(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		userCart, err = h.carts.Create(ctx, userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "An internal server error occurred."})
		return
	}

	// Merge into an existing line for the same product, otherwise add a
	// new one. Either way the resulting quantity must fit the stock.
	item, err := h.carts.GetItem(ctx, userCart.ID, product.ID)
	switch {
	case err == nil:
		newQuantity := item.Quantity + req.Quantity
		if newQuantity > product.Stock {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": ErrInsufficientStock.Error()})
			return
		}
		item, err = h.carts.UpdateItemQuantity(ctx, item.ID, newQuantity)
	case errors.Is(err, ErrItemNotFound):
		if req.Quantity > product.Stock {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": ErrInsufficientStock.Error()})
			return
		}
		item, err = h.carts.AddItem(ctx, userCart.ID, product.ID, req.Quantity)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "An internal server error occurred."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item added to cart successfully", "cartItems": item})
}

func (h *Handlers) getItems(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User is not authenticated."})
		return
	}

	ctx := c.Request.Context()
	userCart, err := h.carts.GetByUserID(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		c.JSON(http.StatusOK, gin.H{"message": "success", "cartItems": []ItemWithProduct{}})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "An internal server error occurred."})
		return
	}

	items, err := h.carts.ItemsWithProducts(ctx, userCart.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "An internal server error occurred."})
		return
	}
	if items == nil {
		items = []ItemWithProduct{}
	}
	c.JSON(http.StatusOK, gin.H{"message": "success", "cartItems": items})
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// ownedItem resolves itemID inside the caller's own cart; any item id
// outside it is reported as not found.
func (h *Handlers) ownedItem(ctx context.Context, userID, itemID int64) (*ItemWithProduct, error) {
	userCart, err := h.carts.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return h.carts.ItemWithProduct(ctx, itemID, userCart.ID)
}

func (h *Handlers) updateItemQuantity(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Not authenticated."})
		return
	}
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "A valid item id is required."})
		return
	}
	var req updateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "A valid quantity is required."})
		return
	}

	ctx := c.Request.Context()
	item, err := h.ownedItem(ctx, userID, itemID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Item not found in your cart."})
		return
	}
	if req.Quantity > item.Product.Stock {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": ErrInsufficientStock.Error()})
		return
	}

	updated, err := h.carts.UpdateItemQuantity(ctx, item.ID, req.Quantity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "An internal server error occurred."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Quantity updated.", "cartItem": updated})
}

func (h *Handlers) removeItem(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Not authenticated."})
		return
	}
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "A valid item id is required."})
		return
	}

	ctx := c.Request.Context()
	item, err := h.ownedItem(ctx, userID, itemID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Item not found in your cart."})
		return
	}
	if err := h.carts.DeleteItem(ctx, item.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "An internal server error occurred."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Item removed from cart."})
}
