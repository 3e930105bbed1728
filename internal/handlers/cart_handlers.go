package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/netriver-marketplace/internal/middleware"
)

//
// --- Cart Handlers (session-scoped) ---
//

type AddToCartInput struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required"`
}

type UpdateCartItemInput struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *Handlers) GetCart(c *gin.Context) {
	snap, err := h.Cart.Snapshot(c.Request.Context(), middleware.SessionToken(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handlers) GetCartCount(c *gin.Context) {
	n, err := h.Cart.Count(c.Request.Context(), middleware.SessionToken(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handlers) AddToCart(c *gin.Context) {
	var input AddToCartInput
	if err := bindJSON(c, &input); err != nil {
		h.respondError(c, err)
		return
	}

	line, err := h.Cart.Add(c.Request.Context(), middleware.SessionToken(c), input.ProductID, input.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Item added to cart", "item": line})
}

func (h *Handlers) UpdateCartItem(c *gin.Context) {
	lineID, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var input UpdateCartItemInput
	if err := bindJSON(c, &input); err != nil {
		h.respondError(c, err)
		return
	}

	line, err := h.Cart.Update(c.Request.Context(), middleware.SessionToken(c), lineID, input.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart updated", "item": line})
}

func (h *Handlers) DeleteCartItem(c *gin.Context) {
	lineID, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.Cart.Remove(c.Request.Context(), middleware.SessionToken(c), lineID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart"})
}

func (h *Handlers) ClearCart(c *gin.Context) {
	n, err := h.Cart.Clear(c.Request.Context(), middleware.SessionToken(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared", "removed": n})
}
