package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/netriver-marketplace/internal/middleware"
	"github.com/01moynul/netriver-marketplace/internal/models"
)

// Checkout turns the session's cart into an order. Customer fields are
// validated by the orchestrator so every violation is reported together.
func (h *Handlers) Checkout(c *gin.Context) {
	var input models.Customer
	if err := bindJSON(c, &input); err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.Orchestrator.Checkout(c.Request.Context(), middleware.SessionToken(c), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Order created successfully", "order": result})
}

// GetOrder is the public lookup by order number.
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.Orders.Lookup(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// GetSellerOrders lists orders containing the caller's products.
func (h *Handlers) GetSellerOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter := models.OrderFilter{
		FulfillmentStatus: c.Query("status"),
		PaymentStatus:     c.Query("payment_status"),
		Page:              page,
		Limit:             limit,
	}

	list, pagination, err := h.Orders.SellerOrders(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "pagination": pagination})
}

type UpdateOrderStatusInput struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus moves an order's fulfillment status on behalf of a seller.
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	orderID, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var input UpdateOrderStatusInput
	if err := bindJSON(c, &input); err != nil {
		h.respondError(c, err)
		return
	}

	order, err := h.Orders.UpdateFulfillment(c.Request.Context(), middleware.UserID(c), orderID, input.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order": order})
}
