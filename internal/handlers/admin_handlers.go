package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/models"
)

// GetAdminOrders lists all orders with optional status and date-range filters.
// end_date is inclusive.
func (h *Handlers) GetAdminOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter := models.AdminOrderFilter{
		PaymentStatus:     c.Query("payment_status"),
		FulfillmentStatus: c.Query("status"),
		Page:              page,
		Limit:             limit,
	}

	var err error
	if filter.From, err = queryDate(c, "start_date"); err != nil {
		h.respondError(c, err)
		return
	}
	if filter.To, err = queryDate(c, "end_date"); err != nil {
		h.respondError(c, err)
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1)
	}

	list, pagination, err := h.Orders.AdminOrders(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "pagination": pagination})
}

// GetAdminStats returns the platform order KPIs.
func (h *Handlers) GetAdminStats(c *gin.Context) {
	stats, err := h.Orders.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

// GetRevenueAnalytics returns daily paid sales and commission.
func (h *Handlers) GetRevenueAnalytics(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil {
		h.respondError(c, apperr.Invalid("days", "Days must be a number"))
		return
	}
	report, err := h.Orders.Revenue(c.Request.Context(), days)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analytics": report})
}

// queryDate parses an optional YYYY-MM-DD query parameter as a UTC midnight.
func queryDate(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return time.Time{}, apperr.Invalid(name, "Date must be in YYYY-MM-DD format")
	}
	return t, nil
}
