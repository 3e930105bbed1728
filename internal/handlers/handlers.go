package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/cart"
	"github.com/01moynul/netriver-marketplace/internal/checkout"
	"github.com/01moynul/netriver-marketplace/internal/middleware"
	"github.com/01moynul/netriver-marketplace/internal/orders"
	"github.com/01moynul/netriver-marketplace/internal/payment"
	"github.com/01moynul/netriver-marketplace/internal/store"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	Store        store.Store
	Cart         *cart.Service
	Orchestrator *checkout.Orchestrator
	Orders       *orders.Service
	Payments     *payment.Reconciler
	Currency     string
	Log          *slog.Logger
}

// respondError writes err as {"error", "code", "fields"}. Internal errors are
// logged in full and reported to the client without detail.
func (h *Handlers) respondError(c *gin.Context, err error) {
	e := apperr.As(err)
	status := e.Status()
	if status >= http.StatusInternalServerError {
		h.Log.Error("request failed",
			"request_id", middleware.GetRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		_ = c.Error(err)
	}

	body := gin.H{"error": e.Message, "code": e.Code}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	c.AbortWithStatusJSON(status, body)
}

// bindJSON decodes the request body, turning binding failures into field errors.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]apperr.FieldError, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: "Invalid value (" + fe.Tag() + ")"})
			}
			return apperr.Validation(fields)
		}
		return apperr.Invalid("body", "Invalid JSON body")
	}
	return nil
}

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid(name, "Invalid ID")
	}
	return id, nil
}

// Ping answers liveness checks.
func (h *Handlers) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong!"})
}

// Health reports whether the store is reachable.
func (h *Handlers) Health(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		h.Log.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
