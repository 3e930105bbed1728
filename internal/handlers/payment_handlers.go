package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/01moynul/netriver-marketplace/internal/apperr"
	"github.com/01moynul/netriver-marketplace/internal/payment"
)

const maxWebhookBytes = 1 << 20

type InitializePaymentInput struct {
	OrderNumber string          `json:"orderNumber" binding:"required"`
	Email       string          `json:"email" binding:"omitempty,email"`
	Amount      decimal.Decimal `json:"amount"`
}

func (h *Handlers) InitializePayment(c *gin.Context) {
	var input InitializePaymentInput
	if err := bindJSON(c, &input); err != nil {
		h.respondError(c, err)
		return
	}
	if !input.Amount.IsPositive() {
		h.respondError(c, apperr.Invalid("amount", "Invalid amount"))
		return
	}

	res, err := h.Payments.Initialize(c.Request.Context(), input.OrderNumber, input.Email, input.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment initialized successfully", "data": res})
}

func (h *Handlers) VerifyPayment(c *gin.Context) {
	order, err := h.Payments.Verify(c.Request.Context(), c.Query("reference"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment verified successfully", "order": order})
}

// PaymentWebhook needs the raw body: the signature covers its exact bytes.
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		h.respondError(c, apperr.Invalid("body", "Unreadable body"))
		return
	}

	if err := h.Payments.HandleWebhook(c.Request.Context(), c.GetHeader(payment.SignatureHeader), body); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handlers) GetPaymentMethods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"methods": []gin.H{{
			"id":          "paystack",
			"name":        "Paystack",
			"description": "Secure payment via Paystack (Cards, Bank Transfer, USSD)",
			"popular":     true,
		}},
		"supportedCurrencies": []string{h.Currency},
		"supportedChannels":   []string{"card", "bank_transfer", "ussd", "qr"},
	})
}

type OverridePaymentInput struct {
	PaymentStatus string `json:"paymentStatus" binding:"required"`
}

// OverridePayment is the admin's manual payment status change.
func (h *Handlers) OverridePayment(c *gin.Context) {
	orderID, err := paramID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var input OverridePaymentInput
	if err := bindJSON(c, &input); err != nil {
		h.respondError(c, err)
		return
	}

	order, err := h.Payments.Override(c.Request.Context(), orderID, input.PaymentStatus)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment status updated", "order": order})
}
