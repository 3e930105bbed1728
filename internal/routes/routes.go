package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/netriver-marketplace/internal/auth"
	"github.com/01moynul/netriver-marketplace/internal/handlers"
	"github.com/01moynul/netriver-marketplace/internal/metrics"
	"github.com/01moynul/netriver-marketplace/internal/middleware"
)

type Options struct {
	Issuer       *auth.Issuer
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	CORSOrigin   string
	RateLimitRPS float64
	RateBurst    int
	SecureCookie bool
}

func SetupRouter(h *handlers.Handlers, o Options) *gin.Engine {
	router := gin.New()

	// CORS must run first so preflights never hit auth.
	router.Use(middleware.CORS(o.CORSOrigin))
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(o.Logger, o.Metrics))

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(o.Metrics.Handler()))

	checkoutLimit := middleware.NewRateLimiter(o.RateLimitRPS, o.RateBurst)
	paymentLimit := middleware.NewRateLimiter(o.RateLimitRPS, o.RateBurst)
	authn := middleware.AuthMiddleware(o.Issuer)

	v1 := router.Group("/v1")
	{
		// --- Ping Route (Public) ---
		v1.GET("/ping", h.Ping)

		// --- Cart & Checkout (session) ---
		session := v1.Group("/")
		session.Use(middleware.Session(o.SecureCookie))
		{
			session.GET("/cart", h.GetCart)
			session.GET("/cart/count", h.GetCartCount)
			session.POST("/cart/items", h.AddToCart)
			session.PUT("/cart/items/:id", h.UpdateCartItem)
			session.DELETE("/cart/items/:id", h.DeleteCartItem)
			session.DELETE("/cart", h.ClearCart)

			session.POST("/checkout", checkoutLimit.Middleware(), h.Checkout)
		}

		// --- Public Order Lookup ---
		v1.GET("/orders/:orderNumber", h.GetOrder)

		// --- Payment Routes ---
		pay := v1.Group("/payment")
		{
			pay.POST("/initialize", paymentLimit.Middleware(), h.InitializePayment)
			pay.GET("/verify", h.VerifyPayment)
			pay.POST("/webhook", h.PaymentWebhook)
			pay.GET("/methods", h.GetPaymentMethods)
		}

		// --- Seller-Only Routes ---
		seller := v1.Group("/")
		seller.Use(authn, middleware.RequireRole(auth.RoleSeller))
		{
			seller.GET("/seller/orders", h.GetSellerOrders)
			seller.PUT("/orders/:id/status", h.UpdateOrderStatus)
		}

		// --- Admin-Only Routes ---
		admin := v1.Group("/")
		admin.Use(authn, middleware.RequireRole(auth.RoleAdmin))
		{
			admin.PUT("/orders/:id/payment", h.OverridePayment)
			admin.GET("/admin/orders", h.GetAdminOrders)
			admin.GET("/admin/stats", h.GetAdminStats)
			admin.GET("/admin/analytics/revenue", h.GetRevenueAnalytics)
		}
	}

	return router
}
