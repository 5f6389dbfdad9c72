package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/marketplace/internal/adapter/handler/middleware"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/port"
)

type RouterConfig struct {
	Auth           middleware.AuthConfig
	AllowOrigins   []string
	RequestTimeout time.Duration
	Logger         *slog.Logger
	// Checks are pinged by /healthz.
	Checks map[string]port.Pinger
}

type Handlers struct {
	Catalog *CatalogHandler
	Order   *OrderHandler
	Ledger  *LedgerHandler
	Hub     *Hub
}

func NewRouter(cfg RouterConfig, h Handlers) *gin.Engine {
	l := cfg.Logger
	if l == nil {
		l = logging.New("http")
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.Logging(l))
	r.Use(cors.New(corsConfig(cfg.AllowOrigins)))

	r.GET("/healthz", healthz(cfg.Checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authz := middleware.NewAuthz(cfg.Auth)

	// Streaming endpoints stay outside the request timeout.
	r.GET("/api/ws/orders", authz.RequireAny(domain.CapConfirmDelivery, domain.CapViewLedger), h.Hub.Serve)

	api := r.Group("/api", middleware.Timeout(cfg.RequestTimeout))
	{
		api.GET("/products", h.Catalog.ListPublic)
		api.GET("/products/:id", h.Catalog.GetProduct)
		api.POST("/products", authz.Require(domain.CapCreateListing), h.Catalog.CreateListing)
		api.GET("/products/mine", authz.Require(domain.CapCreateListing), h.Catalog.ListBySeller)

		api.POST("/orders", authz.Require(domain.CapPurchase), h.Order.PlaceOrder)
		api.GET("/orders/mine", authz.Require(domain.CapPurchase), h.Order.BuyerOrders)
		api.GET("/orders/:id", authz.Require(), h.Order.GetOrder)
		api.POST("/orders/:id/delivery-code", authz.Require(domain.CapPurchase), h.Order.ResendCode)
		api.PUT("/orders/:id/delivery", authz.Require(domain.CapConfirmDelivery), h.Order.Verify)

		api.GET("/seller/orders", authz.Require(domain.CapConfirmDelivery), h.Ledger.SellerOrders)
	}

	admin := api.Group("/admin")
	{
		admin.GET("/products/pending", authz.Require(domain.CapApproveListing), h.Catalog.ListPending)
		admin.PUT("/products/:id/approval", authz.Require(domain.CapApproveListing), h.Catalog.SetApproval)
		admin.GET("/transactions", authz.Require(domain.CapViewLedger), h.Ledger.Transactions)
		admin.GET("/transactions.xlsx", authz.Require(domain.CapViewLedger), h.Ledger.ExportTransactions)
	}

	return r
}

func healthz(checks map[string]port.Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := gin.H{}
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		c.JSON(status, gin.H{"ok": status == http.StatusOK, "checks": report})
	}
}

// corsConfig allows the listed origins. An empty list rejects every cross-origin request.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "x-auth-token", "X-Idempotency-Key", "X-Request-Id"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	switch {
	case len(origins) == 0:
		cfg.AllowOriginFunc = func(string) bool { return false }
	case slices.Contains(origins, "*"):
		cfg.AllowAllOrigins = true
	default:
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}
