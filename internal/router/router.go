package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tpia/internal/app"
	"tpia/internal/domain"
	"tpia/internal/handler"
	"tpia/internal/metrics"
	"tpia/internal/middleware"
	"tpia/internal/repository"
	"tpia/internal/ws"
)

// Setup builds the HTTP surface. ctx bounds background helpers such as the
// rate limiter janitor.
func Setup(ctx context.Context, a *app.App) *gin.Engine {
	cfg := a.Config
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Observe(a.Log.Named("http"), a.Metrics))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins...))
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter := middleware.NewInMemoryRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute)
		go limiter.Run(ctx)
		r.Use(middleware.RateLimit(limiter))
	}

	unitHandler := handler.NewUnitHandler(a.Units)
	clusterHandler := handler.NewClusterHandler(a.Clusters)
	walletHandler := handler.NewWalletHandler(a.Ledger)
	withdrawalHandler := handler.NewWithdrawalHandler(a.Withdrawals)
	depositHandler := handler.NewDepositHandler(a.Deposits)
	notificationHandler := handler.NewNotificationHandler(a.Notifications)
	paymentWebhookHandler := handler.NewPaymentWebhookHandler(a.Deposits, &cfg.Payment)
	adminHandler := handler.NewAdminHandler(handler.AdminDeps{
		AdminRepo:   repository.NewAdminRepository(a.DB),
		Users:       a.Users,
		Commodities: a.Commodities,
		Units:       a.Units,
		Clusters:    a.Clusters,
		Cycles:      a.Cycles,
		Withdrawals: a.Withdrawals,
		Settings:    a.Settings,
		Audit:       a.Audit,
		Hub:         a.Hub,
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "tx_mode": a.Runner.Mode()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authMw := middleware.AuthRequired(&cfg.JWT)

	api := r.Group("/api/v1")
	{
		api.POST("/webhooks/payment", paymentWebhookHandler.Handle)

		investor := api.Group("")
		investor.Use(authMw, middleware.RequireRole(domain.RoleInvestor, domain.RoleAdmin))
		{
			investor.POST("/units", unitHandler.Purchase)
			investor.GET("/units", unitHandler.List)
			investor.GET("/units/:id", unitHandler.Get)
			investor.GET("/units/:id/cycles", unitHandler.Cycles)
			investor.POST("/units/:id/exit", unitHandler.RequestExit)
			investor.PATCH("/units/:id/profit-mode", unitHandler.SetProfitMode)
			investor.GET("/clusters", clusterHandler.List)
			investor.GET("/clusters/:id", clusterHandler.Get)
		}

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("/wallet", walletHandler.GetBalance)
			me.GET("/wallet/transactions", walletHandler.GetTransactions)
			me.GET("/deposits", depositHandler.List)
			me.POST("/withdrawals", withdrawalHandler.Create)
			me.GET("/withdrawals", withdrawalHandler.List)
			me.GET("/notifications", notificationHandler.List)
			me.PUT("/notifications/:id/read", notificationHandler.MarkRead)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/reports", adminHandler.Reports)

			admin.GET("/units", adminHandler.ListUnits)
			admin.POST("/units/:id/approve", adminHandler.ApproveUnit)
			admin.POST("/units/:id/reject", adminHandler.RejectUnit)
			admin.POST("/units/:id/complete-cycle", adminHandler.CompleteCycle)

			admin.GET("/clusters", clusterHandler.List)
			admin.POST("/clusters/:id/start", adminHandler.StartCluster)
			admin.POST("/clusters/:id/sweep", adminHandler.SweepCluster)
			admin.POST("/cycles/sweep", adminHandler.SweepAll)

			admin.GET("/withdrawals", adminHandler.ListWithdrawals)
			admin.POST("/withdrawals/:id/approve", adminHandler.ApproveWithdrawal)
			admin.POST("/withdrawals/:id/reject", adminHandler.RejectWithdrawal)

			admin.GET("/settings", adminHandler.GetSettings)
			admin.PUT("/settings", adminHandler.UpdateSettings)

			admin.GET("/users", adminHandler.ListUsers)
			admin.PATCH("/users/:id/kyc", adminHandler.SetKYC)

			admin.GET("/commodities", adminHandler.ListCommodities)
			admin.POST("/commodities", adminHandler.CreateCommodity)
			admin.PATCH("/commodities/:code", adminHandler.SetCommodityActive)

			admin.GET("/transactions", adminHandler.ListTransactions)
			admin.GET("/payments", adminHandler.ListPayments)
			admin.GET("/audit", adminHandler.ListAudit)
		}
	}

	r.GET("/ws/notifications", ws.UpgradeNotificationsWS(&cfg.JWT, a.Hub))

	return r
}
