package api

import (
	"net/http"

	"smartshop-backend/internal/auth/delivery"
	authUsecase "smartshop-backend/internal/auth/usecase"
	financeDelivery "smartshop-backend/internal/finance/delivery"
	mailDelivery "smartshop-backend/internal/mail/delivery"
	priceDelivery "smartshop-backend/internal/price/delivery"

	"github.com/gin-gonic/gin"
)

// Handlers groups the per-domain HTTP handlers.
type Handlers struct {
	Auth    *delivery.AuthHandler
	Chat    *ChatHandler
	Price   *priceDelivery.PriceHandler
	Finance *financeDelivery.FinanceHandler
	Mail    *mailDelivery.MailHandler
}

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, h Handlers) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/token", h.Auth.IssueToken)
			auth.GET("/me", delivery.AuthMiddleware(authUsecase), h.Auth.Me)
			auth.PUT("/settings", delivery.AuthMiddleware(authUsecase), h.Auth.UpdateSettings)
		}

		// FCM routes (protected)
		fcm := api.Group("/fcm")
		fcm.Use(delivery.AuthMiddleware(authUsecase))
		{
			fcm.POST("/register", h.Auth.RegisterFCMToken)
		}

		// Chat routes
		api.POST("/webhook/chat", delivery.GatewayKeyMiddleware(authUsecase), h.Chat.Webhook)
		api.POST("/chat", delivery.AuthMiddleware(authUsecase), h.Chat.Chat)

		// Tracking and finance routes (protected)
		protected := api.Group("")
		protected.Use(delivery.AuthMiddleware(authUsecase))
		{
			protected.GET("/tracking", h.Price.GetTracking)
			protected.POST("/tracking", h.Price.CreateTracking)
			protected.DELETE("/tracking/:name", h.Price.DeleteTracking)
			protected.GET("/prices", h.Price.QueryPrices)

			protected.POST("/expenses", h.Finance.CreateExpense)
			protected.GET("/finance/summary", h.Finance.GetSummary)
			protected.PUT("/finance/budget", h.Finance.PutBudget)
			protected.GET("/finance/budget/status", h.Finance.GetBudgetStatus)
		}

		// Gmail routes; callback and push are called by Google.
		gmail := api.Group("/gmail")
		{
			gmail.GET("/callback", h.Mail.Callback)
			gmail.POST("/push", h.Mail.Push)
			gmail.GET("/connect", delivery.AuthMiddleware(authUsecase), h.Mail.Connect)
			gmail.GET("/status", delivery.AuthMiddleware(authUsecase), h.Mail.Status)
			gmail.POST("/sync", delivery.AuthMiddleware(authUsecase), h.Mail.Sync)
		}
		api.DELETE("/gmail", delivery.AuthMiddleware(authUsecase), h.Mail.Disconnect)

		// Settings routes (operator only) - Runtime configuration
		settings := api.Group("/settings")
		settings.Use(delivery.GatewayKeyMiddleware(authUsecase))
		{
			settings.GET("/thresholds", GetThresholds)
			settings.PUT("/thresholds", UpdateThresholds)
			settings.GET("/ollama", GetOllamaSettings)
			settings.PUT("/ollama", UpdateOllamaSettings)
			settings.POST("/ollama/test", TestOllamaConnection)
		}
	}
}
