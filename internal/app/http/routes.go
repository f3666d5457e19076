package routes

import (
	accountsapi "promptforge-backend/internal/api/accounts"
	adminapi "promptforge-backend/internal/api/admin"
	authapi "promptforge-backend/internal/api/auth"
	billingapi "promptforge-backend/internal/api/billing"
	conversationsapi "promptforge-backend/internal/api/conversations"
	entitlementapi "promptforge-backend/internal/api/entitlement"
	promptsapi "promptforge-backend/internal/api/prompts"
	stripewebhooks "promptforge-backend/internal/api/stripewebhook"
	"promptforge-backend/internal/app/http/middleware"

	"promptforge-backend/config"
	"promptforge-backend/database"
	"promptforge-backend/internal/domain/entitlement"
	aiclient "promptforge-backend/internal/infra/openai"
	stripeinfra "promptforge-backend/internal/infra/stripe"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, engine *entitlement.Engine, ai aiclient.Client) {
	webhook := stripewebhooks.NewHandler(database.DB, engine, config.STRIPE_WEBHOOK_SECRET, stripeinfra.LiveRetriever{})
	entitlementHandler := entitlementapi.NewHandler(engine)
	promptsHandler := promptsapi.NewHandler(database.DB, engine, ai)
	accountsHandler := accountsapi.NewHandler(engine)

	// Webhook takes the raw body, so no sanitizing middleware here.
	r.POST("/webhook", webhook.HandleWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/plans", billingapi.ListPlans)

	public := r.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())
	public.POST("/register", authapi.Register)
	public.POST("/login", authapi.Login)
	public.GET("/auth/google", authapi.GoogleStart)
	public.GET("/auth/google/callback", authapi.GoogleCallback)

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware())
	auth.GET("/me", accountsHandler.GetCurrentAccount)
	auth.DELETE("/account", accountsHandler.DeleteAccount)

	auth.GET("/entitlement", entitlementHandler.GetEntitlement)
	auth.POST("/entitlement/consume", entitlementHandler.Consume)

	auth.GET("/payments", billingapi.GetPaymentHistory)
	auth.POST("/create-checkout-session", billingapi.CreateCheckoutSession)
	auth.POST("/billing-portal", billingapi.CreateBillingPortal)

	auth.GET("/conversations", conversationsapi.ListConversations)
	auth.GET("/conversations/:id", conversationsapi.GetConversation)
	auth.DELETE("/conversations/:id", conversationsapi.DeleteConversation)

	// Paid-feature routes; handlers re-check on consume
	gated := auth.Group("/")
	gated.Use(middleware.RequireEntitlement(engine))
	gated.POST("/chat", promptsHandler.Chat)
	gated.POST("/generate-image", promptsHandler.GenerateImage)

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.RequireRole("admin"))
	admin.GET("/accounts", adminapi.ListAllAccounts)
	admin.GET("/accounts/:id", adminapi.GetAccountDetails)
}
