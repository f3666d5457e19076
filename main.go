package main

import (
	"os"
	"time"

	"promptforge-backend/config"
	"promptforge-backend/database"
	routes "promptforge-backend/internal/app/http"
	"promptforge-backend/internal/domain/entitlement"
	aiclient "promptforge-backend/internal/infra/openai"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	stripeapi "github.com/stripe/stripe-go/v75"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	config.LoadEnv()
	setLogLevel(config.LOG_LEVEL)
	database.InitDB()

	// Process-wide Stripe key; handlers never read the env themselves.
	stripeapi.Key = config.STRIPE_SECRET_KEY

	engine := entitlement.NewEngine(database.DB, entitlement.Config{
		DevBypass: config.DEV_MODE,
	})
	ai := aiclient.NewClient(config.OPENAI_API_KEY)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{config.CORS_ORIGIN},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, engine, ai)

	if err := r.Run(":" + config.PORT); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
