package database

import (
	"os"

	"promptforge-backend/internal/domain/accounts"
	"promptforge-backend/internal/domain/billing"
	"promptforge-backend/internal/domain/conversations"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		log.Fatal().Msg("DB_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	DB = db

	if err := Migrate(DB); err != nil {
		log.Fatal().Err(err).Msg("AutoMigrate error")
	}

	log.Info().Msg("Connected and migrated successfully")
}

// Migrate applies the schema for every domain model. Split out from InitDB
// so tests can run it against their own connection.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&accounts.Account{},
		&billing.Payment{},
		&billing.WebhookEvent{},
		&conversations.Conversation{},
		&conversations.Message{},
	)
}
