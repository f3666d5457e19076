package accounts

import (
	"time"
)

// Account is one registered end user and their billing/usage state.
//
// subscription_status, subscription_expires_at and plan_price_id are written
// only by the entitlement engine (webhook lifecycle appliers plus the
// stale-expiry correction). Everything else here writes through the engine's
// atomic primitives or account creation.
type Account struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	Name         string
	Email        string  `gorm:"not null;uniqueIndex:idx_accounts_email"`
	Password     *string `gorm:""`
	AuthProvider string  `gorm:"type:varchar(20);not null;default:'local'"`
	GoogleSub    *string `gorm:"uniqueIndex:idx_accounts_google_sub"`
	Role         string

	StripeCustomerID *string `gorm:"column:stripe_customer_id;uniqueIndex:idx_accounts_stripe_customer_id"`
	SubscriptionID   *string `gorm:"column:subscription_id;uniqueIndex:idx_accounts_subscription_id"`

	SubscriptionStatus    string     `gorm:"column:subscription_status;not null;default:'none'"`
	SubscriptionExpiresAt *time.Time `gorm:"column:subscription_expires_at"`
	PlanPriceID           *string    `gorm:"column:plan_price_id"`

	// Free-tier allowance, consumed only while no paid entitlement is live.
	FreePromptsRemaining int `gorm:"column:free_prompts_remaining;not null;default:0"`

	// Paid-tier usage counters, per prompt kind. No hard cap; kept for
	// analytics and future cap enforcement.
	ChatPromptsUsed  int64 `gorm:"column:chat_prompts_used;not null;default:0"`
	ImagePromptsUsed int64 `gorm:"column:image_prompts_used;not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
