package entitlement

// Subscription status vocabulary as stored on an account. "expired" is
// local-only: Stripe has no such status, an active subscription simply
// lapses past its period end and the engine rewrites it.
const (
	StatusNone     = "none"
	StatusFree     = "free"
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusExpired  = "expired"
)

// FreePromptGrant is the free-tier allowance given at signup and restored
// when a subscription is canceled or lapses.
const FreePromptGrant = 12

// LowPromptThreshold is where decision messages start nudging free users
// toward a plan.
const LowPromptThreshold = 3

// UnlimitedPrompts is the prompts_remaining sentinel for paid-tier access.
const UnlimitedPrompts = -1
