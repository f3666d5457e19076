package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promptforge-backend/internal/domain/accounts"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	// ErrUnknownAccount means the referenced account does not exist.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrInsufficientEntitlement is a user-facing denial, not a fault:
	// no live subscription and no free prompts left.
	ErrInsufficientEntitlement = errors.New("insufficient entitlement")
)

// Config is established once at process start and injected; the engine
// never reads the environment itself.
type Config struct {
	// DevBypass forces every decision open. Non-production only.
	DevBypass bool
}

// Engine owns every mutation of an account's subscription and usage
// fields. Handlers read decisions from it and report consumption to it;
// the webhook layer feeds it provider lifecycle state.
type Engine struct {
	db  *gorm.DB
	cfg Config

	// now is swappable in tests.
	now func() time.Time
}

func NewEngine(db *gorm.DB, cfg Config) *Engine {
	return &Engine{db: db, cfg: cfg, now: time.Now}
}

// Decision is the canonical access answer for one account.
type Decision struct {
	HasAccess        bool   `json:"has_access"`
	Status           string `json:"status"`
	Message          string `json:"message"`
	PromptsRemaining int    `json:"prompts_remaining"`
}

// Evaluate computes the current decision for an account.
//
// It is a pure read except for one case: a stored active/trialing status
// whose expiry is already in the past. That stale state is corrected in
// place (status -> expired, free grant restored, paid counters zeroed)
// before deciding, so the decision always reflects corrected state and a
// second call is a plain read returning the same answer.
func (e *Engine) Evaluate(ctx context.Context, accountID string) (Decision, error) {
	acc, err := e.getAccount(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}

	now := e.now()
	if !e.cfg.DevBypass && isStale(now, acc) {
		if err := e.correctExpired(ctx, accountID, now); err != nil {
			return Decision{}, err
		}
		if acc, err = e.getAccount(ctx, accountID); err != nil {
			return Decision{}, err
		}
	}

	return e.decide(now, acc), nil
}

// isStale reports a paid status whose expiry has already passed. Absent
// expiry on an active subscription means unknown, never lapsed.
func isStale(now time.Time, acc *accounts.Account) bool {
	switch acc.SubscriptionStatus {
	case StatusActive, StatusTrialing:
		return acc.SubscriptionExpiresAt != nil && !acc.SubscriptionExpiresAt.After(now)
	}
	return false
}

// correctExpired is a single conditional UPDATE: the WHERE clause repeats
// the staleness predicate so concurrent evaluations apply it at most once
// and an already-corrected row is untouched.
func (e *Engine) correctExpired(ctx context.Context, accountID string, now time.Time) error {
	res := e.db.WithContext(ctx).Model(&accounts.Account{}).
		Where("id = ? AND subscription_status IN ? AND subscription_expires_at IS NOT NULL AND subscription_expires_at <= ?",
			accountID, []string{StatusActive, StatusTrialing}, now).
		Updates(map[string]interface{}{
			"subscription_status":    StatusExpired,
			"free_prompts_remaining": FreePromptGrant,
			"chat_prompts_used":      0,
			"image_prompts_used":     0,
		})
	if res.Error != nil {
		return fmt.Errorf("correct expired subscription: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Warn().Str("account_id", accountID).Msg("subscription lapsed, corrected to expired")
	}
	return nil
}

// decide maps stored state to a decision. First match wins; free prompts
// outrank past_due and canceled so a lapsed subscriber can still spend
// their restored grant.
func (e *Engine) decide(now time.Time, acc *accounts.Account) Decision {
	if e.cfg.DevBypass {
		return Decision{
			HasAccess:        true,
			Status:           StatusActive,
			Message:          "Dev mode active.",
			PromptsRemaining: UnlimitedPrompts,
		}
	}

	switch acc.SubscriptionStatus {
	case StatusActive, StatusTrialing:
		if acc.SubscriptionExpiresAt == nil || acc.SubscriptionExpiresAt.After(now) {
			return Decision{
				HasAccess:        true,
				Status:           acc.SubscriptionStatus,
				Message:          "Access granted.",
				PromptsRemaining: UnlimitedPrompts,
			}
		}
	}

	if acc.FreePromptsRemaining > 0 {
		msg := fmt.Sprintf("You have %d free prompts remaining.", acc.FreePromptsRemaining)
		if acc.FreePromptsRemaining <= LowPromptThreshold {
			msg += " Consider upgrading."
		}
		return Decision{
			HasAccess:        true,
			Status:           StatusFree,
			Message:          msg,
			PromptsRemaining: acc.FreePromptsRemaining,
		}
	}

	if acc.SubscriptionStatus == StatusPastDue {
		return Decision{
			HasAccess: false,
			Status:    StatusPastDue,
			Message:   "Your payment is past due. Please update your payment method.",
		}
	}

	if acc.SubscriptionStatus == StatusCanceled {
		return Decision{
			HasAccess: false,
			Status:    StatusCanceled,
			Message:   "Your subscription has been canceled.",
		}
	}
	if acc.SubscriptionStatus == StatusExpired ||
		(acc.SubscriptionExpiresAt != nil && !acc.SubscriptionExpiresAt.After(now)) {
		return Decision{
			HasAccess: false,
			Status:    StatusExpired,
			Message:   "Your subscription has expired.",
		}
	}

	return Decision{
		HasAccess: false,
		Status:    StatusNone,
		Message:   "No active subscription or free prompts remaining.",
	}
}

func (e *Engine) getAccount(ctx context.Context, accountID string) (*accounts.Account, error) {
	var acc accounts.Account
	err := e.db.WithContext(ctx).Where("id = ?", accountID).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &acc, nil
}
