package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promptforge-backend/internal/domain/accounts"
	"promptforge-backend/internal/domain/billing"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionState is the provider-agnostic snapshot the webhook layer
// hands the engine. Status is already normalized to this package's
// vocabulary; ExpiresAt nil means the provider did not report a period end
// and the fallback could not be derived either.
type SubscriptionState struct {
	SubscriptionID string
	CustomerID     string
	Status         string
	ExpiresAt      *time.Time
	PriceID        string
}

// ApplyCheckout links a completed checkout to the account that started it
// and seeds the subscription fields. The free grant is zeroed: paid access
// supersedes it. Plain value writes, safe to reapply on redelivery.
func (e *Engine) ApplyCheckout(ctx context.Context, accountID string, st SubscriptionState) error {
	res := e.db.WithContext(ctx).Model(&accounts.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"stripe_customer_id":      st.CustomerID,
			"subscription_id":         st.SubscriptionID,
			"subscription_status":     st.Status,
			"subscription_expires_at": st.ExpiresAt,
			"plan_price_id":           st.PriceID,
			"free_prompts_remaining":  0,
			"chat_prompts_used":       0,
			"image_prompts_used":      0,
		})
	if res.Error != nil {
		return fmt.Errorf("apply checkout: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAccount
	}
	return nil
}

// ApplySubscriptionUpdate re-derives status, expiry and plan from the
// provider's subscription object. Lookup is by stored subscription id, the
// only key these events reliably carry. A status falling out of
// active/trialing restores the free grant; returning to paid zeroes it.
func (e *Engine) ApplySubscriptionUpdate(ctx context.Context, st SubscriptionState) error {
	updates := map[string]interface{}{
		"subscription_status":     st.Status,
		"subscription_expires_at": st.ExpiresAt,
		"plan_price_id":           st.PriceID,
	}
	switch st.Status {
	case StatusActive, StatusTrialing:
		updates["free_prompts_remaining"] = 0
	default:
		updates["free_prompts_remaining"] = FreePromptGrant
	}

	res := e.db.WithContext(ctx).Model(&accounts.Account{}).
		Where("subscription_id = ?", st.SubscriptionID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("apply subscription update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAccount
	}
	return nil
}

// ApplySubscriptionDeleted ends the subscription: canceled status, expiry
// and plan cleared, free grant restored, paid counters zeroed.
func (e *Engine) ApplySubscriptionDeleted(ctx context.Context, subscriptionID string) error {
	res := e.db.WithContext(ctx).Model(&accounts.Account{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]interface{}{
			"subscription_status":     StatusCanceled,
			"subscription_expires_at": nil,
			"plan_price_id":           nil,
			"free_prompts_remaining":  FreePromptGrant,
			"chat_prompts_used":       0,
			"image_prompts_used":      0,
		})
	if res.Error != nil {
		return fmt.Errorf("apply subscription deleted: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAccount
	}
	return nil
}

// ApplyPaymentFailed marks the account past_due. Expiry is left alone;
// the decision rules deny past_due regardless of any stored period end.
func (e *Engine) ApplyPaymentFailed(ctx context.Context, subscriptionID string) error {
	res := e.db.WithContext(ctx).Model(&accounts.Account{}).
		Where("subscription_id = ?", subscriptionID).
		Update("subscription_status", StatusPastDue)
	if res.Error != nil {
		return fmt.Errorf("apply payment failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAccount
	}
	return nil
}

// RecordPayment appends a settled invoice to the payment ledger. The
// invoice id is unique, so a redelivered event inserts nothing.
func (e *Engine) RecordPayment(ctx context.Context, subscriptionID string, p billing.Payment) error {
	var acc accounts.Account
	err := e.db.WithContext(ctx).
		Select("id").
		Where("subscription_id = ?", subscriptionID).
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUnknownAccount
	}
	if err != nil {
		return fmt.Errorf("record payment account lookup: %w", err)
	}

	p.AccountID = acc.ID
	p.StripeSubscriptionID = subscriptionID
	if err := e.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}},
			DoNothing: true,
		}).
		Create(&p).Error; err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	return nil
}
