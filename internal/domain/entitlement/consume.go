package entitlement

import (
	"context"
	"fmt"

	"promptforge-backend/internal/domain/accounts"

	"gorm.io/gorm"
)

// PromptKind distinguishes the paid usage counters. Free prompts are one
// shared pool regardless of kind.
type PromptKind string

const (
	KindChat  PromptKind = "chat"
	KindImage PromptKind = "image"
)

// Consume records one unit of usage. Entitlement is re-evaluated here, not
// trusted from an earlier query: the caller may have gone stale between
// asking and doing.
//
// On the free tier the decrement is a conditional UPDATE with a floor at
// zero. Two tabs racing on the last prompt both pass the re-check, but only
// one UPDATE matches its WHERE clause; the loser gets
// ErrInsufficientEntitlement, never a negative counter. Paid tiers have no
// cap, their per-kind counter is just incremented.
func (e *Engine) Consume(ctx context.Context, accountID string, kind PromptKind) (Decision, error) {
	dec, err := e.Evaluate(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}
	if !dec.HasAccess {
		return dec, ErrInsufficientEntitlement
	}
	if e.cfg.DevBypass {
		return dec, nil
	}

	if dec.Status == StatusFree {
		res := e.db.WithContext(ctx).Model(&accounts.Account{}).
			Where("id = ? AND free_prompts_remaining > 0", accountID).
			UpdateColumn("free_prompts_remaining", gorm.Expr("free_prompts_remaining - 1"))
		if res.Error != nil {
			return Decision{}, fmt.Errorf("decrement free prompts: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race for the last prompt. Re-decide from the
			// stored row so the denial carries the real status
			// (past_due, canceled, none), not a guess.
			acc, err := e.getAccount(ctx, accountID)
			if err != nil {
				return Decision{}, err
			}
			fresh := e.decide(e.now(), acc)
			if fresh.HasAccess {
				// Entitlement came back between the check and the
				// decrement (grant restored or subscription revived);
				// start over.
				return e.Consume(ctx, accountID, kind)
			}
			return fresh, ErrInsufficientEntitlement
		}
		dec.PromptsRemaining--
		dec.Message = fmt.Sprintf("You have %d free prompts remaining.", dec.PromptsRemaining)
		if dec.PromptsRemaining <= LowPromptThreshold {
			dec.Message += " Consider upgrading."
		}
		return dec, nil
	}

	column := "chat_prompts_used"
	if kind == KindImage {
		column = "image_prompts_used"
	}
	res := e.db.WithContext(ctx).Model(&accounts.Account{}).
		Where("id = ?", accountID).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		return Decision{}, fmt.Errorf("increment paid usage: %w", res.Error)
	}
	return dec, nil
}
