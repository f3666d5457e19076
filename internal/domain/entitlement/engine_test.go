package entitlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"promptforge-backend/internal/domain/accounts"
	"promptforge-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *gorm.DB) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	return NewEngine(db, cfg), db
}

func seedAccount(t *testing.T, db *gorm.DB, mutate func(*accounts.Account)) *accounts.Account {
	t.Helper()
	acc := &accounts.Account{
		ID:                   uuid.NewString(),
		Name:                 "Test",
		Email:                uuid.NewString() + "@example.com",
		AuthProvider:         "local",
		Role:                 "user",
		SubscriptionStatus:   StatusNone,
		FreePromptsRemaining: 0,
	}
	if mutate != nil {
		mutate(acc)
	}
	require.NoError(t, db.Create(acc).Error)
	return acc
}

func strPtr(s string) *string { return &s }

func reload(t *testing.T, db *gorm.DB, id string) accounts.Account {
	t.Helper()
	var acc accounts.Account
	require.NoError(t, db.Where("id = ?", id).First(&acc).Error)
	return acc
}

func TestEvaluateActiveSubscription(t *testing.T) {
	engine, db := newTestEngine(t, Config{})
	future := time.Now().Add(30 * 24 * time.Hour)

	tests := []struct {
		name   string
		status string
		expiry *time.Time
	}{
		{name: "active with future expiry", status: StatusActive, expiry: &future},
		{name: "trialing with future expiry", status: StatusTrialing, expiry: &future},
		{name: "active with unknown expiry", status: StatusActive, expiry: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := seedAccount(t, db, func(a *accounts.Account) {
				a.SubscriptionStatus = tt.status
				a.SubscriptionExpiresAt = tt.expiry
				a.SubscriptionID = strPtr("sub_" + uuid.NewString())
			})

			dec, err := engine.Evaluate(context.Background(), acc.ID)
			require.NoError(t, err)

			assert.True(t, dec.HasAccess)
			assert.Equal(t, tt.status, dec.Status)
			assert.Equal(t, UnlimitedPrompts, dec.PromptsRemaining)

			// Pure read: stored state untouched.
			stored := reload(t, db, acc.ID)
			assert.Equal(t, tt.status, stored.SubscriptionStatus)
			assert.Equal(t, 0, stored.FreePromptsRemaining)
		})
	}
}

func TestEvaluateFreeTier(t *testing.T) {
	engine, db := newTestEngine(t, Config{})

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.FreePromptsRemaining = FreePromptGrant
	})

	dec, err := engine.Evaluate(context.Background(), acc.ID)
	require.NoError(t, err)

	assert.True(t, dec.HasAccess)
	assert.Equal(t, StatusFree, dec.Status)
	assert.Equal(t, FreePromptGrant, dec.PromptsRemaining)
	assert.NotContains(t, dec.Message, "upgrading")
}

func TestEvaluateFreeTierLowWarning(t *testing.T) {
	engine, db := newTestEngine(t, Config{})

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.FreePromptsRemaining = LowPromptThreshold
	})

	dec, err := engine.Evaluate(context.Background(), acc.ID)
	require.NoError(t, err)

	assert.True(t, dec.HasAccess)
	assert.Contains(t, dec.Message, "Consider upgrading")
}

func TestEvaluateDenials(t *testing.T) {
	engine, db := newTestEngine(t, Config{})
	past := time.Now().Add(-24 * time.Hour)

	tests := []struct {
		name       string
		mutate     func(*accounts.Account)
		wantStatus string
	}{
		{
			name: "past_due without free prompts",
			mutate: func(a *accounts.Account) {
				a.SubscriptionStatus = StatusPastDue
				a.SubscriptionID = strPtr("sub_pd")
			},
			wantStatus: StatusPastDue,
		},
		{
			name: "canceled without free prompts",
			mutate: func(a *accounts.Account) {
				a.SubscriptionStatus = StatusCanceled
			},
			wantStatus: StatusCanceled,
		},
		{
			name: "already expired without free prompts",
			mutate: func(a *accounts.Account) {
				a.SubscriptionStatus = StatusExpired
				a.SubscriptionExpiresAt = &past
			},
			wantStatus: StatusExpired,
		},
		{
			name:       "brand new account with nothing",
			mutate:     nil,
			wantStatus: StatusNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := seedAccount(t, db, tt.mutate)

			dec, err := engine.Evaluate(context.Background(), acc.ID)
			require.NoError(t, err)

			assert.False(t, dec.HasAccess)
			assert.Equal(t, tt.wantStatus, dec.Status)
			assert.NotEmpty(t, dec.Message)
		})
	}
}

func TestEvaluatePastDueMessage(t *testing.T) {
	engine, db := newTestEngine(t, Config{})

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.SubscriptionStatus = StatusPastDue
	})

	dec, err := engine.Evaluate(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Contains(t, dec.Message, "update your payment method")
}

func TestEvaluateCorrectsLapsedSubscription(t *testing.T) {
	engine, db := newTestEngine(t, Config{})
	past := time.Now().Add(-time.Hour)

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.SubscriptionStatus = StatusActive
		a.SubscriptionExpiresAt = &past
		a.SubscriptionID = strPtr("sub_lapsed")
		a.FreePromptsRemaining = 0
		a.ChatPromptsUsed = 42
		a.ImagePromptsUsed = 7
	})

	first, err := engine.Evaluate(context.Background(), acc.ID)
	require.NoError(t, err)

	// The stale paid status was rewritten before deciding.
	stored := reload(t, db, acc.ID)
	assert.Equal(t, StatusExpired, stored.SubscriptionStatus)
	assert.Equal(t, FreePromptGrant, stored.FreePromptsRemaining)
	assert.Zero(t, stored.ChatPromptsUsed)
	assert.Zero(t, stored.ImagePromptsUsed)

	// Decision reflects the corrected state: the restored free grant
	// outranks the expired subscription.
	assert.True(t, first.HasAccess)
	assert.Equal(t, StatusFree, first.Status)
	assert.Equal(t, FreePromptGrant, first.PromptsRemaining)

	// Second call is a pure read returning the same decision.
	second, err := engine.Evaluate(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	again := reload(t, db, acc.ID)
	assert.Equal(t, stored.FreePromptsRemaining, again.FreePromptsRemaining)
	assert.Equal(t, stored.SubscriptionStatus, again.SubscriptionStatus)
}

func TestEvaluateCorrectionAppliesOnce(t *testing.T) {
	engine, db := newTestEngine(t, Config{})
	past := time.Now().Add(-time.Hour)

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.SubscriptionStatus = StatusTrialing
		a.SubscriptionExpiresAt = &past
	})

	_, err := engine.Evaluate(context.Background(), acc.ID)
	require.NoError(t, err)

	// Spend part of the restored grant, then re-evaluate: the correction
	// must not fire again and top the counter back up.
	_, err = engine.Consume(context.Background(), acc.ID, KindChat)
	require.NoError(t, err)

	dec, err := engine.Evaluate(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, FreePromptGrant-1, dec.PromptsRemaining)
}

func TestEvaluateUnknownAccount(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	_, err := engine.Evaluate(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestEvaluateDevBypass(t *testing.T) {
	engine, db := newTestEngine(t, Config{DevBypass: true})
	past := time.Now().Add(-time.Hour)

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.SubscriptionStatus = StatusActive
		a.SubscriptionExpiresAt = &past
	})

	dec, err := engine.Evaluate(context.Background(), acc.ID)
	require.NoError(t, err)

	assert.True(t, dec.HasAccess)
	assert.Equal(t, StatusActive, dec.Status)
	assert.Equal(t, UnlimitedPrompts, dec.PromptsRemaining)

	// Bypass mode never writes, not even the lapsed-status correction.
	stored := reload(t, db, acc.ID)
	assert.Equal(t, StatusActive, stored.SubscriptionStatus)
}

func TestConsumeFreeTier(t *testing.T) {
	engine, db := newTestEngine(t, Config{})

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.FreePromptsRemaining = FreePromptGrant
	})

	dec, err := engine.Consume(context.Background(), acc.ID, KindChat)
	require.NoError(t, err)
	assert.Equal(t, FreePromptGrant-1, dec.PromptsRemaining)

	stored := reload(t, db, acc.ID)
	assert.Equal(t, FreePromptGrant-1, stored.FreePromptsRemaining)
	assert.Zero(t, stored.ChatPromptsUsed)
}

func TestConsumeExhaustsGrantThenDenies(t *testing.T) {
	engine, db := newTestEngine(t, Config{})

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.FreePromptsRemaining = FreePromptGrant
	})

	for i := 0; i < FreePromptGrant; i++ {
		_, err := engine.Consume(context.Background(), acc.ID, KindChat)
		require.NoError(t, err, "consume %d of the grant", i+1)
	}

	_, err := engine.Consume(context.Background(), acc.ID, KindChat)
	assert.ErrorIs(t, err, ErrInsufficientEntitlement)

	dec, err := engine.Evaluate(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.False(t, dec.HasAccess)
	assert.Equal(t, StatusNone, dec.Status)

	stored := reload(t, db, acc.ID)
	assert.Equal(t, 0, stored.FreePromptsRemaining)
}

func TestConsumeConcurrentLastPrompt(t *testing.T) {
	engine, db := newTestEngine(t, Config{})

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.FreePromptsRemaining = 1
	})

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Consume(context.Background(), acc.ID, KindChat)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientEntitlement)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one caller may spend the last prompt")

	stored := reload(t, db, acc.ID)
	assert.Equal(t, 0, stored.FreePromptsRemaining, "counter must never go negative")
}

func TestConsumeRaceLoserGetsStoredStatus(t *testing.T) {
	engine, db := newTestEngine(t, Config{})

	// A past_due subscriber spending their last restored free prompt:
	// losers of the decrement race must be told past_due, not none.
	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.SubscriptionStatus = StatusPastDue
		a.SubscriptionID = strPtr("sub_race")
		a.FreePromptsRemaining = 1
	})

	const n = 12
	var wg sync.WaitGroup
	decisions := make([]Decision, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = engine.Consume(context.Background(), acc.ID, KindChat)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i := range errs {
		if errs[i] == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, errs[i], ErrInsufficientEntitlement)
		assert.Equal(t, StatusPastDue, decisions[i].Status)
		assert.False(t, decisions[i].HasAccess)
	}
	assert.Equal(t, 1, succeeded)
}

func TestConsumePaidTier(t *testing.T) {
	engine, db := newTestEngine(t, Config{})
	future := time.Now().Add(24 * time.Hour)

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.SubscriptionStatus = StatusActive
		a.SubscriptionExpiresAt = &future
	})

	for i := 0; i < 2; i++ {
		dec, err := engine.Consume(context.Background(), acc.ID, KindChat)
		require.NoError(t, err)
		assert.Equal(t, UnlimitedPrompts, dec.PromptsRemaining)
	}
	_, err := engine.Consume(context.Background(), acc.ID, KindImage)
	require.NoError(t, err)

	stored := reload(t, db, acc.ID)
	assert.EqualValues(t, 2, stored.ChatPromptsUsed)
	assert.EqualValues(t, 1, stored.ImagePromptsUsed)
	assert.Equal(t, 0, stored.FreePromptsRemaining)
}

func TestConsumeDeniedWithoutEntitlement(t *testing.T) {
	engine, db := newTestEngine(t, Config{})

	acc := seedAccount(t, db, func(a *accounts.Account) {
		a.SubscriptionStatus = StatusPastDue
	})

	dec, err := engine.Consume(context.Background(), acc.ID, KindChat)
	assert.ErrorIs(t, err, ErrInsufficientEntitlement)
	assert.False(t, dec.HasAccess)
}

func TestConsumeUnknownAccount(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	_, err := engine.Consume(context.Background(), uuid.NewString(), KindChat)
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestConsumeDevBypassWritesNothing(t *testing.T) {
	engine, db := newTestEngine(t, Config{DevBypass: true})

	acc := seedAccount(t, db, nil)

	dec, err := engine.Consume(context.Background(), acc.ID, KindChat)
	require.NoError(t, err)
	assert.True(t, dec.HasAccess)

	stored := reload(t, db, acc.ID)
	assert.Zero(t, stored.ChatPromptsUsed)
	assert.Equal(t, 0, stored.FreePromptsRemaining)
}
