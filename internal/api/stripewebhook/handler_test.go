package stripewebhooks

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"promptforge-backend/internal/domain/accounts"
	"promptforge-backend/internal/domain/billing"
	"promptforge-backend/internal/domain/entitlement"
	"promptforge-backend/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "whsec_test_secret"

type fakeRetriever struct {
	subs map[string]*stripeapi.Subscription

	// failures makes the next N lookups fail, like a provider outage.
	failures int
}

func (f *fakeRetriever) Subscription(id string) (*stripeapi.Subscription, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("stripe unavailable")
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	return sub, nil
}

type webhookFixture struct {
	db     *gorm.DB
	engine *entitlement.Engine
	subs   *fakeRetriever
	router *gin.Engine
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenTestDB(t)
	engine := entitlement.NewEngine(db, entitlement.Config{})
	subs := &fakeRetriever{subs: map[string]*stripeapi.Subscription{}}

	router := gin.New()
	router.POST("/webhook", NewHandler(db, engine, testSecret, subs).HandleWebhook)

	return &webhookFixture{db: db, engine: engine, subs: subs, router: router}
}

// post delivers a signed event payload and returns the recorder.
func (f *webhookFixture) post(t *testing.T, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	ts := time.Now()
	sig := webhook.ComputeSignature(ts, payload, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(sig)))

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func eventPayload(t *testing.T, id, eventType string, object interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]interface{}{
		"id":   id,
		"type": eventType,
		"data": map[string]interface{}{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return payload
}

func liveSubscription(id, customerID, priceID string, end time.Time) *stripeapi.Subscription {
	return &stripeapi.Subscription{
		ID:               id,
		Status:           stripeapi.SubscriptionStatusActive,
		CurrentPeriodEnd: end.Unix(),
		Customer:         &stripeapi.Customer{ID: customerID},
		Items: &stripeapi.SubscriptionItemList{
			Data: []*stripeapi.SubscriptionItem{{
				Price: &stripeapi.Price{ID: priceID},
			}},
		},
	}
}

func createAccount(t *testing.T, db *gorm.DB, mutate func(*accounts.Account)) *accounts.Account {
	t.Helper()
	acc := &accounts.Account{
		ID:                   uuid.NewString(),
		Name:                 "Webhook Test",
		Email:                uuid.NewString() + "@example.com",
		AuthProvider:         "local",
		Role:                 "user",
		SubscriptionStatus:   entitlement.StatusNone,
		FreePromptsRemaining: entitlement.FreePromptGrant,
	}
	if mutate != nil {
		mutate(acc)
	}
	require.NoError(t, db.Create(acc).Error)
	return acc
}

func loadAccount(t *testing.T, db *gorm.DB, id string) accounts.Account {
	t.Helper()
	var acc accounts.Account
	require.NoError(t, db.Where("id = ?", id).First(&acc).Error)
	return acc
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)

	payload := eventPayload(t, "evt_bad", "invoice.paid", map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWebhookIgnoresUnknownEventType(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.post(t, eventPayload(t, "evt_misc", "customer.created", map[string]string{"id": "cus_1"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestHandleWebhookDeduplicatesByEventID(t *testing.T) {
	f := newWebhookFixture(t)
	end := time.Now().Add(30 * 24 * time.Hour)

	acc := createAccount(t, f.db, func(a *accounts.Account) {
		a.SubscriptionID = strPtr("sub_dup")
		a.SubscriptionStatus = entitlement.StatusActive
		a.SubscriptionExpiresAt = &end
		a.FreePromptsRemaining = 0
	})
	f.subs.subs["sub_dup"] = liveSubscription("sub_dup", "cus_dup", "price_pro", end)

	invoice := map[string]interface{}{
		"id":           "in_dup",
		"amount_paid":  1999,
		"currency":     "usd",
		"status":       "paid",
		"subscription": "sub_dup",
	}
	payload := eventPayload(t, "evt_dup", "invoice.paid", invoice)

	first := f.post(t, payload)
	assert.Equal(t, http.StatusOK, first.Code)

	second := f.post(t, payload)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")

	var count int64
	require.NoError(t, f.db.Model(&billing.Payment{}).Where("account_id = ?", acc.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestHandleWebhookCheckoutCompleted(t *testing.T) {
	f := newWebhookFixture(t)
	end := time.Now().Add(30 * 24 * time.Hour)

	acc := createAccount(t, f.db, nil)
	f.subs.subs["sub_new"] = liveSubscription("sub_new", "cus_new", "price_pro", end)

	session := map[string]interface{}{
		"id":                   "cs_1",
		"client_reference_id":  acc.ID,
		"subscription":         "sub_new",
		"customer":             "cus_new",
		"metadata":             map[string]string{"account_id": acc.ID},
	}
	w := f.post(t, eventPayload(t, "evt_checkout", "checkout.session.completed", session))

	assert.Equal(t, http.StatusOK, w.Code)

	stored := loadAccount(t, f.db, acc.ID)
	require.NotNil(t, stored.SubscriptionID)
	assert.Equal(t, "sub_new", *stored.SubscriptionID)
	require.NotNil(t, stored.StripeCustomerID)
	assert.Equal(t, "cus_new", *stored.StripeCustomerID)
	assert.Equal(t, entitlement.StatusActive, stored.SubscriptionStatus)
	require.NotNil(t, stored.PlanPriceID)
	assert.Equal(t, "price_pro", *stored.PlanPriceID)
	assert.Equal(t, 0, stored.FreePromptsRemaining)
	require.NotNil(t, stored.SubscriptionExpiresAt)
}

func TestHandleWebhookSubscriptionDeleted(t *testing.T) {
	f := newWebhookFixture(t)
	end := time.Now().Add(30 * 24 * time.Hour)

	acc := createAccount(t, f.db, func(a *accounts.Account) {
		a.SubscriptionID = strPtr("sub_gone")
		a.SubscriptionStatus = entitlement.StatusActive
		a.SubscriptionExpiresAt = &end
		a.FreePromptsRemaining = 0
	})

	w := f.post(t, eventPayload(t, "evt_del", "customer.subscription.deleted", map[string]string{"id": "sub_gone"}))

	assert.Equal(t, http.StatusOK, w.Code)

	stored := loadAccount(t, f.db, acc.ID)
	assert.Equal(t, entitlement.StatusCanceled, stored.SubscriptionStatus)
	assert.Nil(t, stored.SubscriptionExpiresAt)
	assert.Equal(t, entitlement.FreePromptGrant, stored.FreePromptsRemaining)
}

func TestHandleWebhookPaymentFailed(t *testing.T) {
	f := newWebhookFixture(t)
	end := time.Now().Add(30 * 24 * time.Hour)

	acc := createAccount(t, f.db, func(a *accounts.Account) {
		a.SubscriptionID = strPtr("sub_fail")
		a.SubscriptionStatus = entitlement.StatusActive
		a.SubscriptionExpiresAt = &end
	})

	invoice := map[string]interface{}{
		"id":           "in_fail",
		"subscription": "sub_fail",
	}
	w := f.post(t, eventPayload(t, "evt_fail", "invoice.payment_failed", invoice))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entitlement.StatusPastDue, loadAccount(t, f.db, acc.ID).SubscriptionStatus)
}

func TestHandleWebhookUnknownAccountStillAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	payload := eventPayload(t, "evt_orphan", "customer.subscription.deleted", map[string]string{"id": "sub_orphan"})

	w := f.post(t, payload)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "received")

	// Redelivery cannot conjure the account, so the id was recorded.
	again := f.post(t, payload)
	assert.Equal(t, http.StatusOK, again.Code)
	assert.Contains(t, again.Body.String(), "duplicate")
}

func TestHandleWebhookRedeliveryAfterTransientFailure(t *testing.T) {
	f := newWebhookFixture(t)
	end := time.Now().Add(30 * 24 * time.Hour)

	acc := createAccount(t, f.db, func(a *accounts.Account) {
		a.SubscriptionID = strPtr("sub_flaky")
		a.SubscriptionStatus = entitlement.StatusActive
		a.SubscriptionExpiresAt = &end
		a.FreePromptsRemaining = 0
	})
	f.subs.subs["sub_flaky"] = liveSubscription("sub_flaky", "cus_flaky", "price_pro", end)
	f.subs.failures = 1

	invoice := map[string]interface{}{
		"id":           "in_flaky",
		"amount_paid":  1999,
		"currency":     "usd",
		"status":       "paid",
		"subscription": "sub_flaky",
	}
	payload := eventPayload(t, "evt_flaky", "invoice.paid", invoice)

	// First delivery hits the outage: acknowledged, nothing recorded.
	first := f.post(t, payload)
	assert.Equal(t, http.StatusOK, first.Code)

	var count int64
	require.NoError(t, f.db.Model(&billing.Payment{}).Where("account_id = ?", acc.ID).Count(&count).Error)
	assert.Zero(t, count)

	// Redelivery of the same event id must be reprocessed, not swallowed
	// as a duplicate.
	second := f.post(t, payload)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.NotContains(t, second.Body.String(), "duplicate")

	require.NoError(t, f.db.Model(&billing.Payment{}).Where("account_id = ?", acc.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestHandleWebhookMalformedPayloadAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	// Correctly signed, but data.object is not a subscription.
	payload := eventPayload(t, "evt_mangled", "customer.subscription.deleted", json.RawMessage(`[1,2,3]`))

	w := f.post(t, payload)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "received")
}

func strPtr(s string) *string { return &s }
