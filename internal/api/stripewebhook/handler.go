package stripewebhooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"promptforge-backend/internal/domain/billing"
	"promptforge-backend/internal/domain/entitlement"
	stripeinfra "promptforge-backend/internal/infra/stripe"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxBodyBytes = 65536

// Handler verifies, dedups and dispatches Stripe events. Signature failure
// is the only rejection; every other outcome is acknowledged so Stripe does
// not retry events that can never succeed.
type Handler struct {
	db            *gorm.DB
	engine        *entitlement.Engine
	webhookSecret string
	subs          stripeinfra.SubscriptionRetriever
}

func NewHandler(db *gorm.DB, engine *entitlement.Engine, webhookSecret string, subs stripeinfra.SubscriptionRetriever) *Handler {
	return &Handler{db: db, engine: engine, webhookSecret: webhookSecret, subs: subs}
}

func (h *Handler) HandleWebhook(c *gin.Context) {
	payload, err := readBody(c, maxBodyBytes)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.GetHeader("Stripe-Signature"),
		h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		log.Warn().Err(err).Msg("stripe signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	if seen, err := h.seen(event.ID); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("webhook event dedup lookup failed")
	} else if seen {
		log.Info().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("duplicate webhook event, acknowledging")
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.checkoutCompleted(c, event)
	case "customer.subscription.updated":
		h.subscriptionUpdated(c, event)
	case "invoice.paid":
		h.invoicePaid(c, event)
	case "customer.subscription.deleted":
		h.subscriptionDeleted(c, event)
	case "invoice.payment_failed":
		h.paymentFailed(c, event)
	default:
		log.Debug().Str("type", string(event.Type)).Msg("ignoring unhandled webhook event type")
		h.markProcessed(event)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

// seen reports whether the event id was already processed to completion.
func (h *Handler) seen(eventID string) (bool, error) {
	var count int64
	err := h.db.Model(&billing.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count > 0, err
}

// markProcessed records the event id once its outcome is final. Recording
// before the applier runs would turn a transient applier failure into a
// permanently lost event: the 200 ack stops provider retries and the dedup
// row would swallow any redelivery too.
func (h *Handler) markProcessed(event stripe.Event) {
	err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&billing.WebhookEvent{
		EventID:    event.ID,
		Type:       string(event.Type),
		ReceivedAt: time.Now(),
	}).Error
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("webhook event dedup write failed")
	}
}

// ack closes out an applier result, always with a 200. Success and unknown
// accounts are terminal, so the event id is recorded; any other applier
// error is left unrecorded so the provider's redelivery of the same id gets
// another attempt (the appliers are value-idempotent).
func (h *Handler) ack(c *gin.Context, event stripe.Event, err error) {
	switch {
	case err == nil:
		h.markProcessed(event)
	case errors.Is(err, entitlement.ErrUnknownAccount):
		log.Warn().Str("event_id", event.ID).Str("type", string(event.Type)).
			Msg("webhook references an account that does not exist")
		h.markProcessed(event)
	default:
		log.Error().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).
			Msg("failed to apply webhook event, awaiting redelivery")
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// ackMalformed logs a payload that cannot be decoded and acknowledges it.
// Redelivery carries the same bytes, so a retry can never succeed; only the
// signature gate is allowed to reject.
func ackMalformed(c *gin.Context, event stripe.Event, err error) {
	log.Warn().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).
		Msg("could not decode webhook payload, acknowledging")
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func readBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}

func unmarshalRaw(event stripe.Event, v interface{}) error {
	return json.Unmarshal(event.Data.Raw, v)
}
