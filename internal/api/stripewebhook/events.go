package stripewebhooks

import (
	"net/http"

	"promptforge-backend/internal/domain/billing"
	"promptforge-backend/internal/domain/entitlement"
	stripeinfra "promptforge-backend/internal/infra/stripe"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v75"
)

// checkoutCompleted links the new subscription to the account carried in
// the session metadata. The live subscription is fetched by id rather than
// trusting session snapshot fields.
func (h *Handler) checkoutCompleted(c *gin.Context, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := unmarshalRaw(event, &session); err != nil {
		ackMalformed(c, event, err)
		return
	}

	accountID := session.ClientReferenceID
	if accountID == "" && session.Metadata != nil {
		accountID = session.Metadata["account_id"]
	}
	if accountID == "" || session.Subscription == nil || session.Subscription.ID == "" {
		log.Warn().Str("event_id", event.ID).Msg("checkout session missing account reference or subscription")
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	sub, err := h.subs.Subscription(session.Subscription.ID)
	if err != nil {
		h.ack(c, event, err)
		return
	}

	st := subscriptionState(sub)
	if st.CustomerID == "" && session.Customer != nil {
		st.CustomerID = session.Customer.ID
	}

	h.ack(c, event, h.engine.ApplyCheckout(c.Request.Context(), accountID, st))
}

// subscriptionUpdated carries the full subscription object, so state is
// re-derived from the payload directly.
func (h *Handler) subscriptionUpdated(c *gin.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := unmarshalRaw(event, &sub); err != nil {
		ackMalformed(c, event, err)
		return
	}
	if sub.ID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	h.ack(c, event, h.engine.ApplySubscriptionUpdate(c.Request.Context(), subscriptionState(&sub)))
}

// invoicePaid carries only a subscription reference; the authoritative
// object is fetched before re-deriving state, then the ledger row is added.
func (h *Handler) invoicePaid(c *gin.Context, event stripe.Event) {
	var invoice stripe.Invoice
	if err := unmarshalRaw(event, &invoice); err != nil {
		ackMalformed(c, event, err)
		return
	}
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	sub, err := h.subs.Subscription(invoice.Subscription.ID)
	if err != nil {
		h.ack(c, event, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.engine.ApplySubscriptionUpdate(ctx, subscriptionState(sub)); err != nil {
		h.ack(c, event, err)
		return
	}

	payment := billing.Payment{
		InvoiceID: invoice.ID,
		Amount:    float64(invoice.AmountPaid) / 100.0,
		Currency:  string(invoice.Currency),
		Status:    string(invoice.Status),
	}
	if invoice.HostedInvoiceURL != "" {
		url := invoice.HostedInvoiceURL
		payment.ReceiptURL = &url
	}
	h.ack(c, event, h.engine.RecordPayment(ctx, sub.ID, payment))
}

func (h *Handler) subscriptionDeleted(c *gin.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := unmarshalRaw(event, &sub); err != nil {
		ackMalformed(c, event, err)
		return
	}
	if sub.ID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	h.ack(c, event, h.engine.ApplySubscriptionDeleted(c.Request.Context(), sub.ID))
}

func (h *Handler) paymentFailed(c *gin.Context, event stripe.Event) {
	var invoice stripe.Invoice
	if err := unmarshalRaw(event, &invoice); err != nil {
		ackMalformed(c, event, err)
		return
	}
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	h.ack(c, event, h.engine.ApplyPaymentFailed(c.Request.Context(), invoice.Subscription.ID))
}

// subscriptionState flattens a Stripe subscription into the engine's
// snapshot. A period end that cannot be determined at all is stored as
// unknown expiry, which the engine treats as "do not lapse".
func subscriptionState(sub *stripe.Subscription) entitlement.SubscriptionState {
	st := entitlement.SubscriptionState{
		SubscriptionID: sub.ID,
		Status:         stripeinfra.NormalizeStatus(sub.Status),
		PriceID:        stripeinfra.PriceID(sub),
	}
	if sub.Customer != nil {
		st.CustomerID = sub.Customer.ID
	}
	if end, err := stripeinfra.PeriodEnd(sub); err != nil {
		log.Warn().Err(err).Str("subscription_id", sub.ID).Msg("could not determine period end")
	} else {
		st.ExpiresAt = &end
	}
	return st
}
