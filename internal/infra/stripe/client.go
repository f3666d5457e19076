package stripe

import (
	stripeapi "github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/subscription"
)

// SubscriptionRetriever fetches the authoritative subscription object.
// Webhook handling re-derives state from this rather than trusting event
// payload fields when the event carries only an id.
type SubscriptionRetriever interface {
	Subscription(id string) (*stripeapi.Subscription, error)
}

// LiveRetriever hits the Stripe API with the process-wide key.
type LiveRetriever struct{}

func (LiveRetriever) Subscription(id string) (*stripeapi.Subscription, error) {
	return subscription.Get(id, nil)
}
