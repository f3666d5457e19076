package stripe

import (
	"strings"

	stripeapi "github.com/stripe/stripe-go/v75"
)

// NormalizeStatus maps Stripe's subscription status vocabulary onto the
// engine's. Unknown values pass through untouched so a new provider status
// degrades to "no access" instead of crashing.
func NormalizeStatus(s stripeapi.SubscriptionStatus) string {
	switch s {
	case stripeapi.SubscriptionStatusActive:
		return "active"
	case stripeapi.SubscriptionStatusTrialing:
		return "trialing"
	case stripeapi.SubscriptionStatusPastDue, stripeapi.SubscriptionStatusUnpaid:
		return "past_due"
	case stripeapi.SubscriptionStatusCanceled, stripeapi.SubscriptionStatusIncompleteExpired:
		return "canceled"
	default:
		return strings.TrimSpace(string(s))
	}
}
