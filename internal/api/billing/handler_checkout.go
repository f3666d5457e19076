package billing

import (
	"net/http"

	"promptforge-backend/config"
	"promptforge-backend/database"
	"promptforge-backend/internal/domain/accounts"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v75"
	portalsession "github.com/stripe/stripe-go/v75/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v75/checkout/session"
	"github.com/stripe/stripe-go/v75/customer"
	"github.com/stripe/stripe-go/v75/price"
)

// CreateCheckoutSession returns a Stripe-hosted checkout URL for the given
// price. A billing customer is created lazily on first checkout and its id
// persisted; it never changes afterwards. Provider failures come back as a
// generic message, the real error goes to the log only.
func CreateCheckoutSession(c *gin.Context) {
	var body struct {
		PriceID string `json:"price_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid price_id"})
		return
	}

	accountID := c.GetString("account_id")
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account not identified"})
		return
	}

	var acc accounts.Account
	if err := database.DB.Where("id = ?", accountID).First(&acc).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account not found"})
		return
	}

	// Allow-list against Stripe itself: only active recurring prices.
	p, err := price.Get(body.PriceID, nil)
	if err != nil || !p.Active || p.Recurring == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan/price_id"})
		return
	}

	if acc.StripeCustomerID == nil || *acc.StripeCustomerID == "" {
		cus, err := customer.New(&stripe.CustomerParams{
			Email: stripe.String(acc.Email),
			Metadata: map[string]string{
				"account_id": acc.ID,
			},
		})
		if err != nil {
			log.Error().Err(err).Str("account_id", acc.ID).Msg("failed to create stripe customer")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to start checkout. Please try again."})
			return
		}

		if err := database.DB.Model(&accounts.Account{}).
			Where("id = ? AND stripe_customer_id IS NULL", acc.ID).
			Update("stripe_customer_id", cus.ID).Error; err != nil {
			log.Error().Err(err).Str("account_id", acc.ID).Msg("failed to store stripe customer id")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to start checkout. Please try again."})
			return
		}

		acc.StripeCustomerID = stripe.String(cus.ID)
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(config.APP_URL + "/payment-success?payment_status=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(config.APP_URL + "/payment-cancel"),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   acc.StripeCustomerID,

		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(body.PriceID), Quantity: stripe.Int64(1)},
		},

		ClientReferenceID: stripe.String(acc.ID),

		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"account_id": acc.ID,
			},
		},
	}

	s, err := checkoutsession.New(params)
	if err != nil {
		log.Error().Err(err).Str("account_id", acc.ID).Msg("failed to create checkout session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to start checkout. Please try again."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": s.URL})
}

// CreateBillingPortal returns the Stripe self-service portal URL. 404 when
// the account never checked out (no customer to manage yet).
func CreateBillingPortal(c *gin.Context) {
	accountID := c.GetString("account_id")
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account not identified"})
		return
	}

	var acc accounts.Account
	if err := database.DB.Where("id = ?", accountID).First(&acc).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account not found"})
		return
	}
	if acc.StripeCustomerID == nil || *acc.StripeCustomerID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No billing customer yet (subscribe first)"})
		return
	}

	portal, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  acc.StripeCustomerID,
		ReturnURL: stripe.String(config.APP_URL + "/account"),
	})
	if err != nil {
		log.Error().Err(err).Str("account_id", acc.ID).Msg("failed to create billing portal session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to open the billing portal. Please try again."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": portal.URL})
}
