package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/price"
)

type PlanDTO struct {
	PriceID    string  `json:"price_id"`
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name"`
	Currency   string  `json:"currency"`
	UnitAmount float64 `json:"unit_amount"` // major units
	Interval   string  `json:"interval"`    // month/year
}

// ListPlans proxies the active recurring prices from Stripe. Plans live at
// the provider only; there is no local plan table to drift out of sync.
func ListPlans(c *gin.Context) {
	params := &stripe.PriceListParams{}
	params.Active = stripe.Bool(true)
	params.Type = stripe.String("recurring")
	params.AddExpand("data.product")

	it := price.List(params)

	plans := []PlanDTO{}
	for it.Next() {
		p := it.Price()

		if !p.Active || p.Recurring == nil {
			continue
		}
		if p.Product == nil || !p.Product.Active {
			continue
		}
		if p.Metadata["visible"] == "false" {
			continue
		}

		plans = append(plans, PlanDTO{
			PriceID:    p.ID,
			ProductID:  p.Product.ID,
			Name:       p.Product.Name,
			Currency:   string(p.Currency),
			UnitAmount: float64(p.UnitAmount) / 100.0,
			Interval:   string(p.Recurring.Interval),
		})
	}

	if err := it.Err(); err != nil {
		log.Error().Err(err).Msg("failed to list stripe prices")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch plans"})
		return
	}

	c.JSON(http.StatusOK, plans)
}
