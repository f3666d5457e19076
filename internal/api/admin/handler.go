package admin

import (
	"net/http"
	"time"

	"promptforge-backend/database"
	"promptforge-backend/internal/domain/accounts"
	"promptforge-backend/internal/domain/billing"

	"github.com/gin-gonic/gin"
)

type AdminAccount struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	Role                  string     `json:"role"`
	SubscriptionStatus    string     `json:"subscription_status"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	PlanPriceID           *string    `json:"plan_price_id,omitempty"`
	FreePromptsRemaining  int        `json:"free_prompts_remaining"`
	ChatPromptsUsed       int64      `json:"chat_prompts_used"`
	ImagePromptsUsed      int64      `json:"image_prompts_used"`
	StripeCustomerID      *string    `json:"stripe_customer_id,omitempty"`
	SubscriptionID        *string    `json:"subscription_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

func toAdminAccount(a accounts.Account) AdminAccount {
	return AdminAccount{
		ID:                    a.ID,
		Name:                  a.Name,
		Email:                 a.Email,
		Role:                  a.Role,
		SubscriptionStatus:    a.SubscriptionStatus,
		SubscriptionExpiresAt: a.SubscriptionExpiresAt,
		PlanPriceID:           a.PlanPriceID,
		FreePromptsRemaining:  a.FreePromptsRemaining,
		ChatPromptsUsed:       a.ChatPromptsUsed,
		ImagePromptsUsed:      a.ImagePromptsUsed,
		StripeCustomerID:      a.StripeCustomerID,
		SubscriptionID:        a.SubscriptionID,
		CreatedAt:             a.CreatedAt,
	}
}

func ListAllAccounts(c *gin.Context) {
	var accs []accounts.Account
	if err := database.DB.Order("created_at DESC").Find(&accs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load accounts"})
		return
	}

	out := make([]AdminAccount, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAdminAccount(a))
	}
	c.JSON(http.StatusOK, out)
}

func GetAccountDetails(c *gin.Context) {
	id := c.Param("id")

	var acc accounts.Account
	if err := database.DB.Where("id = ?", id).First(&acc).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	var payments []billing.Payment
	_ = database.DB.Where("account_id = ?", id).Order("created_at DESC").Find(&payments).Error

	c.JSON(http.StatusOK, gin.H{
		"account":  toAdminAccount(acc),
		"payments": payments,
	})
}
