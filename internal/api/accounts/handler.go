package accounts

import (
	"net/http"
	"time"

	"promptforge-backend/database"
	"promptforge-backend/internal/domain/accounts"
	"promptforge-backend/internal/domain/billing"
	"promptforge-backend/internal/domain/conversations"
	"promptforge-backend/internal/domain/entitlement"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type MeResponse struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	Role                  string     `json:"role"`
	AuthProvider          string     `json:"auth_provider"`
	SubscriptionStatus    string     `json:"subscription_status"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	PlanPriceID           *string    `json:"plan_price_id,omitempty"`
	HasBillingCustomer    bool       `json:"has_billing_customer"`

	Entitlement entitlement.Decision `json:"entitlement"`
}

// Handler needs the engine so /me can carry the live entitlement decision.
type Handler struct {
	engine *entitlement.Engine
}

func NewHandler(engine *entitlement.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) GetCurrentAccount(c *gin.Context) {
	accountID := c.GetString("account_id")
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	// Evaluate first so /me never shows an uncorrected lapsed status.
	dec, err := h.engine.Evaluate(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	var acc accounts.Account
	if err := database.DB.Where("id = ?", accountID).First(&acc).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		ID:                    acc.ID,
		Name:                  acc.Name,
		Email:                 acc.Email,
		Role:                  acc.Role,
		AuthProvider:          acc.AuthProvider,
		SubscriptionStatus:    acc.SubscriptionStatus,
		SubscriptionExpiresAt: acc.SubscriptionExpiresAt,
		PlanPriceID:           acc.PlanPriceID,
		HasBillingCustomer:    acc.StripeCustomerID != nil && *acc.StripeCustomerID != "",
		Entitlement:           dec,
	})
}

// DeleteAccount irreversibly purges the account and everything it owns:
// conversations, messages, payment ledger rows, then the account itself.
func (h *Handler) DeleteAccount(c *gin.Context) {
	accountID := c.GetString("account_id")
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var convIDs []string
		if err := tx.Model(&conversations.Conversation{}).
			Where("account_id = ?", accountID).
			Pluck("id", &convIDs).Error; err != nil {
			return err
		}
		if len(convIDs) > 0 {
			if err := tx.Where("conversation_id IN ?", convIDs).
				Delete(&conversations.Message{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("account_id = ?", accountID).
			Delete(&conversations.Conversation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).
			Delete(&billing.Payment{}).Error; err != nil {
			return err
		}

		res := tx.Where("id = ?", accountID).Delete(&accounts.Account{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("account purge failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}
