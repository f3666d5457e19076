package billing

import (
	"net/http"

	"promptforge-backend/database"
	"promptforge-backend/internal/domain/billing"

	"github.com/gin-gonic/gin"
)

type PaymentDTO struct {
	ID         uint    `json:"id"`
	InvoiceID  string  `json:"invoice_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Status     string  `json:"status"`
	ReceiptURL *string `json:"receipt_url,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// GetPaymentHistory lists the caller's settled invoices, newest first.
func GetPaymentHistory(c *gin.Context) {
	accountID := c.GetString("account_id")
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account not identified"})
		return
	}

	var payments []billing.Payment
	if err := database.DB.
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&payments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payments"})
		return
	}

	out := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		out = append(out, PaymentDTO{
			ID:         p.ID,
			InvoiceID:  p.InvoiceID,
			Amount:     p.Amount,
			Currency:   p.Currency,
			Status:     p.Status,
			ReceiptURL: p.ReceiptURL,
			CreatedAt:  p.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	c.JSON(http.StatusOK, out)
}
