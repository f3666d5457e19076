package billing

import (
	"time"
)

// Payment is one settled invoice, recorded from the invoice.paid webhook.
// InvoiceID is unique so redelivered events cannot double-record.
type Payment struct {
	ID                   uint   `gorm:"primaryKey"`
	AccountID            string `gorm:"type:uuid;index;not null"`
	StripeSubscriptionID string
	InvoiceID            string `gorm:"uniqueIndex:idx_payments_invoice_id;not null"`
	Amount               float64
	Currency             string
	Status               string
	ReceiptURL           *string
	CreatedAt            time.Time
}
