package billing

import "time"

// WebhookEvent records every verified provider event by its provider-side
// ID. Stripe redelivers on timeout; the unique index lets the webhook
// handler acknowledge a replay without reprocessing it.
type WebhookEvent struct {
	ID         uint   `gorm:"primaryKey"`
	EventID    string `gorm:"uniqueIndex:idx_webhook_events_event_id;not null"`
	Type       string `gorm:"not null"`
	ReceivedAt time.Time
}
