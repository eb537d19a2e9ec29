package models

import "time"

// PaymentWebhookEvent stores raw provider webhook deliveries with
// deduplication metadata. The unique (provider, provider_event_id) index is
// the idempotency guard: a redelivered event is recognized before any
// reconciliation logic runs.
type PaymentWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_payment_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_payment_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProcessedOK reports whether the delivery already went through processing
// without error. Only such events may be acknowledged as duplicates; a
// redelivery of a failed or interrupted event must be processed again, since
// provider retries are the recovery path for transient settlement failures.
func (e *PaymentWebhookEvent) ProcessedOK() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
