package models

import (
	"testing"
	"time"
)

func TestWebhookEventProcessedOK(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		event PaymentWebhookEvent
		want  bool
	}{
		{name: "never processed", event: PaymentWebhookEvent{}, want: false},
		{name: "processed clean", event: PaymentWebhookEvent{ProcessedAt: &now}, want: true},
		{name: "processed with error", event: PaymentWebhookEvent{ProcessedAt: &now, ProcessingError: "settlement failed"}, want: false},
	}

	for _, tt := range tests {
		if got := tt.event.ProcessedOK(); got != tt.want {
			t.Fatalf("%s: ProcessedOK() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
