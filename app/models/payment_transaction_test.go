package models

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{from: PaymentStatusPending, to: PaymentStatusAuthorized, want: true},
		{from: PaymentStatusPending, to: PaymentStatusPaid, want: true},
		{from: PaymentStatusPending, to: PaymentStatusCancelled, want: true},
		{from: PaymentStatusAuthorized, to: PaymentStatusPaid, want: true},
		{from: PaymentStatusAuthorized, to: PaymentStatusCancelled, want: true},
		{from: PaymentStatusPaid, to: PaymentStatusRefunded, want: true},
		{from: PaymentStatusPaid, to: PaymentStatusPaid, want: false},
		{from: PaymentStatusPaid, to: PaymentStatusCancelled, want: false},
		{from: PaymentStatusAuthorized, to: PaymentStatusPending, want: false},
		{from: PaymentStatusCancelled, to: PaymentStatusPaid, want: false},
		{from: PaymentStatusRefunded, to: PaymentStatusPaid, want: false},
		{from: PaymentStatusRefunded, to: PaymentStatusRefunded, want: false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
