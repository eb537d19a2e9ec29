package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medlemshub/medlemshub/app/models"
)

func signStripe(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func newTestStripeAdapter(secret string, now time.Time) *StripeAdapter {
	return &StripeAdapter{
		WebhookSecret: secret,
		Tolerance:     5 * time.Minute,
		now:           func() time.Time { return now },
	}
}

func TestStripeVerifySignature(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	adapter := newTestStripeAdapter("whsec_test", now)

	t.Run("valid", func(t *testing.T) {
		header := signStripe("whsec_test", now.Unix(), payload)
		assert.True(t, adapter.VerifySignature(payload, header))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := signStripe("whsec_other", now.Unix(), payload)
		assert.False(t, adapter.VerifySignature(payload, header))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signStripe("whsec_test", now.Unix(), payload)
		assert.False(t, adapter.VerifySignature([]byte(`{"id":"evt_2"}`), header))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := now.Add(-6 * time.Minute).Unix()
		header := signStripe("whsec_test", old, payload)
		assert.False(t, adapter.VerifySignature(payload, header))
	})

	t.Run("within tolerance", func(t *testing.T) {
		recent := now.Add(-4 * time.Minute).Unix()
		header := signStripe("whsec_test", recent, payload)
		assert.True(t, adapter.VerifySignature(payload, header))
	})

	t.Run("garbage header", func(t *testing.T) {
		assert.False(t, adapter.VerifySignature(payload, "not-a-signature"))
	})

	t.Run("missing secret", func(t *testing.T) {
		empty := newTestStripeAdapter("", now)
		header := signStripe("whsec_test", now.Unix(), payload)
		assert.False(t, empty.VerifySignature(payload, header))
	})
}

func TestStripeMapProviderState(t *testing.T) {
	adapter := &StripeAdapter{}

	tests := []struct {
		eventType  string
		wantStatus string
		wantOK     bool
	}{
		{"payment_intent.succeeded", models.PaymentStatusPaid, true},
		{"payment_intent.canceled", models.PaymentStatusCancelled, true},
		{"charge.refunded", models.PaymentStatusRefunded, true},
		{"customer.created", "", false},
		{"account.updated", "", false},
	}

	for _, tt := range tests {
		status, ok := adapter.MapProviderState(tt.eventType)
		assert.Equal(t, tt.wantOK, ok, tt.eventType)
		assert.Equal(t, tt.wantStatus, status, tt.eventType)
	}
}

func TestStripePaymentEvent(t *testing.T) {
	body := []byte(`{
		"id": "evt_123",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_abc", "amount": 10000, "currency": "nok"}}
	}`)

	envelope, err := ParseStripeWebhook(body)
	require.NoError(t, err)

	ev, err := envelope.PaymentEvent(&StripeAdapter{})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentProviderStripe, ev.Provider)
	assert.Equal(t, "evt_123", ev.EventID)
	assert.Equal(t, "pi_abc", ev.Reference)
	assert.Equal(t, models.PaymentStatusPaid, ev.Status)
	assert.True(t, ev.Amount.Equal(mustDecimal(t, "100.00")), "amount was %s", ev.Amount)
}

func TestStripePaymentEventRejectsNonPaymentType(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"account.updated","data":{"object":{"id":"acct_1"}}}`)
	envelope, err := ParseStripeWebhook(body)
	require.NoError(t, err)

	_, err = envelope.PaymentEvent(&StripeAdapter{})
	assert.Error(t, err)
}

func TestStripeAccountEvent(t *testing.T) {
	body := []byte(`{
		"id": "evt_9",
		"type": "account.updated",
		"data": {"object": {"id": "acct_42", "charges_enabled": true, "payouts_enabled": false}}
	}`)

	envelope, err := ParseStripeWebhook(body)
	require.NoError(t, err)

	acct, err := envelope.AccountEvent()
	require.NoError(t, err)
	assert.Equal(t, "acct_42", acct.ID)
	assert.True(t, acct.ChargesEnabled)
	assert.False(t, acct.PayoutsEnabled)
}

func TestParseStripeWebhookRejectsMissingType(t *testing.T) {
	_, err := ParseStripeWebhook([]byte(`{"id":"evt_1"}`))
	assert.Error(t, err)

	_, err = ParseStripeWebhook([]byte(`not json`))
	assert.Error(t, err)
}
