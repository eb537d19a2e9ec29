package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/internal/pkg/env"
)

const stripeSignatureTolerance = 5 * time.Minute

// Stripe event types the reconciliation handler acts on.
const (
	StripeEventPaymentSucceeded = "payment_intent.succeeded"
	StripeEventPaymentCanceled  = "payment_intent.canceled"
	StripeEventChargeRefunded   = "charge.refunded"
	StripeEventAccountUpdated   = "account.updated"
)

// StripeAdapter implements the card/Connect rail. Webhooks carry a
// Stripe-Signature header of the form "t=<unix>,v1=<hex hmac>" where the
// HMAC-SHA256 is computed over "<unix>.<raw body>".
type StripeAdapter struct {
	WebhookSecret string
	Tolerance     time.Duration

	now func() time.Time
}

// NewStripeAdapterFromEnv builds the adapter from environment configuration.
func NewStripeAdapterFromEnv() *StripeAdapter {
	return &StripeAdapter{
		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		Tolerance:     stripeSignatureTolerance,
		now:           time.Now,
	}
}

func (a *StripeAdapter) Name() string {
	return models.PaymentProviderStripe
}

// VerifySignature validates the Stripe-Signature header against the raw
// payload. Verification happens before any JSON parsing; a payload is not
// trusted until its signature checks out.
func (a *StripeAdapter) VerifySignature(payload []byte, signatureHeader string) bool {
	secret := strings.TrimSpace(a.WebhookSecret)
	header := strings.TrimSpace(signatureHeader)
	if secret == "" || header == "" {
		return false
	}

	var timestamp int64
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return false
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(kv[1])
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return false
	}

	nowFn := a.now
	if nowFn == nil {
		nowFn = time.Now
	}
	tolerance := a.Tolerance
	if tolerance <= 0 {
		tolerance = stripeSignatureTolerance
	}
	age := nowFn().Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return true
		}
	}
	return false
}

// MapProviderState maps a Stripe event type to an internal payment status.
func (a *StripeAdapter) MapProviderState(state string) (string, bool) {
	switch state {
	case StripeEventPaymentSucceeded:
		return models.PaymentStatusPaid, true
	case StripeEventPaymentCanceled:
		return models.PaymentStatusCancelled, true
	case StripeEventChargeRefunded:
		return models.PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// FundsReceived: on the card rail only "paid" means money moved. Stripe
// captures payment intents itself; there is no authorized interim state on
// this rail's webhooks.
func (a *StripeAdapter) FundsReceived(status string) bool {
	return status == models.PaymentStatusPaid
}

// ShouldAutoCapture is always false for Stripe; capture is provider-side.
func (a *StripeAdapter) ShouldAutoCapture(ev Event) bool {
	return false
}

// StripeWebhookEvent is the envelope Stripe posts.
type StripeWebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripePaymentObject struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// StripeAccountObject carries the organization-level capability flags from
// an account.updated event.
type StripeAccountObject struct {
	ID             string `json:"id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// ParseStripeWebhook parses the verified raw body into the event envelope.
func ParseStripeWebhook(payload []byte) (*StripeWebhookEvent, error) {
	var ev StripeWebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("parse stripe webhook: %w", err)
	}
	if ev.Type == "" {
		return nil, errors.New("stripe webhook has no event type")
	}
	return &ev, nil
}

// PaymentEvent extracts the normalized payment event from the envelope.
func (e *StripeWebhookEvent) PaymentEvent(adapter *StripeAdapter) (Event, error) {
	status, ok := adapter.MapProviderState(e.Type)
	if !ok {
		return Event{}, fmt.Errorf("stripe event type %s is not a payment event", e.Type)
	}

	var obj stripePaymentObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return Event{}, fmt.Errorf("parse stripe payment object: %w", err)
	}
	if obj.ID == "" {
		return Event{}, errors.New("stripe payment object has no id")
	}

	return Event{
		Provider:      models.PaymentProviderStripe,
		EventID:       e.ID,
		EventType:     e.Type,
		Reference:     obj.ID,
		ProviderState: e.Type,
		Status:        status,
		// Stripe reports minor units (øre/cents).
		Amount: decimal.New(obj.Amount, -2),
	}, nil
}

// AccountEvent extracts the connected-account capability flags.
func (e *StripeWebhookEvent) AccountEvent() (*StripeAccountObject, error) {
	if e.Type != StripeEventAccountUpdated {
		return nil, fmt.Errorf("stripe event type %s is not an account event", e.Type)
	}
	var obj StripeAccountObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("parse stripe account object: %w", err)
	}
	if obj.ID == "" {
		return nil, errors.New("stripe account object has no id")
	}
	return &obj, nil
}
