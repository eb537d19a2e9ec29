package payments

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/internal/pkg/env"
)

// Vipps payment states as delivered on the callback.
const (
	VippsStateAuthorized = "AUTHORIZED"
	VippsStateCaptured   = "CAPTURED"
	VippsStateTerminated = "TERMINATED"
	VippsStateVoid       = "VOID"
	VippsStateRefunded   = "REFUNDED"
)

var vippsValidate = validator.New()

// VippsCallback is the payload the wallet provider posts to our callback URL.
type VippsCallback struct {
	Reference string `json:"reference" validate:"required"`
	State     string `json:"state" validate:"required,oneof=AUTHORIZED CAPTURED TERMINATED VOID REFUNDED"`
	Success   bool   `json:"success"`
	Amount    struct {
		// Value is in minor units (øre).
		Value    int64  `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

// VippsAdapter implements the mobile wallet rail. Callbacks are
// authenticated with a static bearer token agreed with the provider, not a
// payload signature.
type VippsAdapter struct {
	CallbackToken string
}

// NewVippsAdapterFromEnv builds the adapter from environment configuration.
func NewVippsAdapterFromEnv() *VippsAdapter {
	return &VippsAdapter{
		CallbackToken: strings.TrimSpace(env.GetEnv("VIPPS_CALLBACK_TOKEN", "")),
	}
}

func (a *VippsAdapter) Name() string {
	return models.PaymentProviderVipps
}

// VerifySignature compares the Authorization header value against the
// configured callback token in constant time.
func (a *VippsAdapter) VerifySignature(payload []byte, signatureHeader string) bool {
	_ = payload
	token := strings.TrimSpace(a.CallbackToken)
	header := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(signatureHeader), "Bearer "))
	if token == "" || header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(header)) == 1
}

// MapProviderState maps a wallet state to an internal payment status.
func (a *VippsAdapter) MapProviderState(state string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case VippsStateAuthorized:
		return models.PaymentStatusAuthorized, true
	case VippsStateCaptured:
		return models.PaymentStatusPaid, true
	case VippsStateTerminated, VippsStateVoid:
		return models.PaymentStatusCancelled, true
	case VippsStateRefunded:
		return models.PaymentStatusRefunded, true
	default:
		return "", false
	}
}

// FundsReceived: on the wallet rail an authorization already implies capture
// intent, so settlement runs at authorized as well as at paid.
func (a *VippsAdapter) FundsReceived(status string) bool {
	return status == models.PaymentStatusPaid || status == models.PaymentStatusAuthorized
}

// ShouldAutoCapture: an authorized wallet payment must be captured by us.
func (a *VippsAdapter) ShouldAutoCapture(ev Event) bool {
	return strings.EqualFold(ev.ProviderState, VippsStateAuthorized)
}

// ParseVippsCallback parses and validates the callback payload.
func ParseVippsCallback(payload []byte) (*VippsCallback, error) {
	var cb VippsCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("parse vipps callback: %w", err)
	}
	if err := vippsValidate.Struct(&cb); err != nil {
		return nil, fmt.Errorf("invalid vipps callback: %w", err)
	}
	return &cb, nil
}

// Event converts the callback into the normalized event form.
func (cb *VippsCallback) Event(adapter *VippsAdapter) (Event, error) {
	status, ok := adapter.MapProviderState(cb.State)
	if !ok {
		return Event{}, fmt.Errorf("unhandled vipps state %q", cb.State)
	}
	return Event{
		Provider:      models.PaymentProviderVipps,
		EventID:       fmt.Sprintf("%s:%s", cb.Reference, strings.ToUpper(cb.State)),
		EventType:     strings.ToUpper(cb.State),
		Reference:     cb.Reference,
		ProviderState: strings.ToUpper(cb.State),
		Status:        status,
		Amount:        decimal.New(cb.Amount.Value, -2),
	}, nil
}

// VippsClient calls the wallet provider's payment API. Only the capture
// endpoint is needed here; payment creation happens in the checkout flow.
type VippsClient struct {
	BaseURL         string
	SubscriptionKey string
	AccessToken     string

	HTTPClient *http.Client
}

// NewVippsClientFromEnv builds the client from environment configuration.
func NewVippsClientFromEnv() *VippsClient {
	return &VippsClient{
		BaseURL:         strings.TrimRight(env.GetEnv("VIPPS_API_BASE_URL", "https://api.vipps.no"), "/"),
		SubscriptionKey: strings.TrimSpace(env.GetEnv("VIPPS_SUBSCRIPTION_KEY", "")),
		AccessToken:     strings.TrimSpace(env.GetEnv("VIPPS_ACCESS_TOKEN", "")),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type vippsCaptureRequest struct {
	ModificationAmount struct {
		Value    int64  `json:"value"`
		Currency string `json:"currency"`
	} `json:"modificationAmount"`
}

// Capture converts an authorized payment into a fund-moving transaction.
// The idempotency key is derived from the reference so repeated capture
// attempts against the same authorization are safe.
func (c *VippsClient) Capture(ctx context.Context, reference string, amount decimal.Decimal) error {
	if strings.TrimSpace(reference) == "" {
		return fmt.Errorf("capture requires a reference")
	}

	var body vippsCaptureRequest
	body.ModificationAmount.Value = amount.Mul(decimal.NewFromInt(100)).IntPart()
	body.ModificationAmount.Currency = "NOK"
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal capture request: %w", err)
	}

	url := fmt.Sprintf("%s/epayment/v1/payments/%s/capture", c.BaseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.SubscriptionKey)
	req.Header.Set("Idempotency-Key", reference+"-capture")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("capture %s: %w", reference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("capture %s: provider returned %d: %s", reference, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
