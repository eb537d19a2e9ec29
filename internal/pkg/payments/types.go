package payments

import "github.com/shopspring/decimal"

// Event is the normalized form of one provider callback that targets a
// payment transaction. Adapters translate their provider's vocabulary into
// this shape before the shared reconciliation procedure runs.
type Event struct {
	Provider      string
	EventID       string
	EventType     string
	Reference     string
	ProviderState string
	// Status is the internal payment status the provider state maps to.
	Status string
	// Amount is the gross amount the provider reports, in currency units.
	Amount decimal.Decimal
}

// Adapter is the capability set a payment rail must provide. One adapter
// exists per rail; everything else is shared.
type Adapter interface {
	Name() string
	// VerifySignature checks the raw payload against the rail's signing or
	// token scheme. It runs before any parsing.
	VerifySignature(payload []byte, signatureHeader string) bool
	// MapProviderState translates a provider state to an internal payment
	// status. ok is false for states we do not act on.
	MapProviderState(state string) (status string, ok bool)
	// FundsReceived reports whether reaching the given internal status on
	// this rail means money has arrived and settlement must run.
	FundsReceived(status string) bool
	// ShouldAutoCapture reports whether this event requires a capture call
	// back to the provider.
	ShouldAutoCapture(ev Event) bool
}
