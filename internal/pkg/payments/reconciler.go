package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/app/repository"
	"github.com/medlemshub/medlemshub/internal/pkg/metrics/counter"
	"github.com/medlemshub/medlemshub/internal/pkg/settlement"
)

// Outcome classifies what a reconciliation did. Controllers use it to pick
// the HTTP status: everything except a settlement error is acknowledged to
// the provider so it stops redelivering.
type Outcome string

const (
	OutcomeSettled           Outcome = "settled"
	OutcomeStatusUpdated     Outcome = "status_updated"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeInvalidTransition Outcome = "invalid_transition"
)

// CaptureEnqueuer schedules a best-effort capture call back to the provider.
// Enqueue failures are logged, never returned to the provider.
type CaptureEnqueuer interface {
	EnqueueCapture(reference string, amount decimal.Decimal) error
}

// Notifier delivers the "subscription fully paid" side effect. Best-effort.
type Notifier interface {
	SubscriptionPaid(organizationID uint, paymentID uint)
}

// Reconciler is the single shared procedure both rails funnel into: look up
// the payment by provider reference, validate the status transition, settle
// when funds arrived, and trigger captures.
type Reconciler struct {
	payments   repository.PaymentRepository
	settlement *settlement.Service
	capture    CaptureEnqueuer
	notifier   Notifier
}

// NewReconciler creates a reconciler. capture and notifier may be nil when
// the rail never captures or notifications are disabled.
func NewReconciler(payments repository.PaymentRepository, svc *settlement.Service, capture CaptureEnqueuer, notifier Notifier) *Reconciler {
	return &Reconciler{
		payments:   payments,
		settlement: svc,
		capture:    capture,
		notifier:   notifier,
	}
}

// Reconcile applies one normalized provider event.
//
// Unknown references and invalid transitions are acknowledged without error:
// the provider must not retry forever over events we will never act on. A
// settlement failure is the one case that must propagate, so the provider
// redelivers the financial event instead of the platform silently losing a
// deduction for money already received.
func (r *Reconciler) Reconcile(ctx context.Context, adapter Adapter, ev Event) (Outcome, error) {
	payment, err := r.payments.GetByProviderReference(ev.Provider, ev.Reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Reconcile] %s event for unknown reference %s, dropping", ev.Provider, ev.Reference)
			return OutcomeNotFound, nil
		}
		return "", fmt.Errorf("lookup payment %s/%s: %w", ev.Provider, ev.Reference, err)
	}

	if !models.CanTransition(payment.Status, ev.Status) {
		log.Infof("[Reconcile] %s %s: ignoring %s -> %s (idempotent replay or out of order)",
			ev.Provider, ev.Reference, payment.Status, ev.Status)
		return OutcomeInvalidTransition, nil
	}

	// The provider's reported amount is authoritative for what was captured.
	if ev.Amount.GreaterThan(decimal.Zero) && !ev.Amount.Equal(payment.Amount) {
		log.Warnf("[Reconcile] %s %s: provider amount %s differs from recorded %s, using provider amount",
			ev.Provider, ev.Reference, ev.Amount, payment.Amount)
		payment.Amount = ev.Amount
	}

	outcome := OutcomeStatusUpdated
	if adapter.FundsReceived(ev.Status) {
		result, err := r.settlement.SettlePayment(ctx, payment, ev.Status)
		if err != nil {
			return "", fmt.Errorf("settle payment %s/%s: %w", ev.Provider, ev.Reference, err)
		}
		if result != nil {
			outcome = OutcomeSettled
			counter.AddSettlement(ev.Provider)
			if result.SubscriptionFullyPaid && r.notifier != nil {
				r.notifier.SubscriptionPaid(payment.OrganizationID, payment.ID)
			}
		}
	} else {
		payment.Status = ev.Status
		if err := r.payments.Update(payment); err != nil {
			return "", fmt.Errorf("update payment %s/%s: %w", ev.Provider, ev.Reference, err)
		}
		if ev.Status == models.PaymentStatusRefunded && r.settlement.ReverseOnRefund && payment.IsSettled() {
			if err := r.settlement.ReverseDeduction(ctx, payment); err != nil {
				return "", fmt.Errorf("reverse deduction %s/%s: %w", ev.Provider, ev.Reference, err)
			}
		}
	}

	if adapter.ShouldAutoCapture(ev) && r.capture != nil {
		// Fire-and-forget: capture never gates the provider response.
		if err := r.capture.EnqueueCapture(ev.Reference, payment.Amount); err != nil {
			log.Errorf("[Reconcile] %s %s: enqueue capture failed: %v", ev.Provider, ev.Reference, err)
		}
	}

	return outcome, nil
}
