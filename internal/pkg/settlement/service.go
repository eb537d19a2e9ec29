package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/internal/pkg/pricing"
)

// Result is what one settlement produced. The caller persists a notification
// or triggers a capture based on it; the ledger and payment writes have
// already happened by the time a Result is returned.
type Result struct {
	SubscriptionDeduction decimal.Decimal `json:"subscription_deduction"`
	ServiceFee            decimal.Decimal `json:"service_fee"`
	PayoutToOrganization  decimal.Decimal `json:"payout_to_organization"`
	RemainingBalance      decimal.Decimal `json:"remaining_balance"`
	SubscriptionFullyPaid bool            `json:"subscription_fully_paid"`
	RolledOver            bool            `json:"rolled_over"`
}

// breakdown is the audit blob stored on the payment transaction.
type breakdown struct {
	BalanceBefore decimal.Decimal `json:"balance_before"`
	Deduction     decimal.Decimal `json:"deduction"`
	ServiceFee    decimal.Decimal `json:"service_fee"`
	FlatFee       decimal.Decimal `json:"flat_fee"`
	Rate          decimal.Decimal `json:"rate"`
	Payout        decimal.Decimal `json:"payout"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	RolledOver    bool            `json:"rolled_over"`
	SettledAt     time.Time       `json:"settled_at"`
}

// Service is the settlement orchestrator: the single place where money math
// happens. Every payment-confirmation path must go through it exactly once
// per confirmed payment.
type Service struct {
	repo  Repository
	plans *pricing.Catalog

	// ReverseOnRefund controls whether refunding a settled payment adds the
	// subscription deduction back onto the balance. The default is false:
	// refunds are terminal and the ledger is not reversed.
	ReverseOnRefund bool

	now func() time.Time
}

// NewService creates a settlement service from an injected repository.
func NewService(repo Repository, plans *pricing.Catalog) *Service {
	return &Service{repo: repo, plans: plans, now: time.Now}
}

// NewServiceFromDB creates a settlement service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, plans *pricing.Catalog) *Service {
	return NewService(NewRepository(db), plans)
}

// Settle applies one confirmed payment amount to an organization's
// subscription ledger. The ledger read-modify-write runs in one transaction
// with the subscription row locked, so concurrent settlements against the
// same organization serialize.
func (s *Service) Settle(ctx context.Context, organizationID uint, amount decimal.Decimal) (*Result, error) {
	_ = ctx
	var result *Result
	err := s.repo.Transaction(func(tx Repository) error {
		r, err := s.settleLocked(tx, organizationID, amount, nil, "")
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SettlePayment settles a payment transaction and writes the new status plus
// the fee breakdown onto it, all inside the same database transaction as the
// ledger commit. A payment that is already settled only gets its status
// updated; the ledger is not touched a second time.
func (s *Service) SettlePayment(ctx context.Context, payment *models.PaymentTransaction, newStatus string) (*Result, error) {
	_ = ctx
	if payment == nil {
		return nil, errors.New("payment is required")
	}

	var result *Result
	err := s.repo.Transaction(func(tx Repository) error {
		if payment.IsSettled() {
			payment.Status = newStatus
			return tx.SavePayment(payment)
		}
		r, err := s.settleLocked(tx, payment.OrganizationID, payment.Amount, payment, newStatus)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settleLocked runs inside an open transaction. When payment is non-nil the
// fee breakdown and newStatus are written onto it alongside the ledger commit.
func (s *Service) settleLocked(tx Repository, organizationID uint, amount decimal.Decimal, payment *models.PaymentTransaction, newStatus string) (*Result, error) {
	org, err := tx.GetOrganization(organizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id=%d", ErrOrganizationNotFound, organizationID)
		}
		return nil, fmt.Errorf("load organization: %w", err)
	}
	cfg := s.plans.ConfigFor(org.PricingPlan)

	sub, err := tx.GetSubscriptionForUpdate(organizationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: organization_id=%d", ErrSubscriptionNotFound, organizationID)
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	now := s.now()
	balance := sub.Balance
	year := sub.Year
	paidAt := sub.PaidAt
	rolledOver := false
	if sub.IsStale(now) {
		// Rollover-on-read: a stale row is reset before any deduction logic
		// runs, and the reset is persisted even if nothing else changes.
		balance = cfg.AnnualFee
		year = now.Year()
		paidAt = nil
		rolledOver = true
	}

	split := ComputeSplit(cfg, balance, amount)

	newPaidAt := paidAt
	if split.FullyPaidNow && newPaidAt == nil {
		t := now
		newPaidAt = &t
	}

	if err := tx.CommitSubscription(organizationID, split.BalanceAfter, year, newPaidAt); err != nil {
		return nil, fmt.Errorf("commit subscription: %w", err)
	}

	if payment != nil {
		raw, err := json.Marshal(breakdown{
			BalanceBefore: balance,
			Deduction:     split.Deduction,
			ServiceFee:    split.ServiceFee,
			FlatFee:       cfg.FlatFee,
			Rate:          cfg.Rate,
			Payout:        split.Payout,
			BalanceAfter:  split.BalanceAfter,
			RolledOver:    rolledOver,
			SettledAt:     now,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal breakdown: %w", err)
		}

		payment.Status = newStatus
		payment.SubscriptionDeduction = split.Deduction
		payment.ServiceFee = split.ServiceFee
		payment.TransactionFee = cfg.FlatFee
		payment.NetToOrganization = split.Payout
		payment.BreakdownJSON = string(raw)
		settledAt := now
		payment.SettledAt = &settledAt
		if err := tx.SavePayment(payment); err != nil {
			return nil, fmt.Errorf("save payment: %w", err)
		}
	}

	return &Result{
		SubscriptionDeduction: split.Deduction,
		ServiceFee:            split.ServiceFee,
		PayoutToOrganization:  split.Payout,
		RemainingBalance:      split.BalanceAfter,
		SubscriptionFullyPaid: split.FullyPaidNow,
		RolledOver:            rolledOver,
	}, nil
}

// RolloverStale resets every organization whose billing year has fallen
// behind, one batch per pricing plan so each plan's annual fee applies,
// then a catch-all batch at the default fee for plan values the catalog
// does not know. The lazy rollover inside settleLocked stays active
// regardless: a payment can settle before the scheduled job runs.
func (s *Service) RolloverStale(ctx context.Context, now time.Time) (int64, error) {
	_ = ctx
	year := now.Year()
	var total int64
	known := make([]string, 0, len(s.plans.Plans()))
	for _, plan := range s.plans.Plans() {
		cfg := s.plans.ConfigFor(string(plan))
		n, err := s.repo.ResetStaleSubscriptions(year, cfg.AnnualFee, string(plan))
		if err != nil {
			return total, fmt.Errorf("reset stale subscriptions for plan %s: %w", plan, err)
		}
		total += n
		known = append(known, string(plan))
	}

	n, err := s.repo.ResetStaleSubscriptionsExcept(year, s.plans.Default().AnnualFee, known)
	if err != nil {
		return total, fmt.Errorf("reset stale subscriptions for unregistered plans: %w", err)
	}
	total += n
	return total, nil
}

// ReverseDeduction adds a refunded payment's subscription deduction back onto
// the organization's balance. Only called when ReverseOnRefund is enabled;
// the observed production behavior leaves the ledger untouched on refund.
func (s *Service) ReverseDeduction(ctx context.Context, payment *models.PaymentTransaction) error {
	_ = ctx
	if payment == nil || payment.SubscriptionDeduction.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	return s.repo.Transaction(func(tx Repository) error {
		sub, err := tx.GetSubscriptionForUpdate(payment.OrganizationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: organization_id=%d", ErrSubscriptionNotFound, payment.OrganizationID)
			}
			return err
		}

		balance := sub.Balance.Add(payment.SubscriptionDeduction)
		paidAt := sub.PaidAt
		if balance.GreaterThan(decimal.Zero) {
			paidAt = nil
		}
		return tx.CommitSubscription(payment.OrganizationID, balance, sub.Year, paidAt)
	})
}
