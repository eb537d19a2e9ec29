package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment provider constants used across payment-related models.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderVipps  = "vipps"
)

// Payment type categories.
const (
	PaymentTypeMembership = "membership_fee"
	PaymentTypeEvent      = "event_fee"
	PaymentTypeDonation   = "donation"
)

// Payment status lifecycle. Transitions are driven exclusively by the
// provider reconciliation handlers; anything outside CanTransition is a no-op.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusPaid       = "paid"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusRefunded   = "refunded"
)

// PaymentTransaction records a single member payment attempt and its
// provider-independent status lifecycle, including the fee breakdown written
// by the settlement service once funds are confirmed.
type PaymentTransaction struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrganizationID uint   `gorm:"not null;index" json:"organization_id"`
	MemberID       *uint  `gorm:"index" json:"member_id,omitempty"`
	Type           string `gorm:"type:varchar(50);not null;default:'membership_fee'" json:"type"`
	Status         string `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	Provider  string `gorm:"type:varchar(20);not null;index:ux_payment_transactions_provider_ref,unique,priority:1" json:"provider"`
	Reference string `gorm:"type:varchar(191);not null;index:ux_payment_transactions_provider_ref,unique,priority:2" json:"reference"`

	Amount                decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	SubscriptionDeduction decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"subscription_deduction"`
	ServiceFee            decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"service_fee"`
	TransactionFee        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"transaction_fee"`
	NetToOrganization     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"net_to_organization"`
	BreakdownJSON         string          `gorm:"type:text" json:"breakdown_json"`

	// SettledAt is set exactly once, when the settlement service has applied
	// this payment to the subscription ledger. It guards the wallet rail's
	// authorized -> paid sequence against settling twice.
	SettledAt *time.Time `gorm:"type:timestamp;default:null" json:"settled_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsSettled reports whether the fee breakdown has already been applied.
func (p *PaymentTransaction) IsSettled() bool {
	return p.SettledAt != nil
}

// CanTransition reports whether moving a payment from one status to another
// is allowed. The machine is pending -> authorized -> paid, with cancellation
// possible until funds are captured and refund only after payment. A refunded
// payment is terminal.
func CanTransition(from, to string) bool {
	switch from {
	case PaymentStatusPending:
		return to == PaymentStatusAuthorized || to == PaymentStatusPaid || to == PaymentStatusCancelled
	case PaymentStatusAuthorized:
		return to == PaymentStatusPaid || to == PaymentStatusCancelled
	case PaymentStatusPaid:
		return to == PaymentStatusRefunded
	default:
		return false
	}
}
