package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrganizationSubscription tracks what an organization still owes the
// platform for the current billing year. One row per organization, created on
// onboarding at the full annual fee, mutated only by the settlement service
// and the year-rollover job.
type OrganizationSubscription struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	OrganizationID uint            `gorm:"not null;uniqueIndex" json:"organization_id"`
	Balance        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"balance"`
	Year           int             `gorm:"not null;index" json:"year"`
	PaidAt         *time.Time      `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsStale reports whether the row belongs to a previous billing year and must
// be rolled over before any deduction logic may run against it.
func (s *OrganizationSubscription) IsStale(now time.Time) bool {
	return s.Year < now.Year()
}
