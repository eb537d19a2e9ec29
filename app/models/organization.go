package models

import "time"

// Pricing plan constants used across subscription-related models.
const (
	PricingPlanStandard = "standard"
)

// Organization is a nonprofit tenant on the platform. Only the fields the
// settlement engine and provider onboarding need live here; profile data is
// managed elsewhere.
type Organization struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"type:varchar(200);not null" json:"name"`
	ContactEmail    string    `gorm:"type:varchar(200);default:''" json:"contact_email"`
	PricingPlan     string    `gorm:"type:varchar(50);not null;default:'standard'" json:"pricing_plan"`
	StripeAccountID string    `gorm:"type:varchar(191);default:'';index" json:"stripe_account_id"`
	ChargesEnabled  bool      `gorm:"default:false" json:"charges_enabled"`
	PayoutsEnabled  bool      `gorm:"default:false" json:"payouts_enabled"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
