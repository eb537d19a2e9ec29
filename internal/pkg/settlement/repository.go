package settlement

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/medlemshub/medlemshub/app/models"
)

// Repository provides DB operations used by the settlement service.
//
// GetSubscriptionForUpdate must lock the subscription row for the remainder
// of the enclosing Transaction, so that concurrent settlements against the
// same organization serialize instead of losing updates.
type Repository interface {
	GetOrganization(organizationID uint) (*models.Organization, error)
	GetSubscriptionForUpdate(organizationID uint) (*models.OrganizationSubscription, error)
	CommitSubscription(organizationID uint, balance decimal.Decimal, year int, paidAt *time.Time) error
	SavePayment(payment *models.PaymentTransaction) error
	ResetStaleSubscriptions(year int, annualFee decimal.Decimal, plan string) (int64, error)
	ResetStaleSubscriptionsExcept(year int, annualFee decimal.Decimal, plans []string) (int64, error)
	Transaction(fn func(Repository) error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a settlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetOrganization(organizationID uint) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.First(&org, organizationID).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *gormRepository) GetSubscriptionForUpdate(organizationID uint) (*models.OrganizationSubscription, error) {
	var sub models.OrganizationSubscription
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ?", organizationID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CommitSubscription(organizationID uint, balance decimal.Decimal, year int, paidAt *time.Time) error {
	updates := map[string]interface{}{
		"balance":    balance,
		"year":       year,
		"paid_at":    paidAt,
		"updated_at": time.Now(),
	}
	return r.db.Model(&models.OrganizationSubscription{}).
		Where("organization_id = ?", organizationID).
		Updates(updates).Error
}

func (r *gormRepository) SavePayment(payment *models.PaymentTransaction) error {
	return r.db.Save(payment).Error
}

func (r *gormRepository) ResetStaleSubscriptions(year int, annualFee decimal.Decimal, plan string) (int64, error) {
	tx := r.db.Exec(
		`UPDATE organization_subscriptions s
		 JOIN organizations o ON o.id = s.organization_id
		 SET s.balance = ?, s.year = ?, s.paid_at = NULL, s.updated_at = ?
		 WHERE s.year < ? AND o.pricing_plan = ?`,
		annualFee, year, time.Now(), year, plan,
	)
	return tx.RowsAffected, tx.Error
}

// ResetStaleSubscriptionsExcept resets stale subscriptions whose organization
// is on a plan outside the given list. Catches plan values with no catalog
// entry, so the default fee applies to them.
func (r *gormRepository) ResetStaleSubscriptionsExcept(year int, annualFee decimal.Decimal, plans []string) (int64, error) {
	if len(plans) == 0 {
		tx := r.db.Exec(
			`UPDATE organization_subscriptions
			 SET balance = ?, year = ?, paid_at = NULL, updated_at = ?
			 WHERE year < ?`,
			annualFee, year, time.Now(), year,
		)
		return tx.RowsAffected, tx.Error
	}

	tx := r.db.Exec(
		`UPDATE organization_subscriptions s
		 JOIN organizations o ON o.id = s.organization_id
		 SET s.balance = ?, s.year = ?, s.paid_at = NULL, s.updated_at = ?
		 WHERE s.year < ? AND o.pricing_plan NOT IN (?)`,
		annualFee, year, time.Now(), year, plans,
	)
	return tx.RowsAffected, tx.Error
}

// Transaction runs fn inside one database transaction. Row locks taken via
// GetSubscriptionForUpdate are held until fn returns.
func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
