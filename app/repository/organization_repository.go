package repository

import (
	"github.com/medlemshub/medlemshub/app/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// organizationRepository implements the OrganizationRepository interface
type organizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository creates a new organization repository instance
func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

// Create onboards an organization together with its subscription row. The
// subscription starts at the full annual fee for the given year; both rows
// are written in one transaction so an organization can never exist without
// a ledger entry.
func (r *organizationRepository) Create(org *models.Organization, annualFee decimal.Decimal, year int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return err
		}
		sub := &models.OrganizationSubscription{
			OrganizationID: org.ID,
			Balance:        annualFee,
			Year:           year,
		}
		return tx.Create(sub).Error
	})
}

// GetByID retrieves an organization by its ID
func (r *organizationRepository) GetByID(id uint) (*models.Organization, error) {
	var org models.Organization
	err := r.db.First(&org, id).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// GetByStripeAccountID resolves a connected Stripe account to the organization
func (r *organizationRepository) GetByStripeAccountID(accountID string) (*models.Organization, error) {
	var org models.Organization
	err := r.db.Where("stripe_account_id = ?", accountID).First(&org).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// UpdateCapabilities stores provider onboarding capability flags
func (r *organizationRepository) UpdateCapabilities(id uint, chargesEnabled, payoutsEnabled bool) error {
	return r.db.Model(&models.Organization{}).Where("id = ?", id).Updates(map[string]interface{}{
		"charges_enabled": chargesEnabled,
		"payouts_enabled": payoutsEnabled,
	}).Error
}

// List retrieves organizations with pagination
func (r *organizationRepository) List(offset, limit int) ([]models.Organization, error) {
	var orgs []models.Organization
	err := r.db.Offset(offset).Limit(limit).Order("id ASC").Find(&orgs).Error
	return orgs, err
}

// Count returns the total number of organizations
func (r *organizationRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Organization{}).Count(&count).Error
	return count, err
}
