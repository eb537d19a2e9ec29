package repository

import (
	"github.com/medlemshub/medlemshub/app/models"
	"gorm.io/gorm"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create creates a new payment transaction in the database
func (r *paymentRepository) Create(payment *models.PaymentTransaction) error {
	return r.db.Create(payment).Error
}

// GetByID retrieves a payment transaction by its ID
func (r *paymentRepository) GetByID(id uint) (*models.PaymentTransaction, error) {
	var payment models.PaymentTransaction
	err := r.db.First(&payment, id).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByProviderReference retrieves a payment by the opaque id the provider
// rail uses to correlate callbacks. The pair is unique per provider.
func (r *paymentRepository) GetByProviderReference(provider, reference string) (*models.PaymentTransaction, error) {
	var payment models.PaymentTransaction
	err := r.db.Where("provider = ? AND reference = ?", provider, reference).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByOrganizationID retrieves payments for an organization with pagination
func (r *paymentRepository) GetByOrganizationID(organizationID uint, offset, limit int) ([]models.PaymentTransaction, error) {
	var payments []models.PaymentTransaction
	err := r.db.Where("organization_id = ?", organizationID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&payments).Error
	return payments, err
}

// Update persists changes to a payment transaction
func (r *paymentRepository) Update(payment *models.PaymentTransaction) error {
	return r.db.Save(payment).Error
}
