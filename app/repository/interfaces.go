package repository

import (
	"github.com/medlemshub/medlemshub/app/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrganizationRepository defines the interface for organization-related database operations
type OrganizationRepository interface {
	Create(org *models.Organization, annualFee decimal.Decimal, year int) error
	GetByID(id uint) (*models.Organization, error)
	GetByStripeAccountID(accountID string) (*models.Organization, error)
	UpdateCapabilities(id uint, chargesEnabled, payoutsEnabled bool) error
	List(offset, limit int) ([]models.Organization, error)
	Count() (int64, error)
}

// PaymentRepository defines the interface for payment-transaction database operations
type PaymentRepository interface {
	Create(payment *models.PaymentTransaction) error
	GetByID(id uint) (*models.PaymentTransaction, error)
	GetByProviderReference(provider, reference string) (*models.PaymentTransaction, error)
	GetByOrganizationID(organizationID uint, offset, limit int) ([]models.PaymentTransaction, error)
	Update(payment *models.PaymentTransaction) error
}

// WebhookEventRepository defines the interface for provider webhook event persistence
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}

// MemberRepository defines the interface for member-related database operations
type MemberRepository interface {
	Create(member *models.Member) error
	GetByID(id uint) (*models.Member, error)
	GetByOrganizationID(organizationID uint) ([]models.Member, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Organization OrganizationRepository
	Payment      PaymentRepository
	WebhookEvent WebhookEventRepository
	Member       MemberRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Organization: NewOrganizationRepository(db),
		Payment:      NewPaymentRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
		Member:       NewMemberRepository(db),
	}
}
