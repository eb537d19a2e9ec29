package repository

import (
	"github.com/medlemshub/medlemshub/app/models"
	"gorm.io/gorm"
)

// memberRepository implements the MemberRepository interface
type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new member repository instance
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

// Create creates a new member in the database
func (r *memberRepository) Create(member *models.Member) error {
	return r.db.Create(member).Error
}

// GetByID retrieves a member by their ID
func (r *memberRepository) GetByID(id uint) (*models.Member, error) {
	var member models.Member
	err := r.db.First(&member, id).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetByOrganizationID retrieves all members of an organization
func (r *memberRepository) GetByOrganizationID(organizationID uint) ([]models.Member, error) {
	var members []models.Member
	err := r.db.Where("organization_id = ?", organizationID).Find(&members).Error
	return members, err
}
