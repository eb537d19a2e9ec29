package models

import "time"

// Member belongs to exactly one organization. Payments may reference a member
// but do not have to (e.g. anonymous event fees).
type Member struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	Name           string    `gorm:"type:varchar(200);not null" json:"name"`
	Email          string    `gorm:"type:varchar(200);default:'';index" json:"email"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
