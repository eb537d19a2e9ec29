package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification types.
const (
	NotificationTypeSubscriptionPaid = "subscription_paid"
	NotificationTypeCaptureFailed    = "capture_failed"
	NotificationTypeSystem           = "system"
)

type Notification struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrganizationID uint           `gorm:"index" json:"organization_id"`
	Type           string         `gorm:"type:varchar(50)" json:"type" validate:"oneof=subscription_paid capture_failed system"`
	Content        string         `gorm:"type:text" json:"content"`
	IsRead         bool           `gorm:"default:false" json:"is_read"`
	ReferenceID    uint           `json:"reference_id"` // id of the object this notification refers to
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// MarkAsRead marks a notification as read.
func (n *Notification) MarkAsRead(db *gorm.DB) error {
	n.IsRead = true
	return db.Model(n).Update("is_read", true).Error
}

// CreateNotification creates a new notification for an organization.
func CreateNotification(db *gorm.DB, organizationID uint, notificationType string, content string, referenceID uint) error {
	notification := Notification{
		OrganizationID: organizationID,
		Type:           notificationType,
		Content:        content,
		ReferenceID:    referenceID,
		IsRead:         false,
	}

	return db.Create(&notification).Error
}
