package payments

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/app/repository"
	"github.com/medlemshub/medlemshub/internal/pkg/mail"
)

// MailNotifier records an in-app notification and emails the organization's
// contact address when its subscription is fully paid. Every step is
// best-effort; a lost notification never affects settlement.
type MailNotifier struct {
	db   *gorm.DB
	orgs repository.OrganizationRepository
}

func NewMailNotifier(db *gorm.DB, orgs repository.OrganizationRepository) *MailNotifier {
	return &MailNotifier{db: db, orgs: orgs}
}

func (n *MailNotifier) SubscriptionPaid(organizationID uint, paymentID uint) {
	org, err := n.orgs.GetByID(organizationID)
	if err != nil {
		log.Warnf("[Notify] Organization %d lookup failed: %v", organizationID, err)
		return
	}

	content := fmt.Sprintf("The annual subscription for %s is now fully paid. Payouts from new payments go to you in full.", org.Name)
	if err := models.CreateNotification(n.db, organizationID, models.NotificationTypeSubscriptionPaid, content, paymentID); err != nil {
		log.Warnf("[Notify] Could not store notification for organization %d: %v", organizationID, err)
	}

	if org.ContactEmail == "" {
		return
	}
	body := fmt.Sprintf("<h2>Subscription paid</h2><p>%s</p>", content)
	if err := mail.SendMail(org.ContactEmail, "Annual subscription fully paid", body); err != nil {
		log.Warnf("[Notify] Could not email %s: %v", org.ContactEmail, err)
	}
}
