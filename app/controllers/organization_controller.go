package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/app/repository"
	"github.com/medlemshub/medlemshub/internal/pkg/pricing"
)

var orgValidate = validator.New()

// CreateOrganizationRequest is the onboarding payload.
type CreateOrganizationRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=190"`
	ContactEmail    string `json:"contact_email" validate:"required,email"`
	PricingPlan     string `json:"pricing_plan" validate:"omitempty,oneof=standard"`
	StripeAccountID string `json:"stripe_account_id"`
}

// HandleCreateOrganization onboards an organization. The subscription ledger
// row is created in the same transaction, opening at the plan's annual fee
// for the current year.
func HandleCreateOrganization(c *fiber.Ctx) error {
	var req CreateOrganizationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if err := orgValidate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	plan := req.PricingPlan
	if plan == "" {
		plan = models.PricingPlanStandard
	}
	catalog := pricing.NewCatalogFromEnv()
	cfg := catalog.ConfigFor(plan)

	org := &models.Organization{
		Name:            req.Name,
		ContactEmail:    req.ContactEmail,
		PricingPlan:     plan,
		StripeAccountID: req.StripeAccountID,
	}
	if err := repository.GetGlobalRepositories().Organization.Create(org, cfg.AnnualFee, time.Now().Year()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "organization_create_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(org)
}

// HandleGetOrganization returns an organization by id.
func HandleGetOrganization(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
	}

	org, err := repository.GetGlobalRepositories().Organization.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "organization_lookup_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(org)
}

// CreateMemberRequest is the payload for registering a member.
type CreateMemberRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=190"`
	Email string `json:"email" validate:"required,email"`
}

// HandleCreateMember registers a member under an organization.
func HandleCreateMember(c *fiber.Ctx) error {
	orgID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
	}

	var req CreateMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if err := orgValidate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	if _, err := repository.GetGlobalRepositories().Organization.GetByID(uint(orgID)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "organization_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "organization_lookup_failed"})
	}

	member := &models.Member{
		OrganizationID: uint(orgID),
		Name:           req.Name,
		Email:          req.Email,
	}
	if err := repository.GetGlobalRepositories().Member.Create(member); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "member_create_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(member)
}

// HandleListMembers returns an organization's members.
func HandleListMembers(c *fiber.Ctx) error {
	orgID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
	}

	members, err := repository.GetGlobalRepositories().Member.GetByOrganizationID(uint(orgID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "member_lookup_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"members": members, "count": len(members)})
}
