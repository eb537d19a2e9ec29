package controllers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/app/repository"
)

var paymentValidate = validator.New()

// CreatePaymentRequest is the payload for starting a payment attempt.
type CreatePaymentRequest struct {
	OrganizationID uint   `json:"organization_id" validate:"required"`
	MemberID       *uint  `json:"member_id"`
	Provider       string `json:"provider" validate:"required,oneof=stripe vipps"`
	Type           string `json:"type" validate:"omitempty,oneof=membership_fee event_fee donation"`
	Amount         string `json:"amount" validate:"required"`
}

// HandleCreatePayment creates a pending payment attempt with a generated
// provider reference. The attempt only becomes financially relevant once the
// provider confirms it via webhook.
func HandleCreatePayment(c *fiber.Ctx) error {
	var req CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if err := paymentValidate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_amount"})
	}

	if _, err := repository.GetGlobalRepositories().Organization.GetByID(req.OrganizationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "organization_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "organization_lookup_failed"})
	}

	paymentType := req.Type
	if paymentType == "" {
		paymentType = models.PaymentTypeMembership
	}

	payment := &models.PaymentTransaction{
		OrganizationID: req.OrganizationID,
		MemberID:       req.MemberID,
		Provider:       req.Provider,
		Reference:      "mh-" + uuid.New().String(),
		Type:           paymentType,
		Status:         models.PaymentStatusPending,
		Amount:         amount.Round(2),
	}
	if err := repository.GetGlobalRepositories().Payment.Create(payment); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_create_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(payment)
}

// HandleGetPayment returns a payment attempt by id.
func HandleGetPayment(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
	}

	payment, err := repository.GetGlobalRepositories().Payment.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_lookup_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(payment)
}

// HandleListOrganizationPayments returns an organization's payment attempts.
func HandleListOrganizationPayments(c *fiber.Ctx) error {
	orgID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
	}
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	list, err := repository.GetGlobalRepositories().Payment.GetByOrganizationID(uint(orgID), offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_lookup_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"payments": list, "count": len(list)})
}
