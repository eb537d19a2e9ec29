package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/app/repository"
	"github.com/medlemshub/medlemshub/internal/pkg/database"
	"github.com/medlemshub/medlemshub/internal/pkg/env"
	"github.com/medlemshub/medlemshub/internal/pkg/jobqueue"
	"github.com/medlemshub/medlemshub/internal/pkg/metrics/counter"
	"github.com/medlemshub/medlemshub/internal/pkg/payments"
	"github.com/medlemshub/medlemshub/internal/pkg/pricing"
	"github.com/medlemshub/medlemshub/internal/pkg/settlement"
)

// newReconciler assembles the reconciliation pipeline from the process-wide
// singletons. Built per request like the other service constructors; every
// piece underneath is a thin handle over the shared DB and queue.
func newReconciler() *payments.Reconciler {
	db := database.GetDB()
	repos := repository.GetGlobalRepositories()

	svc := settlement.NewServiceFromDB(db, pricing.NewCatalogFromEnv())
	svc.ReverseOnRefund = env.GetEnv("REFUND_REVERSES_DEDUCTION", "false") == "true"

	var capture payments.CaptureEnqueuer
	if p := jobqueue.GetManager().Capture(); p != nil {
		capture = p
	}

	return payments.NewReconciler(repos.Payment, svc, capture, payments.NewMailNotifier(db, repos.Organization))
}

// recordWebhookEvent stores the delivery for idempotency and reports whether
// it is a straight duplicate that can be acknowledged without work.
func recordWebhookEvent(provider, eventID, eventType string, payload []byte) (bool, *models.PaymentWebhookEvent, error) {
	return dedupeWebhookDelivery(repository.GetGlobalRepositories().WebhookEvent, &models.PaymentWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
}

// dedupeWebhookDelivery inserts the event unless the same provider event id
// exists already. A previously seen event counts as a duplicate only when its
// first processing attempt completed without error; a redelivery after a
// failure (or a crash before MarkProcessed) runs through processing again.
func dedupeWebhookDelivery(events repository.WebhookEventRepository, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	created, stored, err := events.CreateIfNotExists(event)
	if err != nil {
		return false, nil, err
	}
	return !created && stored.ProcessedOK(), stored, nil
}

func markWebhookProcessed(id uint, processingErr error) {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := repository.GetGlobalRepositories().WebhookEvent.MarkProcessed(id, msg); err != nil {
		log.Errorf("[Webhook] Could not mark event %d processed: %v", id, err)
	}
}

// HandleStripeWebhook processes card-rail events. The signature is verified
// against the raw body before any parsing; an unverified payload is never
// interpreted.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	_ = counter.AddWebhookReceived(models.PaymentProviderStripe)

	adapter := payments.NewStripeAdapterFromEnv()
	if !adapter.VerifySignature(rawBody, c.Get("Stripe-Signature")) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	envelope, err := payments.ParseStripeWebhook(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	duplicate, stored, err := recordWebhookEvent(models.PaymentProviderStripe, envelope.ID, envelope.Type, rawBody)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if envelope.Type == payments.StripeEventAccountUpdated {
		return handleStripeAccountUpdated(c, envelope, stored.ID)
	}

	ev, err := envelope.PaymentEvent(adapter)
	if err != nil {
		// Event types outside the payment lifecycle are acknowledged.
		markWebhookProcessed(stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, err := newReconciler().Reconcile(ctx, adapter, ev)
	markWebhookProcessed(stored.ID, err)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settlement_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "outcome": string(outcome)})
}

// handleStripeAccountUpdated syncs the connected account's capability flags
// onto the organization.
func handleStripeAccountUpdated(c *fiber.Ctx, envelope *payments.StripeWebhookEvent, eventID uint) error {
	acct, err := envelope.AccountEvent()
	if err != nil {
		markWebhookProcessed(eventID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	orgs := repository.GetGlobalRepositories().Organization
	org, err := orgs.GetByStripeAccountID(acct.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Webhook] account.updated for unknown account %s, dropping", acct.ID)
			markWebhookProcessed(eventID, nil)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		markWebhookProcessed(eventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "account_lookup_failed"})
	}

	err = orgs.UpdateCapabilities(org.ID, acct.ChargesEnabled, acct.PayoutsEnabled)
	markWebhookProcessed(eventID, err)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "capability_update_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleVippsWebhook processes wallet-rail callbacks. Authentication is the
// static bearer token agreed with the provider; an unauthenticated request is
// rejected before the payload is read.
func HandleVippsWebhook(c *fiber.Ctx) error {
	_ = counter.AddWebhookReceived(models.PaymentProviderVipps)

	adapter := payments.NewVippsAdapterFromEnv()
	if !adapter.VerifySignature(nil, c.Get(fiber.HeaderAuthorization)) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_token"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	callback, err := payments.ParseVippsCallback(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ev, err := callback.Event(adapter)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	duplicate, stored, err := recordWebhookEvent(models.PaymentProviderVipps, ev.EventID, strings.ToUpper(callback.State), rawBody)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, err := newReconciler().Reconcile(ctx, adapter, ev)
	markWebhookProcessed(stored.ID, err)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "settlement_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "outcome": string(outcome)})
}
