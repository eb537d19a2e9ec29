package controllers

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/medlemshub/medlemshub/internal/pkg/database"
	"github.com/medlemshub/medlemshub/internal/pkg/env"
	"github.com/medlemshub/medlemshub/internal/pkg/pricing"
	"github.com/medlemshub/medlemshub/internal/pkg/settlement"
)

// HandleSubscriptionRollover resets every stale subscription ledger to the
// new billing year. Called by an external scheduler around new year; the
// operation is idempotent so overlapping or repeated calls are harmless.
func HandleSubscriptionRollover(c *fiber.Ctx) error {
	expected := strings.TrimSpace(env.GetEnv("ROLLOVER_CRON_TOKEN", ""))
	got := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c.Get(fiber.HeaderAuthorization)), "Bearer "))
	if expected == "" || got == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_token"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	svc := settlement.NewServiceFromDB(database.GetDB(), pricing.NewCatalogFromEnv())
	count, err := svc.RolloverStale(ctx, now)
	if err != nil {
		log.Errorf("[Rollover] Sweep failed after %d resets: %v", count, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "rollover_failed"})
	}

	log.Infof("[Rollover] Reset %d subscriptions to year %d", count, now.Year())
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":     true,
		"reset_count": count,
		"year":        now.Year(),
	})
}
