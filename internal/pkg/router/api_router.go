package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/medlemshub/medlemshub/app/controllers"
	"github.com/medlemshub/medlemshub/internal/pkg/constants"
	"github.com/medlemshub/medlemshub/internal/pkg/metrics/counter"
	"github.com/medlemshub/medlemshub/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Provider deliveries bypass the rate limiter: a throttled webhook would
	// be redelivered and waste both sides' retry budgets.
	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), constants.WebhooksRoute)
		},
	}))

	webhooks := api.Group("/webhooks")
	webhooks.Post("/stripe", controllers.HandleStripeWebhook)
	webhooks.Post("/vipps", controllers.HandleVippsWebhook)

	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	api.Post("/organizations", controllers.HandleCreateOrganization)
	api.Get("/organizations/:id", controllers.HandleGetOrganization)
	api.Post("/organizations/:id/members", controllers.HandleCreateMember)
	api.Get("/organizations/:id/members", controllers.HandleListMembers)
	api.Get("/organizations/:id/payments", controllers.HandleListOrganizationPayments)

	api.Post("/payments", controllers.HandleCreatePayment)
	api.Get("/payments/:id", controllers.HandleGetPayment)

	internal := api.Group("/internal")
	internal.Get("/subscriptions/rollover", controllers.HandleSubscriptionRollover)
	internal.Get("/metrics", middleware.InternalTokenMiddleware("INTERNAL_API_TOKEN"), handleMetrics)
}

func handleMetrics(c *fiber.Ctx) error {
	snapshot, err := counter.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "metrics_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(snapshot)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
