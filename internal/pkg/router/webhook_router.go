package router

import (
	"time"

	"github.com/ManuelReschke/MeliDesk/app/controllers"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type WebhookRouter struct {
	controller *controllers.WebhookController
	rateLimit  int
	storage    fiber.Storage
}

// NewWebhookRouter mounts the marketplace notification endpoint. rateLimit is the
// number of requests per minute and client IP; zero disables the limiter.
// A nil storage keeps the limiter counters in memory.
func NewWebhookRouter(controller *controllers.WebhookController, rateLimit int, storage fiber.Storage) *WebhookRouter {
	return &WebhookRouter{controller: controller, rateLimit: rateLimit, storage: storage}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	group := app.Group(constants.WebhooksGroup)
	if h.rateLimit > 0 {
		group.Use(limiter.New(limiter.Config{
			Max:          h.rateLimit,
			Expiration:   time.Minute,
			KeyGenerator: controllers.ClientIP,
			Storage:      h.storage,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
			},
		}))
	}
	group.Post(constants.MercadoLivreWebhookPath, h.controller.HandleMercadoLivreWebhook)
}
