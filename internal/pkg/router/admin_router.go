package router

import (
	"github.com/ManuelReschke/MeliDesk/app/controllers"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminRouter serves operator endpoints behind basic auth: the batch status,
// a manual flush and the prometheus metrics. Users without a password are ignored; with
// none left, nothing is mounted.
type AdminRouter struct {
	controller *controllers.AdminController
	users      map[string]string
	gatherer   prometheus.Gatherer
}

func NewAdminRouter(controller *controllers.AdminController, users map[string]string, gatherer prometheus.Gatherer) *AdminRouter {
	return &AdminRouter{controller: controller, users: users, gatherer: gatherer}
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	users := make(map[string]string, len(h.users))
	for user, password := range h.users {
		if user != "" && password != "" {
			users[user] = password
		}
	}
	if len(users) == 0 {
		log.Error("[Router] ADMIN_PASSWORD is not set, admin and metrics endpoints are disabled")
		return
	}
	auth := basicauth.New(basicauth.Config{Users: users})

	adminGroup := app.Group(constants.AdminGroup, auth)
	adminGroup.Get(constants.AdminWebhookStatusPath, h.controller.HandleWebhookStatus)
	adminGroup.Post(constants.AdminWebhookFlushPath, h.controller.HandleWebhookFlush)

	if h.gatherer != nil {
		app.Get(constants.MetricsRoute, auth, adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}
