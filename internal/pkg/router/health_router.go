package router

import (
	"github.com/ManuelReschke/MeliDesk/app/controllers"
	"github.com/ManuelReschke/MeliDesk/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
)

type HealthRouter struct {
	checks map[string]controllers.Pinger
}

func NewHealthRouter(checks map[string]controllers.Pinger) *HealthRouter {
	return &HealthRouter{checks: checks}
}

func (h HealthRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, controllers.HandleHealth)
	app.Get(constants.ReadyRoute, controllers.HandleReady(h.checks))
}
