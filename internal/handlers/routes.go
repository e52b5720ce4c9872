package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Health   *HealthHandler
	Cycles   *CycleHandler
	Requests *RequestHandler
	Settings *SettingsHandler
}

// Register mounts the ops API under /api/v1 and metrics at /metrics.
func Register(app *fiber.App, h Handlers) {
	api := app.Group("/api/v1")

	api.Get("/health", h.Health.HandleHealth)
	api.Post("/cycles", h.Cycles.HandleRunCycle)
	api.Get("/lock", h.Cycles.HandleLockStatus)
	api.Get("/requests/:id", h.Requests.HandleGetRequest)
	api.Get("/settings", h.Settings.HandleGetSettings)
	api.Patch("/settings", h.Settings.HandlePatchSettings)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
