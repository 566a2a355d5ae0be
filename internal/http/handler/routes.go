package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"metarepo/internal/repository"
	"metarepo/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app. Routes
// under /metarepo run behind auth, which must store the caller the way
// middleware.Auth does.
func RegisterRoutes(app *fiber.App, backend repository.Pinger, docSvc service.DocumentService, auth fiber.Handler) {
	app.Get("/health", HealthCheck(backend))
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/metarepo", auth)
	api.Post("/notate", Notate(docSvc))
	api.Post("/find", Find(docSvc))
	api.Get("/admin/find_all", AdminFindAll(docSvc))
	api.Post("/admin/forceNotate", AdminForceNotate(docSvc))
}

// RegisterMetrics exposes the metrics collected in g on /metrics.
func RegisterMetrics(app *fiber.App, g prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
