package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conference-central/handlers"
	"conference-central/middleware"
)

func SetupRoutes(app *fiber.App, h *handlers.Handlers, signingKey string) {
	app.Use(middleware.RequestID(), middleware.RequestLogger(), recover.New())
	app.Get("/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/", middleware.Authorize(signingKey))

	//Login
	api.Post("/login", h.Login)

	//Profile
	profile := api.Group("/profile")
	profile.Get("/", h.GetProfile)
	profile.Post("/", h.SaveProfile)

	//Conference
	conference := api.Group("/conference")
	conference.Post("/", h.CreateConference)
	conference.Post("/query", h.QueryConferences)
	conference.Get("/created", h.GetConferencesCreated)
	conference.Get("/attending", h.GetConferencesToAttend)
	conference.Get("/:key", h.GetConference)

	//Registration
	registration := conference.Group("/:key/registration")
	registration.Post("/", h.RegisterForConference)
	registration.Delete("/", h.UnregisterFromConference)

	//Announcement
	api.Get("/announcement", h.GetAnnouncement)
}
