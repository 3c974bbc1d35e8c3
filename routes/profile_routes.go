package routes

import (
	"github.com/drivelane/drivelane/handlers"
	"github.com/drivelane/drivelane/middleware"
	"github.com/gofiber/fiber/v2"
)

func ProfileRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	profile := api.Group("/profile", middleware.Protected())
	profile.Get("/me", handlers.GetMyProfile)
	profile.Put("/me", handlers.UpdateMyProfile)
}
