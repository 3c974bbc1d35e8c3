package routes

import (
	"github.com/drivelane/drivelane/handlers"
	"github.com/drivelane/drivelane/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())
	admin.Get("/users", handlers.AdminListUsers)
	admin.Patch("/users/:userId/active", handlers.AdminSetUserActive)
	admin.Get("/bookings", handlers.AdminListBookings)
}
