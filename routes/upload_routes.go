package routes

import (
	"github.com/drivelane/drivelane/handlers"
	"github.com/drivelane/drivelane/middleware"
	"github.com/gofiber/fiber/v2"
)

func UploadRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	upload := api.Group("/uploads", middleware.Protected(), middleware.OwnerRequired())
	upload.Get("/signature", handlers.GenerateUploadSignature)
}
