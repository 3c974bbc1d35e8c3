package routes

import (
	"github.com/drivelane/drivelane/handlers"
	"github.com/drivelane/drivelane/middleware"
	"github.com/gofiber/fiber/v2"
)

func CarRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	cars := api.Group("/cars")
	cars.Get("", handlers.ListCars)
	cars.Get("/:carId", handlers.GetCar)

	ownerCars := api.Group("/owner/cars", middleware.Protected(), middleware.OwnerRequired())
	ownerCars.Get("", handlers.GetMyCars)
	ownerCars.Post("", handlers.CreateCar)
	ownerCars.Put("/:carId", handlers.UpdateCar)
}
