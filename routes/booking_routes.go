package routes

import (
	"github.com/drivelane/drivelane/handlers"
	"github.com/drivelane/drivelane/middleware"
	"github.com/gofiber/fiber/v2"
)

func BookingRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	booking := api.Group("/bookings", middleware.Protected())
	booking.Get("/me", handlers.GetMyBookings)
	booking.Post("", handlers.CreateBooking)
	booking.Post("/:bookingId/cancel", handlers.CancelBooking)
	booking.Post("/:bookingId/review", handlers.CreateReview)

	ownerBooking := api.Group("/owner/bookings", middleware.Protected(), middleware.OwnerRequired())
	ownerBooking.Post("/:bookingId/confirm", handlers.ConfirmBooking)
	ownerBooking.Post("/:bookingId/start", handlers.StartRental)
	ownerBooking.Post("/:bookingId/complete", handlers.CompleteBooking)
}
