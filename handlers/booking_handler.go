package handlers

import (
	"errors"
	"time"

	"github.com/drivelane/drivelane/database"
	"github.com/drivelane/drivelane/middleware"
	"github.com/drivelane/drivelane/models"
	"github.com/drivelane/drivelane/notifications"
	"github.com/drivelane/drivelane/services"
	"github.com/drivelane/drivelane/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreateBookingRequest struct {
	CarID     int64  `json:"car_id" validate:"required,gt=0"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

type ReviewRequest struct {
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Comment *string `json:"comment"`
}

func CreateBooking(c *fiber.Ctx) error {
	renterID := middleware.CurrentUserID(c)

	var req CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "start_date must be YYYY-MM-DD"})
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_date must be YYYY-MM-DD"})
	}
	if !end.After(start) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "end_date must be after start_date"})
	}

	var booking models.Booking
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		var car models.Car
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&car, "id = ?", req.CarID).Error; err != nil {
			return errors.New("car not found")
		}
		if car.Status != "listed" {
			return errors.New("this car is not available for booking")
		}
		if car.OwnerID == renterID {
			return errors.New("you cannot book your own car")
		}

		var overlapping int64
		if err := tx.Model(&models.Booking{}).
			Where("car_id = ? AND status IN ? AND start_date < ? AND end_date > ?",
				car.ID, []string{"pending", "confirmed", "active"}, end, start).
			Count(&overlapping).Error; err != nil {
			return err
		}
		if overlapping > 0 {
			return errors.New("car is already booked for these dates")
		}

		reference, err := utils.GenerateUniqueBookingReference(tx)
		if err != nil {
			return err
		}

		days := int(end.Sub(start).Hours() / 24)
		booking = models.Booking{
			CarID:      car.ID,
			RenterID:   renterID,
			OwnerID:    car.OwnerID,
			StartDate:  start,
			EndDate:    end,
			Status:     "pending",
			TotalPrice: float64(days) * car.PricePerDay,
			Currency:   car.Currency,
			Reference:  reference,
		}
		return tx.Create(&booking).Error
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := database.DB.Preload("Car").Preload("Renter").Preload("Owner").First(&booking, "id = ?", booking.ID).Error; err == nil {
		carTitle := booking.Car.Make + " " + booking.Car.Model
		go notifications.SendNewBookingToOwner(booking.Owner.FullName, booking.Owner.Email, carTitle, booking.Reference)
	}

	return c.Status(fiber.StatusCreated).JSON(booking)
}

func GetMyBookings(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	var bookings []models.Booking
	if err := database.DB.
		Preload("Car").Preload("Renter").Preload("Owner").
		Where("renter_id = ? OR owner_id = ?", userID, userID).
		Order("created_at desc").
		Find(&bookings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch bookings"})
	}
	return c.JSON(bookings)
}

func ConfirmBooking(c *fiber.Ctx) error {
	return transitionBooking(c, "pending", "confirmed", true)
}

func StartRental(c *fiber.Ctx) error {
	return transitionBooking(c, "confirmed", "active", true)
}

func CompleteBooking(c *fiber.Ctx) error {
	return transitionBooking(c, "active", "completed", true)
}

func CancelBooking(c *fiber.Ctx) error {
	return transitionBooking(c, "", "cancelled", false)
}

func transitionBooking(c *fiber.Ctx, from, to string, byOwner bool) error {
	userID := middleware.CurrentUserID(c)
	bookingID := c.Params("bookingId")

	var booking models.Booking
	if err := database.DB.Preload("Car").Preload("Renter").Preload("Owner").First(&booking, "id = ?", bookingID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
	}

	if byOwner && booking.OwnerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the car owner can do this"})
	}
	if !byOwner && booking.RenterID != userID && booking.OwnerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not your booking"})
	}

	if from != "" && booking.Status != from {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Booking is not " + from})
	}
	if to == "cancelled" && booking.Status != "pending" && booking.Status != "confirmed" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Booking can no longer be cancelled"})
	}

	booking.Status = to
	if err := database.DB.Save(&booking).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update booking"})
	}

	if to == "confirmed" {
		carTitle := booking.Car.Make + " " + booking.Car.Model
		go notifications.SendBookingConfirmed(booking.Renter.FullName, booking.Renter.Email, carTitle, booking.Reference)
		go services.GenerateRentalAgreement(booking)
	}

	return c.JSON(booking)
}

func CreateReview(c *fiber.Ctx) error {
	renterID := middleware.CurrentUserID(c)
	bookingID := c.Params("bookingId")

	var req ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var booking models.Booking
	if err := database.DB.First(&booking, "id = ?", bookingID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
	}
	if booking.RenterID != renterID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the renter can review this booking"})
	}
	if booking.Status != "completed" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Only completed bookings can be reviewed"})
	}

	var existing models.Review
	if err := database.DB.Where("booking_id = ?", booking.ID).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Booking already reviewed"})
	}

	review := models.Review{
		BookingID: booking.ID,
		CarID:     booking.CarID,
		RenterID:  renterID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}
	if err := database.DB.Create(&review).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create review"})
	}
	return c.Status(fiber.StatusCreated).JSON(review)
}
