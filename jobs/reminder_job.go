package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/drivelane/drivelane/database"
	"github.com/drivelane/drivelane/models"
	"github.com/drivelane/drivelane/notifications"
)

func SendPickupReminders() {
	log.Println("Running job: SendPickupReminders...")

	now := time.Now()
	lowerBound := now.Add(60 * time.Minute)
	upperBound := now.Add(75 * time.Minute)

	var upcomingBookings []models.Booking

	err := database.DB.
		Preload("Renter").
		Preload("Owner").
		Preload("Car").
		Where("status = ? AND start_date BETWEEN ? AND ?", "confirmed", lowerBound, upperBound).
		Find(&upcomingBookings).Error

	if err != nil {
		log.Printf("Error checking for upcoming pickups: %v", err)
		return
	}

	if len(upcomingBookings) == 0 {
		return
	}

	for _, booking := range upcomingBookings {
		log.Printf("Sending pickup reminder for booking %s", booking.Reference)

		carTitle := booking.Car.Make + " " + booking.Car.Model
		emailSubject := "Reminder: Your Rental Starts in 1 Hour!"
		emailBody := fmt.Sprintf(
			"<h1>Pickup Reminder</h1><p>Hi there,</p><p>This is a friendly reminder that the rental of <b>%s</b> (reference %s) starts at %s.</p>",
			carTitle,
			booking.Reference,
			booking.StartDate.Format(time.Kitchen),
		)

		go notifications.SendEmail(booking.Renter.FullName, booking.Renter.Email, emailSubject, emailBody)
		go notifications.SendEmail(booking.Owner.FullName, booking.Owner.Email, emailSubject, emailBody)
	}
}
