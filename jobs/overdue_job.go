package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/drivelane/drivelane/database"
	"github.com/drivelane/drivelane/models"
	"github.com/drivelane/drivelane/notifications"
)

// CheckOverdueReturns nudges both parties when an active rental has passed its
// return date without being completed by the owner.
func CheckOverdueReturns() {
	log.Println("Running job: CheckOverdueReturns...")

	var overdue []models.Booking
	err := database.DB.
		Preload("Renter").
		Preload("Owner").
		Preload("Car").
		Where("status = ? AND end_date < ?", "active", time.Now().Add(-1*time.Hour)).
		Find(&overdue).Error
	if err != nil {
		log.Printf("Error checking for overdue returns: %v", err)
		return
	}

	for _, booking := range overdue {
		log.Printf("Booking %s is overdue for return", booking.Reference)

		carTitle := booking.Car.Make + " " + booking.Car.Model
		body := fmt.Sprintf(
			"<h1>Return Overdue</h1><p>The rental of <b>%s</b> (reference %s) was due back at %s and has not been marked as returned.</p>",
			carTitle,
			booking.Reference,
			booking.EndDate.Format("Jan 2, 3:04 PM"),
		)

		go notifications.SendEmail(booking.Renter.FullName, booking.Renter.Email, "Your Rental Return is Overdue", body)
		go notifications.SendEmail(booking.Owner.FullName, booking.Owner.Email, "A Rental Return is Overdue", body)
	}
}
