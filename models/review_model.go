package models

import (
	"time"
)

type Review struct {
	ID        int64 `gorm:"primaryKey" json:"id"`
	BookingID int64 `gorm:"not null;unique" json:"booking_id"`
	CarID     int64 `gorm:"not null;index" json:"car_id"`
	RenterID  int64 `gorm:"not null" json:"renter_id"`

	Rating  int     `gorm:"not null" json:"rating"`
	Comment *string `gorm:"type:text" json:"comment"`

	Booking Booking `gorm:"foreignkey:BookingID" json:"-"`
	Renter  User    `gorm:"foreignkey:RenterID" json:"renter,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
