package models

import (
	"time"
)

type Booking struct {
	ID       int64 `gorm:"primaryKey" json:"id"`
	CarID    int64 `gorm:"not null;index" json:"car_id"`
	RenterID int64 `gorm:"not null;index" json:"renter_id"`
	OwnerID  int64 `gorm:"not null;index" json:"owner_id"`

	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`

	Status     string  `gorm:"size:20;not null;default:'pending'" json:"status"`
	TotalPrice float64 `gorm:"type:numeric(10,2);not null" json:"total_price"`
	Currency   string  `gorm:"size:3" json:"currency"`
	Reference  string  `gorm:"size:12;unique;not null" json:"reference"`

	AgreementURL *string `gorm:"size:255" json:"agreement_url"`

	Car    Car  `gorm:"foreignkey:CarID" json:"car,omitempty"`
	Renter User `gorm:"foreignkey:RenterID" json:"renter,omitempty"`
	Owner  User `gorm:"foreignkey:OwnerID" json:"owner,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
