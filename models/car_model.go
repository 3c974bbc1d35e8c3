package models

import (
	"time"
)

type Car struct {
	ID      int64 `gorm:"primaryKey" json:"id"`
	OwnerID int64 `gorm:"not null;index" json:"owner_id"`

	Make        string  `gorm:"size:100;not null" json:"make"`
	Model       string  `gorm:"size:100;not null" json:"model"`
	Year        int     `gorm:"not null" json:"year"`
	PricePerDay float64 `gorm:"type:numeric(10,2);not null" json:"price_per_day"`
	Currency    string  `gorm:"size:3;default:'USD'" json:"currency"`
	Location    string  `gorm:"size:255;not null" json:"location"`
	Seats       int     `gorm:"default:5" json:"seats"`
	Description *string `gorm:"type:text" json:"description"`
	PhotoURL    *string `gorm:"size:255" json:"photo_url"`

	Status string `gorm:"size:20;not null;default:'listed'" json:"status"`

	Owner User `gorm:"foreignkey:OwnerID" json:"owner,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
