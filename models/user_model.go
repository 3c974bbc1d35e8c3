package models

import (
	"time"
)

type User struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	FullName string `gorm:"size:255;not null" json:"full_name"`
	Email    string `gorm:"size:255;not null;unique" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Role     string `gorm:"size:20;not null;default:'renter'" json:"role"`

	AvatarURL *string `gorm:"size:255" json:"avatar_url"`
	Phone     *string `gorm:"size:30" json:"phone"`
	City      *string `gorm:"size:100" json:"city"`
	About     *string `gorm:"type:text" json:"about"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
