package models

import (
	"time"
)

type Conversation struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	RenterID  int64  `gorm:"not null;index:idx_conversation_pair" json:"renter_id"`
	OwnerID   int64  `gorm:"not null;index:idx_conversation_pair" json:"owner_id"`
	BookingID *int64 `gorm:"index" json:"booking_id"`

	Renter  User     `gorm:"foreignkey:RenterID" json:"renter,omitempty"`
	Owner   User     `gorm:"foreignkey:OwnerID" json:"owner,omitempty"`
	Booking *Booking `gorm:"foreignkey:BookingID" json:"booking,omitempty"`

	Messages []Message `json:"messages,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OtherParticipant returns the participant that is not the given user.
func (c *Conversation) OtherParticipant(userID int64) User {
	if c.RenterID == userID {
		return c.Owner
	}
	return c.Renter
}
