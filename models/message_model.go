package models

import (
	"time"
)

type Message struct {
	ID             int64 `gorm:"primaryKey" json:"id"`
	ConversationID int64 `gorm:"not null;index" json:"conversation_id"`
	SenderID       int64 `gorm:"not null" json:"sender_id"`
	ReceiverID     int64 `gorm:"not null" json:"receiver_id"`

	Content   string `gorm:"type:text;not null" json:"content"`
	IsRead    bool   `gorm:"default:false" json:"is_read"`
	BookingID *int64 `json:"booking_id"`

	Sender       User         `gorm:"foreignkey:SenderID" json:"sender,omitempty"`
	Conversation Conversation `gorm:"foreignkey:ConversationID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
