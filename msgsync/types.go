package msgsync

import (
	"strconv"
	"strings"
	"time"
)

// Message is the client-side shape of one chat message.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	BookingID      int64     `json:"booking_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Participant is the displayable identity of the other side of a conversation.
type Participant struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Conversation is the client-side record backing one row of the inbox.
type Conversation struct {
	ID          string      `json:"id"`
	BookingID   int64       `json:"booking_id,omitempty"`
	Other       Participant `json:"other_participant"`
	LastMessage *Message    `json:"last_message"`
	UnreadCount int         `json:"unread_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

const bookingConversationPrefix = "booking_"

// BookingConversationID builds the synthetic conversation identity used for
// booking-scoped threads.
func BookingConversationID(bookingID int64) string {
	return bookingConversationPrefix + strconv.FormatInt(bookingID, 10)
}

// BookingIDFromConversation extracts the booking id from a "booking_<id>"
// conversation identity. Returns false for plain conversation ids.
func BookingIDFromConversation(conversationID string) (int64, bool) {
	rest, ok := strings.CutPrefix(conversationID, bookingConversationPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
