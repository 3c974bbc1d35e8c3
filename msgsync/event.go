package msgsync

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event names on a user's private channel, mirroring the server hub.
const (
	EventMessageSent  = "message.sent"
	EventMessagesRead = "messages.read"
)

// ChannelForUser is the private channel a user's events arrive on.
func ChannelForUser(userID int64) string {
	return "user." + strconv.FormatInt(userID, 10)
}

// Event is the canonical form of one inbound push event. The transport does
// not guarantee field naming, so NormalizeEvent accepts both camelCase and
// snake_case spellings and this is the only shape the rest of the engine sees.
// Numeric fields are zero when absent or unreadable; times are zero values.
type Event struct {
	Name           string
	MessageID      int64
	ConversationID string
	SenderID       int64
	ReceiverID     int64
	BookingID      int64
	Content        string
	Read           bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeEvent maps an untyped payload into a canonical Event. It is total:
// any payload, including nil, yields a usable Event with absent fields zeroed.
func NormalizeEvent(name string, payload map[string]any) Event {
	ev := Event{Name: name}
	if payload == nil {
		return ev
	}

	ev.MessageID = asID(field(payload, "id", "message_id", "messageId"))
	ev.ConversationID = asConversationID(field(payload, "conversationId", "conversation_id"))
	ev.SenderID = asID(field(payload, "senderId", "sender_id"))
	ev.ReceiverID = asID(field(payload, "receiverId", "receiver_id"))
	ev.BookingID = asID(field(payload, "bookingId", "booking_id"))
	ev.Content = asString(field(payload, "content", "body", "text"))
	ev.Read = asBool(field(payload, "read", "is_read", "isRead"))
	ev.CreatedAt = asTime(field(payload, "createdAt", "created_at"))
	ev.UpdatedAt = asTime(field(payload, "updatedAt", "updated_at"))
	return ev
}

// ConcernsUser reports whether the event involves the given user as sender or
// receiver. Events missing both ids concern nobody.
func (e Event) ConcernsUser(userID int64) bool {
	if userID <= 0 {
		return false
	}
	return e.SenderID == userID || e.ReceiverID == userID
}

// IsRelevant is the relevance filter run before any event may touch the cache.
func IsRelevant(e Event, currentUserID int64) bool {
	return e.ConcernsUser(currentUserID)
}

// Message converts a message.sent event into a cacheable Message record.
func (e Event) Message() Message {
	return Message{
		ID:             e.MessageID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		ReceiverID:     e.ReceiverID,
		Content:        e.Content,
		Read:           e.Read,
		BookingID:      e.BookingID,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func field(payload map[string]any, names ...string) any {
	for _, name := range names {
		if v, ok := payload[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asID(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		id, _ := n.Int64()
		return id
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0
		}
		return id
	default:
		return 0
	}
}

func asConversationID(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatInt(int64(s), 10)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	default:
		return ""
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asTime parses the handful of timestamp encodings the transport has been
// seen to produce. Unparsable input yields the zero time; the caller decides
// the fallback.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
		} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed
			}
		}
		return time.Time{}
	case float64:
		return fromUnix(int64(t))
	case int64:
		return fromUnix(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}
		}
		return fromUnix(n)
	default:
		return time.Time{}
	}
}

func fromUnix(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	// Values this large are unix milliseconds.
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
