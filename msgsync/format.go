package msgsync

import (
	"sort"
	"time"
)

// Display fallbacks for conversations missing data.
const (
	PlaceholderName        = "Drivelane user"
	PlaceholderAvatarURL   = "/img/avatar-placeholder.png"
	NewConversationPreview = "New conversation"
	UnknownDateLabel       = "Unknown date"
)

// FormatMessageTime renders a timestamp the way the inbox shows it: clock
// time today, "Yesterday" one calendar day back, a weekday abbreviation
// within the last six days, a short date beyond that. A zero time renders as
// the empty string rather than failing.
func FormatMessageTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.In(now.Location())

	switch daysBetween(t, now) {
	case 0:
		return t.Format("3:04 PM")
	case 1:
		return "Yesterday"
	case 2, 3, 4, 5, 6:
		return t.Format("Mon")
	default:
		return t.Format("Jan 2, 2006")
	}
}

// daysBetween counts whole calendar days from t up to now, negative when t is
// in the future.
func daysBetween(t, now time.Time) int {
	return int(startOfDay(now).Sub(startOfDay(t)).Hours() / 24)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MessageGroup is one calendar day's worth of messages, sorted ascending.
type MessageGroup struct {
	Day      time.Time // zero for the unknown-date bucket
	Label    string
	Messages []Message
}

// GroupMessagesByDay buckets messages by calendar day and sorts each bucket
// ascending by time (ties broken by id). Reconciliation appends without
// sorting, so this sort is where display order is guaranteed. Messages with
// no parsable timestamp land in a dedicated bucket at the end instead of
// being dropped.
//
// Timestamps in a thread can carry different locations (push events decode to
// UTC, unix encodings to Local, DB rows to the server zone), so every
// timestamp is rebased into one reference location before bucketing; the day
// key must never split on location alone.
func GroupMessagesByDay(msgs []Message) []MessageGroup {
	ref := time.Local
	for _, m := range msgs {
		if !m.CreatedAt.IsZero() {
			ref = m.CreatedAt.Location()
			break
		}
	}

	buckets := make(map[time.Time]*MessageGroup)
	var unknown *MessageGroup

	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			if unknown == nil {
				unknown = &MessageGroup{Label: UnknownDateLabel}
			}
			unknown.Messages = append(unknown.Messages, m)
			continue
		}
		day := startOfDay(m.CreatedAt.In(ref))
		g, ok := buckets[day]
		if !ok {
			g = &MessageGroup{Day: day, Label: day.Format("January 2, 2006")}
			buckets[day] = g
		}
		g.Messages = append(g.Messages, m)
	}

	groups := make([]MessageGroup, 0, len(buckets)+1)
	for _, g := range buckets {
		sortMessagesAscending(g.Messages)
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Day.Before(groups[j].Day) })

	if unknown != nil {
		sortMessagesAscending(unknown.Messages)
		groups = append(groups, *unknown)
	}
	return groups
}

func sortMessagesAscending(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// IsOwnMessage reports whether the message was sent by the current user. It
// is recomputed per render, never cached, so a sign-out/sign-in flips sides
// correctly.
func IsOwnMessage(m Message, currentUserID int64) bool {
	return currentUserID > 0 && m.SenderID == currentUserID
}

// ConversationView is the display-ready shape of one inbox row.
type ConversationView struct {
	ID          string `json:"id"`
	BookingID   int64  `json:"booking_id,omitempty"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	Preview     string `json:"preview"`
	Timestamp   string `json:"timestamp"`
	UnreadCount int    `json:"unread_count"`
}

// ShapeConversation maps a raw conversation record onto its inbox row,
// filling placeholders for whatever is missing.
func ShapeConversation(c Conversation, now time.Time) ConversationView {
	view := ConversationView{
		ID:          c.ID,
		BookingID:   c.BookingID,
		Name:        c.Other.Name,
		AvatarURL:   c.Other.AvatarURL,
		Preview:     NewConversationPreview,
		UnreadCount: c.UnreadCount,
	}
	if view.Name == "" {
		view.Name = PlaceholderName
	}
	if view.AvatarURL == "" {
		view.AvatarURL = PlaceholderAvatarURL
	}
	if view.UnreadCount < 0 {
		view.UnreadCount = 0
	}
	if c.LastMessage != nil {
		if c.LastMessage.Content != "" {
			view.Preview = c.LastMessage.Content
		}
		view.Timestamp = FormatMessageTime(c.LastMessage.CreatedAt, now)
	}
	return view
}
