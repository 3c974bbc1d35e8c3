package msgsync

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Saturday afternoon, fixed for deterministic labels.
var formatNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func TestFormatMessageTime(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want string
	}{
		{"today shows clock time", time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC), "9:05 AM"},
		{"yesterday label", time.Date(2026, 3, 13, 23, 0, 0, 0, time.UTC), "Yesterday"},
		{"two days back shows weekday", time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC), "Thu"},
		{"six days back shows weekday", time.Date(2026, 3, 8, 8, 0, 0, 0, time.UTC), "Sun"},
		{"seven days back shows date", time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC), "Mar 7, 2026"},
		{"distant past shows date", time.Date(2025, 11, 2, 8, 0, 0, 0, time.UTC), "Nov 2, 2025"},
		{"zero time renders empty", time.Time{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatMessageTime(tc.in, formatNow))
		})
	}
}

func TestGroupMessagesByDayBucketsAndLabels(t *testing.T) {
	yesterday := time.Date(2026, 3, 13, 23, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	groups := GroupMessagesByDay([]Message{
		{ID: 2, CreatedAt: yesterday},
		{ID: 1, CreatedAt: today},
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "March 13, 2026", groups[0].Label)
	require.Len(t, groups[0].Messages, 1)
	assert.Equal(t, int64(2), groups[0].Messages[0].ID)

	assert.Equal(t, "March 14, 2026", groups[1].Label)
	require.Len(t, groups[1].Messages, 1)
	assert.Equal(t, int64(1), groups[1].Messages[0].ID)
}

func TestGroupMessagesByDayIgnoresTimestampLocations(t *testing.T) {
	// Timestamps in one thread can carry different locations: push events
	// decode to UTC, unix encodings to Local, DB rows to the server zone.
	// Same calendar day must mean one bucket regardless.
	groups := GroupMessagesByDay([]Message{
		{ID: 1, CreatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		{ID: 2, CreatedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.FixedZone("", 0))},
	})

	require.Len(t, groups, 1)
	assert.Equal(t, "March 14, 2026", groups[0].Label)
	require.Len(t, groups[0].Messages, 2)
	assert.Equal(t, int64(1), groups[0].Messages[0].ID)
	assert.Equal(t, int64(2), groups[0].Messages[1].ID)
}

func TestGroupMessagesByDayRestoresOrder(t *testing.T) {
	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	var msgs []Message
	for i := 0; i < 40; i++ {
		msgs = append(msgs, Message{
			ID:        int64(i + 1),
			CreatedAt: base.AddDate(0, 0, i/10).Add(time.Duration(i%10) * time.Minute),
		})
	}
	rand.New(rand.NewSource(1)).Shuffle(len(msgs), func(i, j int) {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	})

	groups := GroupMessagesByDay(msgs)
	require.Len(t, groups, 4)

	var prevDay time.Time
	for _, g := range groups {
		assert.True(t, g.Day.After(prevDay), "groups ordered by day")
		prevDay = g.Day
		for i := 1; i < len(g.Messages); i++ {
			assert.False(t, g.Messages[i].CreatedAt.Before(g.Messages[i-1].CreatedAt),
				"messages non-decreasing in time within a bucket")
		}
	}
}

func TestGroupMessagesByDayKeepsUnparsableDates(t *testing.T) {
	groups := GroupMessagesByDay([]Message{
		{ID: 1, CreatedAt: formatNow},
		{ID: 2}, // no timestamp
	})

	require.Len(t, groups, 2)
	last := groups[len(groups)-1]
	assert.Equal(t, UnknownDateLabel, last.Label)
	require.Len(t, last.Messages, 1)
	assert.Equal(t, int64(2), last.Messages[0].ID)
}

func TestIsOwnMessage(t *testing.T) {
	m := Message{SenderID: 5, ReceiverID: 9}
	assert.True(t, IsOwnMessage(m, 5))
	assert.False(t, IsOwnMessage(m, 9))
	assert.False(t, IsOwnMessage(m, 0))
}

func TestShapeConversationFallbacks(t *testing.T) {
	view := ShapeConversation(Conversation{ID: "12"}, formatNow)
	assert.Equal(t, PlaceholderName, view.Name)
	assert.Equal(t, PlaceholderAvatarURL, view.AvatarURL)
	assert.Equal(t, NewConversationPreview, view.Preview)
	assert.Equal(t, "", view.Timestamp)
	assert.Equal(t, 0, view.UnreadCount)
}

func TestShapeConversationWithLastMessage(t *testing.T) {
	conv := Conversation{
		ID:    "booking_42",
		Other: Participant{ID: 9, Name: "Amina K.", AvatarURL: "https://cdn.example/a.png"},
		LastMessage: &Message{
			ID:        4,
			Content:   "See you at the pickup spot",
			CreatedAt: formatNow.Add(-30 * time.Minute),
		},
		UnreadCount: 3,
	}

	view := ShapeConversation(conv, formatNow)
	assert.Equal(t, "Amina K.", view.Name)
	assert.Equal(t, "See you at the pickup spot", view.Preview)
	assert.Equal(t, "2:30 PM", view.Timestamp)
	assert.Equal(t, 3, view.UnreadCount)

	negative := ShapeConversation(Conversation{ID: "1", UnreadCount: -2}, formatNow)
	assert.Equal(t, 0, negative.UnreadCount)
}
