package msgsync

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records subscription traffic and keeps handlers around even
// after Unsubscribe, so tests can simulate events delivered late by the
// underlying connection.
type fakeTransport struct {
	mu           sync.Mutex
	handlers     map[string]func(map[string]any)
	subscribes   []string
	unsubscribes []string
	subscribeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]func(map[string]any))}
}

func (f *fakeTransport) Subscribe(channel, event string, handler func(map[string]any)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	key := channel + "|" + event
	f.subscribes = append(f.subscribes, key)
	f.handlers[key] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(channel, event string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, channel+"|"+event)
	return nil
}

// deliver invokes the last handler registered for channel/event, whether or
// not it has since been unsubscribed.
func (f *fakeTransport) deliver(channel, event string, payload map[string]any) {
	f.mu.Lock()
	h := f.handlers[channel+"|"+event]
	f.mu.Unlock()
	if h != nil {
		h(payload)
	}
}

// countingLoaders tracks how often each loader runs so tests can assert on
// cache hits versus refetches.
type countingLoaders struct {
	mu          sync.Mutex
	listCalls   int
	threadCalls map[string]int

	conversations []Conversation
	threads       map[string][]Message
}

func newCountingLoaders() *countingLoaders {
	return &countingLoaders{
		threadCalls: make(map[string]int),
		threads:     make(map[string][]Message),
	}
}

func (l *countingLoaders) loadConversations(userID int64) ([]Conversation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listCalls++
	return l.conversations, nil
}

func (l *countingLoaders) loadThread(conversationID string) ([]Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threadCalls[conversationID]++
	return l.threads[conversationID], nil
}

func (l *countingLoaders) listCallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listCalls
}

func (l *countingLoaders) threadCallCount(conversationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.threadCalls[conversationID]
}

func newTestEngine(t *fakeTransport, l *countingLoaders, opts ...Option) *Engine {
	base := []Option{
		WithConversationLoader(l.loadConversations),
		WithThreadLoader(l.loadThread),
		WithThreadBackstop(0),
	}
	return New(t, append(base, opts...)...)
}

func sentPayload(convID string, senderID, receiverID, msgID int64) map[string]any {
	return map[string]any{
		"id":              float64(msgID),
		"conversation_id": convID,
		"sender_id":       float64(senderID),
		"receiver_id":     float64(receiverID),
		"content":         fmt.Sprintf("message %d", msgID),
		"created_at":      "2026-03-14T09:00:00Z",
	}
}

func TestInitializeIsIdempotentPerUser(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr, newCountingLoaders())

	e.Initialize(7)
	e.Initialize(7)

	assert.Equal(t, []string{
		"user.7|" + EventMessageSent,
		"user.7|" + EventMessagesRead,
	}, tr.subscribes)
	assert.Empty(t, tr.unsubscribes)
	assert.Equal(t, int64(7), e.CurrentUserID())
}

func TestInitializeSwitchingUsersTearsDownFirst(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr, newCountingLoaders())

	e.Initialize(7)
	e.Initialize(9)

	assert.Equal(t, []string{
		"user.7|" + EventMessageSent,
		"user.7|" + EventMessagesRead,
	}, tr.unsubscribes)
	assert.Contains(t, tr.subscribes, "user.9|"+EventMessageSent)
	assert.Equal(t, int64(9), e.CurrentUserID())
}

func TestInitializeRejectsNonPositiveUser(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr, newCountingLoaders())

	e.Initialize(0)
	e.Initialize(-3)

	assert.Empty(t, tr.subscribes)
	assert.Zero(t, e.CurrentUserID())
}

func TestSubscribeFailureDegradesWithoutPanic(t *testing.T) {
	tr := newFakeTransport()
	tr.subscribeErr = fmt.Errorf("socket closed")
	loaders := newCountingLoaders()
	e := newTestEngine(tr, loaders)

	e.Initialize(7)
	assert.Equal(t, int64(7), e.CurrentUserID())

	// Manual reads still work without live updates.
	_ = e.Conversations()
	assert.Equal(t, 1, loaders.listCallCount())
}

func TestMessageSentInvalidatesListOnly(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	loaders.conversations = []Conversation{{ID: "12", Other: Participant{ID: 5, Name: "Amina"}}}
	e := newTestEngine(tr, loaders)
	e.Initialize(9)

	// Warm the list, leave the thread untouched.
	require.Len(t, e.Conversations(), 1)
	require.Equal(t, 1, loaders.listCallCount())

	tr.deliver("user.9", EventMessageSent, sentPayload("12", 5, 9, 41))

	// The never-opened thread is not fetched by the event itself.
	assert.Equal(t, 0, loaders.threadCallCount("12"))

	// The list refetches on the next read.
	_ = e.Conversations()
	assert.Equal(t, 2, loaders.listCallCount())

	// First open of the thread fetches fresh and includes the new message
	// from the loader's response, not from the event.
	loaders.mu.Lock()
	loaders.threads["12"] = []Message{{ID: 41, ConversationID: "12", SenderID: 5, ReceiverID: 9, CreatedAt: time.Now()}}
	loaders.mu.Unlock()
	groups := e.Thread("12")
	require.Len(t, groups, 1)
	assert.Equal(t, 1, loaders.threadCallCount("12"))
}

func TestIrrelevantEventLeavesCacheFresh(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	e := newTestEngine(tr, loaders)
	e.Initialize(9)

	_ = e.Conversations()
	require.Equal(t, 1, loaders.listCallCount())

	// A push between two other users never reaches user 9's channel in
	// production, but a misrouted frame must not poison the cache either.
	tr.deliver("user.9", EventMessageSent, sentPayload("40", 3, 4, 50))

	_ = e.Conversations()
	assert.Equal(t, 1, loaders.listCallCount(), "list should still be fresh")
}

func TestMessageSentMergesIntoCachedThread(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	loaders.threads["12"] = []Message{
		{ID: 40, ConversationID: "12", SenderID: 9, ReceiverID: 5, CreatedAt: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)},
	}
	e := newTestEngine(tr, loaders)
	e.Initialize(9)

	require.NotEmpty(t, e.Thread("12"))
	require.Equal(t, 1, loaders.threadCallCount("12"))

	tr.deliver("user.9", EventMessageSent, sentPayload("12", 5, 9, 41))

	groups := e.Thread("12")
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Messages, 2)
	assert.Equal(t, int64(41), groups[0].Messages[1].ID)
	assert.False(t, groups[0].Messages[1].Own)
	assert.True(t, groups[0].Messages[0].Own)

	// Merged in place, no refetch.
	assert.Equal(t, 1, loaders.threadCallCount("12"))

	// Redelivery of the same message is a no-op.
	tr.deliver("user.9", EventMessageSent, sentPayload("12", 5, 9, 41))
	groups = e.Thread("12")
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Messages, 2)
}

func TestMessagesReadInvalidatesListAndThread(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	loaders.threads["12"] = []Message{{ID: 40, ConversationID: "12", SenderID: 9, ReceiverID: 5, CreatedAt: time.Now()}}
	e := newTestEngine(tr, loaders)
	e.Initialize(9)

	_ = e.Conversations()
	_ = e.Thread("12")
	require.Equal(t, 1, loaders.listCallCount())
	require.Equal(t, 1, loaders.threadCallCount("12"))

	tr.deliver("user.9", EventMessagesRead, map[string]any{
		"conversation_id": "12",
		"sender_id":       float64(9),
		"receiver_id":     float64(5),
	})

	_ = e.Conversations()
	_ = e.Thread("12")
	assert.Equal(t, 2, loaders.listCallCount())
	assert.Equal(t, 2, loaders.threadCallCount("12"))
}

func TestCleanupIsFinalForLateDeliveries(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	loaders.conversations = []Conversation{{ID: "12"}}
	e := newTestEngine(tr, loaders)
	e.Initialize(9)

	_ = e.Conversations()
	require.Equal(t, 1, loaders.listCallCount())

	e.Cleanup()
	assert.Zero(t, e.CurrentUserID())
	assert.Nil(t, e.Conversations())

	// The transport delivers a frame after teardown; nothing may move.
	tr.deliver("user.9", EventMessageSent, sentPayload("12", 5, 9, 41))
	assert.Equal(t, 1, loaders.listCallCount())
	assert.Equal(t, 0, loaders.threadCallCount("12"))

	// A fresh session starts from an empty cache.
	e.Initialize(9)
	_ = e.Conversations()
	assert.Equal(t, 2, loaders.listCallCount())
}

func TestCleanupWithoutInitializeIsSafe(t *testing.T) {
	tr := newFakeTransport()
	e := newTestEngine(tr, newCountingLoaders())

	assert.NotPanics(t, func() { e.Cleanup() })
	assert.Empty(t, tr.unsubscribes)
}

func TestThreadBackstopForcesEventualRefetch(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	loaders.threads["12"] = []Message{{ID: 40, ConversationID: "12", SenderID: 5, ReceiverID: 9, CreatedAt: time.Now()}}
	e := newTestEngine(tr, loaders, WithThreadBackstop(10*time.Millisecond))
	e.Initialize(9)

	_ = e.Thread("12")
	tr.deliver("user.9", EventMessageSent, sentPayload("12", 5, 9, 41))

	require.Eventually(t, func() bool {
		state, ok := e.threads.State(ThreadKey("12"))
		return ok && state == StateStale
	}, time.Second, 5*time.Millisecond, "merged thread should be forced stale")

	_ = e.Thread("12")
	assert.Equal(t, 2, loaders.threadCallCount("12"))
}

func TestThreadBackstopNotScheduledForReplays(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	loaders.threads["12"] = []Message{{ID: 40, ConversationID: "12", SenderID: 5, ReceiverID: 9, CreatedAt: time.Now()}}
	e := newTestEngine(tr, loaders, WithThreadBackstop(time.Hour))
	e.Initialize(9)

	_ = e.Thread("12")

	pendingTimers := func() int {
		e.mu.Lock()
		defer e.mu.Unlock()
		return len(e.timers)
	}

	// A genuinely new message arms the backstop.
	tr.deliver("user.9", EventMessageSent, sentPayload("12", 5, 9, 41))
	require.Equal(t, 1, pendingTimers())

	// Replaying it changes nothing and must not arm another.
	tr.deliver("user.9", EventMessageSent, sentPayload("12", 5, 9, 41))
	assert.Equal(t, 1, pendingTimers())
}

func TestWatchThreadInactiveEngineIsNoop(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	loaders.threads["12"] = []Message{{ID: 40, ConversationID: "12", SenderID: 5, ReceiverID: 9, CreatedAt: time.Now()}}
	e := newTestEngine(tr, loaders)

	fired := 0
	cancel := e.WatchThread("12", func() { fired++ })

	e.Initialize(9)
	_ = e.Thread("12")
	tr.deliver("user.9", EventMessageSent, sentPayload("12", 5, 9, 41))

	assert.Zero(t, fired, "watcher registered before Initialize must not observe anything")
	assert.NotPanics(t, cancel)
}

func TestApplyLocalMessage(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	loaders.threads["12"] = []Message{{ID: 40, ConversationID: "12", SenderID: 9, ReceiverID: 5, CreatedAt: time.Now()}}
	e := newTestEngine(tr, loaders)
	e.Initialize(9)

	_ = e.Conversations()
	_ = e.Thread("12")

	e.ApplyLocalMessage(Message{ID: 41, ConversationID: "12", SenderID: 9, ReceiverID: 5})

	groups := e.Thread("12")
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Messages, 2)
	assert.Equal(t, 1, loaders.threadCallCount("12"))

	// List was marked stale for reordering.
	_ = e.Conversations()
	assert.Equal(t, 2, loaders.listCallCount())

	// An unopened thread never materializes from a local send.
	e.ApplyLocalMessage(Message{ID: 50, ConversationID: "99", SenderID: 9, ReceiverID: 5})
	_, ok := e.threads.Peek(ThreadKey("99"))
	assert.False(t, ok)
}

func TestMarkThreadRead(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	loaders.threads["12"] = []Message{
		{ID: 40, ConversationID: "12", SenderID: 5, ReceiverID: 9, CreatedAt: time.Now()},
		{ID: 41, ConversationID: "12", SenderID: 9, ReceiverID: 5, CreatedAt: time.Now()},
	}
	e := newTestEngine(tr, loaders)
	e.Initialize(9)

	_ = e.Thread("12")
	e.MarkThreadRead("12")

	groups := e.Thread("12")
	require.Len(t, groups, 1)
	for _, m := range groups[0].Messages {
		if m.ReceiverID == 9 {
			assert.True(t, m.Read, "inbound message %d should be read", m.ID)
		} else {
			assert.False(t, m.Read, "outbound message %d is untouched", m.ID)
		}
	}
}

func TestWatchConversationsFiresOnInvalidate(t *testing.T) {
	tr := newFakeTransport()
	loaders := newCountingLoaders()
	e := newTestEngine(tr, loaders)
	e.Initialize(9)

	fired := make(chan struct{}, 4)
	cancel := e.WatchConversations(func() { fired <- struct{}{} })
	defer cancel()

	tr.deliver("user.9", EventMessageSent, sentPayload("12", 5, 9, 41))

	select {
	case <-fired:
	default:
		t.Fatal("expected conversation watcher to fire")
	}
}
