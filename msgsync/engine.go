// Package msgsync keeps a signed-in user's conversations and message threads
// in sync with the marketplace's push channel. It owns an in-memory cache of
// the conversation list and open threads, reconciles inbound message.sent
// events into cached threads without duplication, invalidates what it cannot
// merge, and derives the grouped, display-ready views the messaging screens
// render.
package msgsync

import (
	"log"
	"sync"
	"time"
)

// Transport is the publish/subscribe channel the engine consumes events
// from. The engine never implements delivery; it only subscribes to the
// current user's private channel.
type Transport interface {
	Subscribe(channel, event string, handler func(payload map[string]any)) error
	Unsubscribe(channel, event string) error
}

// ConversationLoader fetches the authoritative conversation list for a user.
type ConversationLoader func(userID int64) ([]Conversation, error)

// ThreadLoader fetches the authoritative message thread for a conversation.
type ThreadLoader func(conversationID string) ([]Message, error)

const defaultThreadBackstop = 3 * time.Second

type Option func(*Engine)

// WithConversationLoader wires the data-fetching collaborator for the
// conversation list.
func WithConversationLoader(loader ConversationLoader) Option {
	return func(e *Engine) { e.convLoader = loader }
}

// WithThreadLoader wires the data-fetching collaborator for message threads.
func WithThreadLoader(loader ThreadLoader) Option {
	return func(e *Engine) { e.threadLoader = loader }
}

// WithThreadBackstop sets the delay before a reconciled thread is forced
// stale as a consistency backstop. Zero disables the backstop.
func WithThreadBackstop(d time.Duration) Option {
	return func(e *Engine) { e.backstop = d }
}

// WithClock overrides the engine's notion of now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// session pins handlers and timers to one Initialize call. Events delivered
// after teardown, or after a switch to another account, compare against a
// dead session and fall through without touching the cache.
type session struct {
	userID int64
}

// Engine is an explicit instance owned by the application's session
// lifecycle: construct it at sign-in, Cleanup at sign-out, and pass it to
// whatever composes the messaging views. There is no package-level singleton.
type Engine struct {
	mu         sync.Mutex
	transport  Transport
	sess       *session
	subscribed map[string]bool
	timers     map[*time.Timer]struct{}

	list    *Store
	threads *Store

	convLoader   ConversationLoader
	threadLoader ThreadLoader
	backstop     time.Duration
	now          func() time.Time
}

func New(transport Transport, opts ...Option) *Engine {
	e := &Engine{
		transport:  transport,
		subscribed: make(map[string]bool),
		timers:     make(map[*time.Timer]struct{}),
		backstop:   defaultThreadBackstop,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	var listLoader Loader
	if e.convLoader != nil {
		listLoader = func(key Key) (any, error) {
			return e.convLoader(userIDFromListKey(key))
		}
	}
	var threadLoader Loader
	if e.threadLoader != nil {
		threadLoader = func(key Key) (any, error) {
			return e.threadLoader(conversationIDFromThreadKey(key))
		}
	}
	e.list = NewStore(listLoader)
	e.threads = NewStore(threadLoader)
	return e
}

// Initialize opens the event subscription for userID's private channel.
// Calling it again for the same user is a no-op; calling it for a different
// user tears the previous subscription down first, so an account switch can
// never leak a subscription to the wrong channel.
func (e *Engine) Initialize(userID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if userID <= 0 {
		log.Printf("msgsync: refusing to initialize with user id %d", userID)
		return
	}
	if e.sess != nil {
		if e.sess.userID == userID {
			return
		}
		e.teardownLocked()
	}

	sess := &session{userID: userID}
	e.sess = sess

	channel := ChannelForUser(userID)
	e.subscribeLocked(channel, EventMessageSent, func(payload map[string]any) {
		e.handleMessageSent(sess, payload)
	})
	e.subscribeLocked(channel, EventMessagesRead, func(payload map[string]any) {
		e.handleMessagesRead(sess, payload)
	})
}

// Cleanup closes the subscription and drops all cached state. Safe to call
// when never initialized. Events the transport delivers late are ignored.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) subscribeLocked(channel, event string, handler func(map[string]any)) {
	key := channel + "|" + event
	if e.subscribed[key] {
		return
	}
	if err := e.transport.Subscribe(channel, event, handler); err != nil {
		// Degraded mode: the user keeps manual refresh, just no live updates.
		log.Printf("msgsync: subscribe %s %s failed: %v", channel, event, err)
		return
	}
	e.subscribed[key] = true
}

func (e *Engine) teardownLocked() {
	if e.sess == nil {
		return
	}
	channel := ChannelForUser(e.sess.userID)
	for _, event := range []string{EventMessageSent, EventMessagesRead} {
		key := channel + "|" + event
		if !e.subscribed[key] {
			continue
		}
		if err := e.transport.Unsubscribe(channel, event); err != nil {
			log.Printf("msgsync: unsubscribe %s %s failed: %v", channel, event, err)
		}
		delete(e.subscribed, key)
	}
	for t := range e.timers {
		t.Stop()
		delete(e.timers, t)
	}
	e.sess = nil
	e.list.Clear()
	e.threads.Clear()
}

// handleMessageSent reacts to an inbound message push. The conversation list
// is invalidated unconditionally (ordering and previews changed); the thread
// is patched in place only when it is already cached — a thread the user has
// never opened is fetched fresh, new message included, on first open.
func (e *Engine) handleMessageSent(sess *session, payload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != sess {
		return
	}

	ev := NormalizeEvent(EventMessageSent, payload)
	if !IsRelevant(ev, sess.userID) {
		return
	}

	e.list.Invalidate(ConversationListKey(sess.userID))
	if ev.ConversationID == "" {
		return
	}

	key := ThreadKey(ev.ConversationID)
	cached, ok := e.threads.Peek(key)
	if !ok {
		return
	}
	msgs, _ := cached.([]Message)
	merged, changed := ReconcileThread(msgs, ev.Message(), e.now())
	if changed {
		e.threads.Set(key, merged)
		e.scheduleThreadBackstopLocked(sess, key)
	}
}

// handleMessagesRead reacts to a read-receipt batch: unread counts moved, so
// the list goes stale, and a named thread is refetched rather than guessing
// which read flags flipped.
func (e *Engine) handleMessagesRead(sess *session, payload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != sess {
		return
	}

	ev := NormalizeEvent(EventMessagesRead, payload)
	if !IsRelevant(ev, sess.userID) {
		return
	}

	e.list.Invalidate(ConversationListKey(sess.userID))
	if ev.ConversationID != "" {
		e.threads.Invalidate(ThreadKey(ev.ConversationID))
	}
}

// scheduleThreadBackstopLocked forces the thread stale a moment after an
// optimistic merge, in case the merged view diverged from server state.
func (e *Engine) scheduleThreadBackstopLocked(sess *session, key Key) {
	if e.backstop <= 0 {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(e.backstop, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.timers, t)
		if e.sess != sess {
			return
		}
		e.threads.Invalidate(key)
	})
	e.timers[t] = struct{}{}
}

// currentSession returns the live session, or nil before Initialize / after
// Cleanup.
func (e *Engine) currentSession() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// CurrentUserID returns the signed-in user the engine is synchronizing for,
// zero when inactive.
func (e *Engine) CurrentUserID() int64 {
	if sess := e.currentSession(); sess != nil {
		return sess.userID
	}
	return 0
}

// Conversations returns the shaped inbox rows, refetching through the
// conversation loader when the cached list is stale.
func (e *Engine) Conversations() []ConversationView {
	sess := e.currentSession()
	if sess == nil {
		return nil
	}

	v, ok := e.list.Get(ConversationListKey(sess.userID))
	if !ok {
		return nil
	}
	convs, _ := v.([]Conversation)

	now := e.now()
	views := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		views = append(views, ShapeConversation(c, now))
	}
	return views
}

// DisplayMessage is one message prepared for a thread view.
type DisplayMessage struct {
	Message
	Own  bool   `json:"own"`
	Time string `json:"time"`
}

// ThreadView is one calendar-day group of displayable messages.
type ThreadView struct {
	Label    string           `json:"label"`
	Messages []DisplayMessage `json:"messages"`
}

// Thread returns the conversation's messages grouped by day, ordered and
// flagged for the current user. The own-message flag is recomputed on every
// call so it follows the signed-in identity.
func (e *Engine) Thread(conversationID string) []ThreadView {
	sess := e.currentSession()
	if sess == nil {
		return nil
	}

	v, ok := e.threads.Get(ThreadKey(conversationID))
	if !ok {
		return nil
	}
	msgs, _ := v.([]Message)

	now := e.now()
	groups := GroupMessagesByDay(msgs)
	views := make([]ThreadView, 0, len(groups))
	for _, g := range groups {
		tv := ThreadView{Label: g.Label, Messages: make([]DisplayMessage, 0, len(g.Messages))}
		for _, m := range g.Messages {
			tv.Messages = append(tv.Messages, DisplayMessage{
				Message: m,
				Own:     IsOwnMessage(m, sess.userID),
				Time:    FormatMessageTime(m.CreatedAt, now),
			})
		}
		views = append(views, tv)
	}
	return views
}

// ApplyLocalMessage merges a message the user just sent into the cached
// thread (so it shows immediately) and marks the list stale for reordering.
// If the thread is not cached the patch is skipped; the list refetch brings
// the message in.
func (e *Engine) ApplyLocalMessage(m Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}

	e.list.Invalidate(ConversationListKey(e.sess.userID))
	if m.ConversationID == "" {
		return
	}
	now := e.now()
	e.threads.Patch(ThreadKey(m.ConversationID), func(v any) any {
		msgs, _ := v.([]Message)
		merged, _ := ReconcileThread(msgs, m, now)
		return merged
	})
}

// MarkThreadRead flips the read flag on cached messages addressed to the
// current user and marks the list stale so its unread count refreshes.
func (e *Engine) MarkThreadRead(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	userID := e.sess.userID

	e.threads.Patch(ThreadKey(conversationID), func(v any) any {
		msgs, _ := v.([]Message)
		out := make([]Message, len(msgs))
		copy(out, msgs)
		for i := range out {
			if out[i].ReceiverID == userID {
				out[i].Read = true
			}
		}
		return out
	})
	e.list.Invalidate(ConversationListKey(userID))
}

// RefreshConversations marks the conversation list stale; the next read
// refetches it.
func (e *Engine) RefreshConversations() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	e.list.Invalidate(ConversationListKey(e.sess.userID))
}

// RefreshThread marks one thread stale; the next read refetches it.
func (e *Engine) RefreshThread(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	e.threads.Invalidate(ThreadKey(conversationID))
}

// WatchConversations registers fn to run whenever the conversation list
// changes or goes stale. Returns a cancel func; a no-op cancel is returned
// when the engine is inactive.
func (e *Engine) WatchConversations(fn func()) func() {
	sess := e.currentSession()
	if sess == nil {
		return func() {}
	}
	return e.list.Watch(ConversationListKey(sess.userID), func(Key) { fn() })
}

// WatchThread registers fn to run whenever the given thread changes or goes
// stale. A no-op cancel is returned when the engine is inactive.
func (e *Engine) WatchThread(conversationID string, fn func()) func() {
	if e.currentSession() == nil {
		return func() {}
	}
	return e.threads.Watch(ThreadKey(conversationID), func(Key) { fn() })
}
