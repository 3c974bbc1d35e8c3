package msgsync

import (
	"strconv"
	"strings"
	"sync"
)

// Key addresses one cache entry: either a user's conversation list or one
// conversation's message thread.
type Key string

func ConversationListKey(userID int64) Key {
	return Key("conversations:" + strconv.FormatInt(userID, 10))
}

func ThreadKey(conversationID string) Key {
	return Key("thread:" + conversationID)
}

func userIDFromListKey(key Key) int64 {
	rest, ok := strings.CutPrefix(string(key), "conversations:")
	if !ok {
		return 0
	}
	id, _ := strconv.ParseInt(rest, 10, 64)
	return id
}

func conversationIDFromThreadKey(key Key) string {
	rest, _ := strings.CutPrefix(string(key), "thread:")
	return rest
}

// EntryState tracks the freshness of a cache entry.
type EntryState int

const (
	StateFresh EntryState = iota
	StateStale
	StateError
)

// Loader fetches the authoritative value for a key. It is consulted on the
// next read after an entry goes missing or stale, never eagerly.
type Loader func(key Key) (any, error)

type entry struct {
	value any
	state EntryState
	gen   uint64
}

// Store is the engine's in-memory cache. Writes notify watchers of the
// affected key so views can re-read; invalidation marks an entry stale
// without blocking, and the stale value is replaced through the loader on the
// next Get.
type Store struct {
	mu          sync.Mutex
	loader      Loader
	entries     map[Key]*entry
	watchers    map[Key]map[int64]func(Key)
	nextWatcher int64
}

func NewStore(loader Loader) *Store {
	return &Store{
		loader:   loader,
		entries:  make(map[Key]*entry),
		watchers: make(map[Key]map[int64]func(Key)),
	}
}

// Peek returns the cached value without consulting the loader, regardless of
// staleness.
func (s *Store) Peek(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// State reports the freshness of a cached entry.
func (s *Store) State(key Key) (EntryState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return StateFresh, false
	}
	return e.state, true
}

// Get returns the value for key, refetching through the loader when the entry
// is missing or stale. A loader failure degrades to the previous value. The
// loader runs outside the store mutex; if the entry is written to while the
// fetch is in flight, the loaded value is committed but left stale so the
// next read refetches instead of serving data that predates the write.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && e.state == StateFresh {
		v := e.value
		s.mu.Unlock()
		return v, true
	}
	if s.loader == nil {
		var v any
		if ok {
			v = e.value
		}
		s.mu.Unlock()
		return v, ok
	}
	var startGen uint64
	if ok {
		startGen = e.gen
	}
	s.mu.Unlock()

	loaded, err := s.loader(key)

	s.mu.Lock()
	e, ok = s.entries[key]
	if err != nil {
		if !ok {
			s.mu.Unlock()
			return nil, false
		}
		e.state = StateError
		v := e.value
		s.mu.Unlock()
		return v, true
	}

	state := StateFresh
	if ok && e.gen != startGen {
		state = StateStale
	}
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.value = loaded
	e.state = state
	fns := s.watchersForLocked(key)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
	return loaded, true
}

// Set stores a fresh value and notifies watchers of the key.
func (s *Store) Set(key Key, value any) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.value = value
	e.state = StateFresh
	e.gen++
	fns := s.watchersForLocked(key)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}

// Patch applies updater to an existing entry. A missing entry is left alone:
// a thread must never be materialized from a patch, since its surrounding
// metadata would be absent. Reports whether the patch was applied.
func (s *Store) Patch(key Key, updater func(any) any) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	e.value = updater(e.value)
	e.gen++
	fns := s.watchersForLocked(key)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
	return true
}

// Invalidate marks the entry stale and notifies watchers. It never blocks on
// a refetch; the loader runs on the next Get.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.state = StateStale
		e.gen++
	}
	fns := s.watchersForLocked(key)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}

// Watch registers fn to run after every Set, Patch or Invalidate of key. The
// returned cancel removes the registration. Watchers must not call back into
// the store's owner synchronously.
func (s *Store) Watch(key Key, fn func(Key)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[int64]func(Key))
	}
	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[key][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if m, ok := s.watchers[key]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(s.watchers, key)
			}
		}
	}
}

// Clear drops every entry. Watch registrations survive so remounted views
// keep observing their keys.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[Key]*entry)
}

func (s *Store) watchersForLocked(key Key) []func(Key) {
	m := s.watchers[key]
	if len(m) == 0 {
		return nil
	}
	fns := make([]func(Key), 0, len(m))
	for _, fn := range m {
		fns = append(fns, fn)
	}
	return fns
}
