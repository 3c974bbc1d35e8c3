package msgsync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetMissingWithoutLoader(t *testing.T) {
	s := NewStore(nil)
	v, ok := s.Get(Key("thread:1"))
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestStoreSetThenGet(t *testing.T) {
	s := NewStore(nil)
	s.Set(Key("thread:1"), []Message{{ID: 1}})

	v, ok := s.Get(Key("thread:1"))
	require.True(t, ok)
	msgs := v.([]Message)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].ID)

	state, ok := s.State(Key("thread:1"))
	require.True(t, ok)
	assert.Equal(t, StateFresh, state)
}

func TestStoreInvalidateRefetchesOnNextGet(t *testing.T) {
	calls := 0
	s := NewStore(func(key Key) (any, error) {
		calls++
		return []Message{{ID: int64(calls)}}, nil
	})

	v, ok := s.Get(Key("thread:1"))
	require.True(t, ok)
	assert.Equal(t, 1, calls)

	// Fresh entry: no reload.
	v, ok = s.Get(Key("thread:1"))
	require.True(t, ok)
	assert.Equal(t, 1, calls)

	s.Invalidate(Key("thread:1"))
	state, _ := s.State(Key("thread:1"))
	assert.Equal(t, StateStale, state)

	v, ok = s.Get(Key("thread:1"))
	require.True(t, ok)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(2), v.([]Message)[0].ID)
}

func TestStoreInvalidateDuringLoadKeepsEntryStale(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	s := NewStore(func(key Key) (any, error) {
		calls++
		if calls == 1 {
			close(started)
			<-release
			return "pre-event value", nil
		}
		return "post-event value", nil
	})

	s.Set(Key("conversations:9"), "seed")
	s.Invalidate(Key("conversations:9"))

	done := make(chan any)
	go func() {
		v, _ := s.Get(Key("conversations:9"))
		done <- v
	}()

	// An event lands while the refetch is in flight.
	<-started
	s.Invalidate(Key("conversations:9"))
	close(release)

	assert.Equal(t, "pre-event value", <-done)

	state, ok := s.State(Key("conversations:9"))
	require.True(t, ok)
	assert.Equal(t, StateStale, state, "mid-flight invalidation must survive the commit")

	v, ok := s.Get(Key("conversations:9"))
	require.True(t, ok)
	assert.Equal(t, "post-event value", v, "next read should refetch")
	assert.Equal(t, 2, calls)
}

func TestStoreLoaderFailureKeepsPriorValue(t *testing.T) {
	fail := false
	s := NewStore(func(key Key) (any, error) {
		if fail {
			return nil, errors.New("network down")
		}
		return []Message{{ID: 1}}, nil
	})

	_, ok := s.Get(Key("thread:1"))
	require.True(t, ok)

	fail = true
	s.Invalidate(Key("thread:1"))

	v, ok := s.Get(Key("thread:1"))
	require.True(t, ok, "stale value should survive a failed reload")
	assert.Equal(t, int64(1), v.([]Message)[0].ID)

	state, _ := s.State(Key("thread:1"))
	assert.Equal(t, StateError, state)
}

func TestStorePatchMissingIsNoop(t *testing.T) {
	s := NewStore(nil)
	applied := s.Patch(Key("thread:9"), func(v any) any {
		return []Message{{ID: 99}}
	})
	assert.False(t, applied)

	// The patch must not have materialized an entry.
	_, ok := s.Peek(Key("thread:9"))
	assert.False(t, ok)
}

func TestStorePatchExistingNotifiesWatchers(t *testing.T) {
	s := NewStore(nil)
	s.Set(Key("thread:1"), []Message{{ID: 1}})

	notified := 0
	cancel := s.Watch(Key("thread:1"), func(Key) { notified++ })
	defer cancel()

	applied := s.Patch(Key("thread:1"), func(v any) any {
		msgs := v.([]Message)
		return append(msgs, Message{ID: 2})
	})
	require.True(t, applied)
	assert.Equal(t, 1, notified)

	v, _ := s.Peek(Key("thread:1"))
	assert.Len(t, v.([]Message), 2)
}

func TestStoreWatchCancelStopsNotifications(t *testing.T) {
	s := NewStore(nil)
	notified := 0
	cancel := s.Watch(Key("conversations:7"), func(Key) { notified++ })

	s.Set(Key("conversations:7"), []Conversation{})
	assert.Equal(t, 1, notified)

	cancel()
	s.Set(Key("conversations:7"), []Conversation{{ID: "1"}})
	s.Invalidate(Key("conversations:7"))
	assert.Equal(t, 1, notified)
}

func TestStoreInvalidateNotifiesWatchers(t *testing.T) {
	s := NewStore(nil)
	s.Set(Key("conversations:7"), []Conversation{})

	notified := 0
	cancel := s.Watch(Key("conversations:7"), func(Key) { notified++ })
	defer cancel()

	s.Invalidate(Key("conversations:7"))
	assert.Equal(t, 1, notified)
}

func TestStoreClearDropsEntriesKeepsWatchers(t *testing.T) {
	s := NewStore(nil)
	s.Set(Key("thread:1"), []Message{{ID: 1}})

	notified := 0
	cancel := s.Watch(Key("thread:1"), func(Key) { notified++ })
	defer cancel()
	notified = 0

	s.Clear()
	_, ok := s.Peek(Key("thread:1"))
	assert.False(t, ok)

	s.Set(Key("thread:1"), []Message{{ID: 2}})
	assert.Equal(t, 1, notified, "watcher should survive Clear")
}

func TestKeyRoundTrips(t *testing.T) {
	assert.Equal(t, int64(7), userIDFromListKey(ConversationListKey(7)))
	assert.Equal(t, "booking_42", conversationIDFromThreadKey(ThreadKey("booking_42")))
	assert.Equal(t, "12", conversationIDFromThreadKey(ThreadKey("12")))
}
