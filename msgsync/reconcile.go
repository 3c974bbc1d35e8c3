package msgsync

import "time"

// ReconcileThread merges an inbound message into a cached thread. The merge
// deduplicates by message id: replaying an event, or receiving the push for a
// message the user just appended locally, returns the input slice untouched.
// A new message has its timestamps normalized (absent values fall back to
// now) and is appended; the result is not re-sorted here — inbound events
// arrive in server-send order, and display-side grouping restores order when
// that assumption slips.
//
// A message without an id can never be deduplicated and is always appended;
// a duplicate row on screen is preferred over silently dropping a message.
//
// Reports whether the thread changed.
func ReconcileThread(msgs []Message, incoming Message, now time.Time) ([]Message, bool) {
	if incoming.ID != 0 {
		for i := range msgs {
			if msgs[i].ID == incoming.ID {
				return msgs, false
			}
		}
	}

	if incoming.CreatedAt.IsZero() {
		incoming.CreatedAt = now
	}
	if incoming.UpdatedAt.IsZero() {
		incoming.UpdatedAt = incoming.CreatedAt
	}

	out := make([]Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, incoming), true
}
