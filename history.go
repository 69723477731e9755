package store

import (
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit caps the undo stack when no explicit limit is set.
const DefaultHistoryLimit = 50

// HistoryEntry is the public metadata for one recorded snapshot. Exactly one
// entry reports Current true.
type HistoryEntry struct {
	Index   int       `json:"index"`
	ID      string    `json:"id"`
	TakenAt time.Time `json:"takenAt"`
	Current bool      `json:"current"`
}

// historyEntry pairs an immutable snapshot of the whole tree with its
// capture time.
type historyEntry struct {
	id      uuid.UUID
	state   map[string]any
	takenAt time.Time
}

// history is a single linear snapshot list with a cursor. Entries after the
// cursor form the redo tail; any new commit discards them.
type history struct {
	entries []*historyEntry
	cursor  int
	limit   int
}

func newHistory(baseline map[string]any, limit int) *history {
	if limit < 2 {
		limit = DefaultHistoryLimit
	}
	return &history{
		entries: []*historyEntry{newHistoryEntry(baseline)},
		cursor:  0,
		limit:   limit,
	}
}

func newHistoryEntry(state map[string]any) *historyEntry {
	return &historyEntry{
		id:      uuid.New(),
		state:   state,
		takenAt: time.Now(),
	}
}

// record appends a snapshot after the cursor, truncating any redo tail and
// dropping the oldest entry once the limit is reached. The snapshot is
// adopted as-is; callers pass a fresh clone.
func (h *history) record(state map[string]any) {
	h.entries = append(h.entries[:h.cursor+1], newHistoryEntry(state))
	h.cursor = len(h.entries) - 1
	if len(h.entries) > h.limit {
		overflow := len(h.entries) - h.limit
		h.entries = append([]*historyEntry(nil), h.entries[overflow:]...)
		h.cursor -= overflow
	}
}

// stepBack moves the cursor one entry toward the oldest snapshot and returns
// it. Returns false when already at the oldest entry.
func (h *history) stepBack() (map[string]any, bool) {
	if h.cursor == 0 {
		return nil, false
	}
	h.cursor--
	return h.entries[h.cursor].state, true
}

// stepForward is the symmetric forward motion.
func (h *history) stepForward() (map[string]any, bool) {
	if h.cursor >= len(h.entries)-1 {
		return nil, false
	}
	h.cursor++
	return h.entries[h.cursor].state, true
}

func (h *history) canStepBack() bool {
	return h.cursor > 0
}

func (h *history) canStepForward() bool {
	return h.cursor < len(h.entries)-1
}

func (h *history) metadata() []HistoryEntry {
	entries := make([]HistoryEntry, len(h.entries))
	for i, entry := range h.entries {
		entries[i] = HistoryEntry{
			Index:   i,
			ID:      entry.id.String(),
			TakenAt: entry.takenAt,
			Current: i == h.cursor,
		}
	}
	return entries
}
