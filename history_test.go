package store

import (
	"fmt"
	"testing"
)

func TestHistoryRecordAndStep(t *testing.T) {
	h := newHistory(map[string]any{"n": 0}, 10)
	h.record(map[string]any{"n": 1})
	h.record(map[string]any{"n": 2})

	state, ok := h.stepBack()
	if !ok || state["n"] != 1 {
		t.Fatalf("expected n=1, got %v ok=%t", state, ok)
	}
	state, ok = h.stepBack()
	if !ok || state["n"] != 0 {
		t.Fatalf("expected baseline n=0, got %v ok=%t", state, ok)
	}
	if _, ok := h.stepBack(); ok {
		t.Fatalf("expected stepBack to refuse past the oldest entry")
	}

	state, ok = h.stepForward()
	if !ok || state["n"] != 1 {
		t.Fatalf("expected n=1 on redo, got %v ok=%t", state, ok)
	}
}

func TestHistoryRecordTruncatesRedoTail(t *testing.T) {
	h := newHistory(map[string]any{"n": 0}, 10)
	h.record(map[string]any{"n": 1})
	h.record(map[string]any{"n": 2})
	h.stepBack()

	h.record(map[string]any{"n": 9})
	if h.canStepForward() {
		t.Fatalf("expected redo tail discarded after a new record")
	}
	if len(h.entries) != 3 {
		t.Fatalf("expected baseline plus two entries, got %d", len(h.entries))
	}
	if state, _ := h.stepBack(); state["n"] != 1 {
		t.Fatalf("expected the surviving entry before the new one, got %v", state)
	}
}

func TestHistoryDropsOldestBeyondLimit(t *testing.T) {
	h := newHistory(map[string]any{"n": 0}, 3)
	for i := 1; i <= 5; i++ {
		h.record(map[string]any{"n": i})
	}
	if len(h.entries) != 3 {
		t.Fatalf("expected capped length 3, got %d", len(h.entries))
	}
	// The oldest surviving entry is n=3; undoing twice lands there.
	h.stepBack()
	state, ok := h.stepBack()
	if !ok || state["n"] != 3 {
		t.Fatalf("expected oldest surviving n=3, got %v ok=%t", state, ok)
	}
	if h.canStepBack() {
		t.Fatalf("expected no further undo past the dropped entries")
	}
}

func TestHistoryLimitFloor(t *testing.T) {
	h := newHistory(map[string]any{}, 0)
	if h.limit != DefaultHistoryLimit {
		t.Fatalf("expected default limit for a degenerate value, got %d", h.limit)
	}
}

func TestManagerHistoryLimitViaOption(t *testing.T) {
	m := New(WithHistoryLimit(3))
	for i := 0; i < 10; i++ {
		if err := m.Set("visual.rotation", float64(i)); err != nil {
			t.Fatalf("unexpected error from Set: %v", err)
		}
	}

	undos := 0
	for m.Undo() {
		undos++
	}
	if undos != 2 {
		t.Fatalf("expected the undo depth capped by the limit, got %d", undos)
	}
	// The baseline itself was dropped, so the oldest reachable state is a
	// recorded one, not the defaults.
	if rotation, _ := m.Get("visual.rotation"); rotation != 7.0 {
		t.Fatalf("expected oldest surviving rotation 7, got %v", rotation)
	}
}

func TestHistoryMetadataIndexesAndCursor(t *testing.T) {
	h := newHistory(map[string]any{"n": 0}, 10)
	for i := 1; i <= 3; i++ {
		h.record(map[string]any{"n": i})
	}
	h.stepBack()

	entries := h.metadata()
	if len(entries) != 4 {
		t.Fatalf("expected four entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Index != i {
			t.Fatalf("expected contiguous indexes, got %+v", entries)
		}
		wantCurrent := i == 2
		if entry.Current != wantCurrent {
			t.Fatalf("entry %d: Current=%t, want %t", i, entry.Current, wantCurrent)
		}
	}
	seen := map[string]bool{}
	for _, entry := range entries {
		if seen[entry.ID] {
			t.Fatalf("expected unique entry IDs, got duplicate %s", entry.ID)
		}
		seen[entry.ID] = true
	}
}

func TestUndoRedoSequenceThroughManager(t *testing.T) {
	m := New()
	values := []float64{0.1, 0.2, 0.3}
	for _, v := range values {
		if err := m.Set("audio.volume", v); err != nil {
			t.Fatalf("unexpected error from Set: %v", err)
		}
	}

	for i := len(values) - 2; i >= 0; i-- {
		if !m.Undo() {
			t.Fatalf("expected Undo %d to succeed", i)
		}
		if got, _ := m.Get("audio.volume"); got != values[i] {
			t.Fatalf("expected %v after undo, got %v", values[i], got)
		}
	}
	if !m.Undo() {
		t.Fatalf("expected final undo to the defaults")
	}
	if got, _ := m.Get("audio.volume"); got != 0.8 {
		t.Fatalf("expected the default volume at the baseline, got %v", got)
	}

	for _, want := range values {
		if !m.Redo() {
			t.Fatalf("expected Redo to succeed toward %v", want)
		}
		if got, _ := m.Get("audio.volume"); got != want {
			t.Fatalf("expected %v after redo, got %v", want, got)
		}
	}
}

func TestHistorySnapshotsAreIsolated(t *testing.T) {
	m := New()
	buffer := []float32{0.1, 0.2}
	if err := m.Set("audio.waveform", buffer); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if err := m.Set("audio.waveform", []float32{0.9}); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	buffer[0] = 77 // must not reach any recorded snapshot

	if !m.Undo() {
		t.Fatalf("expected Undo to succeed")
	}
	restored, _ := m.Get("audio.waveform")
	if fmt.Sprintf("%v", restored) != "[0.1 0.2]" {
		t.Fatalf("expected the recorded snapshot untouched, got %v", restored)
	}
}
