package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/goliatone/go-store/pkg/activity"
	"github.com/goliatone/go-store/pkg/persist"
)

func TestSetCommitsAndGetReturnsClone(t *testing.T) {
	m := New()

	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	value, ok := m.Get("audio.isPlaying")
	if !ok || value != true {
		t.Fatalf("expected true, got %v ok=%t", value, ok)
	}

	waveform := []float32{0.1, 0.5, 0.9}
	if err := m.Set("audio.waveform", waveform); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	waveform[0] = 99 // caller mutation must not reach the store

	stored, _ := m.Get("audio.waveform")
	buffer, ok := stored.([]float32)
	if !ok {
		t.Fatalf("expected []float32, got %T", stored)
	}
	if buffer[0] != 0.1 {
		t.Fatalf("expected stored buffer unaffected by caller mutation, got %v", buffer)
	}
	buffer[1] = 42 // returned clone must not reach the store either
	again, _ := m.Get("audio.waveform")
	if again.([]float32)[1] != 0.5 {
		t.Fatalf("expected store unaffected by mutating a returned value")
	}
}

func TestGetAbsentPathIsNotAnError(t *testing.T) {
	m := New()
	if value, ok := m.Get("audio.nope.deeper"); ok || value != nil {
		t.Fatalf("expected (nil, false) for absent path, got (%v, %t)", value, ok)
	}
	if _, ok := m.Get(""); ok {
		t.Fatalf("expected empty path to report absent")
	}
}

func TestSetUnchangedValueIsNoOp(t *testing.T) {
	m := New()
	notifications := 0
	m.Subscribe(Wildcard, func(Change) { notifications++ })
	before := len(m.History())

	if err := m.Set("audio.isPlaying", false); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if notifications != 0 {
		t.Fatalf("expected zero notifications for unchanged value, got %d", notifications)
	}
	if got := len(m.History()); got != before {
		t.Fatalf("expected no new history entry, had %d now %d", before, got)
	}
	if m.CanUndo() {
		t.Fatalf("expected CanUndo false after a no-op write")
	}
}

func TestSetCreatesIntermediateMappings(t *testing.T) {
	m := New()
	if err := m.Set("ui.panels.left.width", 320); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	value, ok := m.Get("ui.panels.left.width")
	if !ok || value != 320 {
		t.Fatalf("expected 320, got %v ok=%t", value, ok)
	}
}

func TestSubscribeExactAncestorWildcardOrder(t *testing.T) {
	m := New()
	var order []string

	m.Subscribe("audio.isPlaying", func(change Change) {
		if change.Value != true || change.OldValue != false {
			t.Fatalf("exact listener got %+v", change)
		}
		order = append(order, "exact")
	})
	m.Subscribe("audio", func(change Change) {
		if change.Path != "audio.isPlaying" {
			t.Fatalf("ancestor listener got path %q", change.Path)
		}
		order = append(order, "ancestor")
	})
	m.Subscribe(Wildcard, func(change Change) {
		if change.Path != "audio.isPlaying" || change.Value != true || change.OldValue != false {
			t.Fatalf("wildcard listener got %+v", change)
		}
		order = append(order, "wildcard")
	})

	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if len(order) != 3 || order[0] != "exact" || order[1] != "ancestor" || order[2] != "wildcard" {
		t.Fatalf("unexpected dispatch order: %v", order)
	}
}

func TestAncestorListenerDoesNotFireForSiblings(t *testing.T) {
	m := New()
	fired := 0
	m.Subscribe("audio", func(Change) { fired++ })

	if err := m.Set("visual.rotation", 42.0); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if fired != 0 {
		t.Fatalf("expected ancestor listener to ignore sibling section, fired %d times", fired)
	}
}

func TestSubscribeImmediateAndOnce(t *testing.T) {
	m := New()

	var immediate []Change
	m.Subscribe("audio.volume", func(change Change) {
		immediate = append(immediate, change)
	}, Immediate())
	if len(immediate) != 1 {
		t.Fatalf("expected one immediate invocation, got %d", len(immediate))
	}
	if immediate[0].Value != 0.8 || immediate[0].OldValue != 0.8 {
		t.Fatalf("expected immediate call with current value on both sides: %+v", immediate[0])
	}

	onceCalls := 0
	m.Subscribe("audio.isPlaying", func(Change) { onceCalls++ }, Once())
	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if err := m.Set("audio.isPlaying", false); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if onceCalls != 1 {
		t.Fatalf("expected once listener to fire exactly once, fired %d times", onceCalls)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := New()
	calls := 0
	unsubscribe := m.Subscribe("audio.isPlaying", func(Change) { calls++ })

	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	unsubscribe()
	if err := m.Set("audio.isPlaying", false); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one delivery before unsubscribe, got %d", calls)
	}
}

func TestPanickingListenerDoesNotBlockSiblings(t *testing.T) {
	var logged []DispatchEvent
	m := New(WithDispatchLogger(DispatchLoggerFunc(func(event DispatchEvent) {
		logged = append(logged, event)
	})))

	secondFired := false
	m.Subscribe("audio.isPlaying", func(Change) { panic("listener boom") })
	m.Subscribe("audio.isPlaying", func(Change) { secondFired = true })

	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if !secondFired {
		t.Fatalf("expected second listener to fire despite sibling panic")
	}
	if len(logged) != 1 || logged[0].Path != "audio.isPlaying" {
		t.Fatalf("expected one logged dispatch failure, got %+v", logged)
	}
}

func TestReentrantSetFromListener(t *testing.T) {
	m := New()
	m.Subscribe("audio.isPlaying", func(change Change) {
		if change.Value == true {
			if err := m.Set("visual.glow", false); err != nil {
				t.Fatalf("re-entrant Set failed: %v", err)
			}
		}
	})

	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	glow, _ := m.Get("visual.glow")
	if glow != false {
		t.Fatalf("expected re-entrant write to land, got %v", glow)
	}
}

func TestValidationRejectsOutOfRange(t *testing.T) {
	m := New()

	err := m.Set("audio.playhead", 1.5)
	if err == nil {
		t.Fatalf("expected validation error for playhead 1.5")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if verr.Path != "audio.playhead" || verr.Value != 1.5 || verr.Constraint == "" {
		t.Fatalf("unexpected validation error contents: %+v", verr)
	}
	if value, _ := m.Get("audio.playhead"); value != 0.0 {
		t.Fatalf("expected state unchanged after rejection, got %v", value)
	}

	if err := m.Set("audio.playhead", 1.5, SkipValidation()); err != nil {
		t.Fatalf("expected SkipValidation to bypass checks: %v", err)
	}
	if value, _ := m.Get("audio.playhead"); value != 1.5 {
		t.Fatalf("expected 1.5 after bypassed write, got %v", value)
	}
}

func TestCustomPredicatesRunAfterBuiltins(t *testing.T) {
	m := New()
	m.RuleNamed("audio.volume", "no more than 0.5 on quiet hours", func(value any) error {
		if n, ok := value.(float64); ok && n > 0.5 {
			return fmt.Errorf("too loud")
		}
		return nil
	})

	// Out of the built-in [0,1] range: built-in must reject first.
	err := m.Set("audio.volume", 1.2)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Constraint != "0 <= value <= 1" {
		t.Fatalf("expected built-in range rejection first, got %v", err)
	}

	// Inside the built-in range but above the custom cap.
	err = m.Set("audio.volume", 0.9)
	if !errors.As(err, &verr) || verr.Constraint != "no more than 0.5 on quiet hours" {
		t.Fatalf("expected custom predicate rejection, got %v", err)
	}

	if err := m.Set("audio.volume", 0.3); err != nil {
		t.Fatalf("expected in-range value accepted: %v", err)
	}
}

func TestBatchCoalescesHistoryAndNotifiesPerPath(t *testing.T) {
	m := New()
	var notified []string
	m.Subscribe(Wildcard, func(change Change) { notified = append(notified, change.Path) })
	entriesBefore := len(m.History())

	err := m.Batch(map[string]any{
		"audio.isPlaying": true,
		"audio.duration":  120.0,
		"visual.glow":     true, // already true: must not notify
	})
	if err != nil {
		t.Fatalf("unexpected error from Batch: %v", err)
	}

	if len(notified) != 2 {
		t.Fatalf("expected two notifications for two changed paths, got %v", notified)
	}
	if got := len(m.History()); got != entriesBefore+1 {
		t.Fatalf("expected exactly one history entry for the batch, had %d now %d", entriesBefore, got)
	}
	if !m.CanUndo() {
		t.Fatalf("expected CanUndo true after a changing batch")
	}
}

func TestBatchWithNoChangesAppendsNothing(t *testing.T) {
	m := New()
	entriesBefore := len(m.History())

	err := m.Batch(map[string]any{
		"audio.isPlaying": false,
		"visual.glow":     true,
	})
	if err != nil {
		t.Fatalf("unexpected error from Batch: %v", err)
	}
	if got := len(m.History()); got != entriesBefore {
		t.Fatalf("expected no history entry for an all-unchanged batch, had %d now %d", entriesBefore, got)
	}
	if m.CanUndo() {
		t.Fatalf("expected CanUndo false after an all-unchanged batch")
	}
}

func TestBatchValidationAbortsBeforeAnyCommit(t *testing.T) {
	m := New()
	err := m.Batch(map[string]any{
		"audio.isPlaying": true,
		"audio.volume":    3.0,
	})
	if err == nil {
		t.Fatalf("expected batch rejection")
	}
	if playing, _ := m.Get("audio.isPlaying"); playing != false {
		t.Fatalf("expected no partial commit, isPlaying=%v", playing)
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	m := New()

	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if !m.Undo() {
		t.Fatalf("expected Undo to succeed")
	}
	if playing, _ := m.Get("audio.isPlaying"); playing != false {
		t.Fatalf("expected false after undo, got %v", playing)
	}
	if !m.Redo() {
		t.Fatalf("expected Redo to succeed")
	}
	if playing, _ := m.Get("audio.isPlaying"); playing != true {
		t.Fatalf("expected true after redo, got %v", playing)
	}
	if m.Redo() {
		t.Fatalf("expected Redo false at the newest entry")
	}
}

func TestUndoAtOldestEntryReturnsFalse(t *testing.T) {
	m := New()
	if m.Undo() {
		t.Fatalf("expected Undo false with no recorded changes")
	}
}

func TestUndoNotifiesRestoredPaths(t *testing.T) {
	m := New()
	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}

	var changes []Change
	m.Subscribe("audio.isPlaying", func(change Change) { changes = append(changes, change) })
	if !m.Undo() {
		t.Fatalf("expected Undo to succeed")
	}
	if len(changes) != 1 || changes[0].Value != false || changes[0].OldValue != true {
		t.Fatalf("expected one restore notification, got %+v", changes)
	}
}

func TestCommitAfterUndoDiscardsRedoTail(t *testing.T) {
	m := New()
	if err := m.Set("visual.rotation", 90.0); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if err := m.Set("visual.rotation", 180.0); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if !m.Undo() {
		t.Fatalf("expected Undo to succeed")
	}
	if !m.CanRedo() {
		t.Fatalf("expected a redo tail after undo")
	}
	if err := m.Set("visual.rotation", 270.0); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if m.CanRedo() {
		t.Fatalf("expected redo tail discarded by a new commit")
	}
}

func TestHistoryMetadataHasSingleCurrentEntry(t *testing.T) {
	m := New()
	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if err := m.Set("audio.isPlaying", false); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	m.Undo()

	entries := m.History()
	current := 0
	for _, entry := range entries {
		if entry.Current {
			current++
		}
		if entry.ID == "" || entry.TakenAt.IsZero() {
			t.Fatalf("expected populated entry metadata: %+v", entry)
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one current entry, got %d in %+v", current, entries)
	}
}

func TestResetRestoresSectionDefaults(t *testing.T) {
	m := New()
	if err := m.Set("audio.volume", 0.2); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if err := m.Set("ui.theme", "light"); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}

	var restored []string
	m.Subscribe(Wildcard, func(change Change) { restored = append(restored, change.Path) })

	m.Reset("audio")
	if volume, _ := m.Get("audio.volume"); volume != 0.8 {
		t.Fatalf("expected audio.volume back at default, got %v", volume)
	}
	if theme, _ := m.Get("ui.theme"); theme != "light" {
		t.Fatalf("expected ui untouched by sectioned reset, got %v", theme)
	}
	if len(restored) != 1 || restored[0] != "audio.volume" {
		t.Fatalf("expected one restore notification for audio.volume, got %v", restored)
	}

	m.Reset()
	if theme, _ := m.Get("ui.theme"); theme != "dark" {
		t.Fatalf("expected full reset to restore ui.theme, got %v", theme)
	}
}

func TestExportCapturesStateWithVersion(t *testing.T) {
	m := New()
	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}

	snapshot := m.Export()
	if snapshot.Version == 0 || snapshot.Timestamp.IsZero() || snapshot.SnapshotID == "" {
		t.Fatalf("expected populated snapshot envelope: %+v", snapshot)
	}
	audio, ok := snapshot.State["audio"].(map[string]any)
	if !ok || audio["isPlaying"] != true {
		t.Fatalf("expected exported state to include committed values: %+v", snapshot.State)
	}

	// Mutating the export must not reach the store.
	audio["isPlaying"] = false
	if playing, _ := m.Get("audio.isPlaying"); playing != true {
		t.Fatalf("expected store unaffected by export mutation, got %v", playing)
	}
}

func TestDebugReportsRegistries(t *testing.T) {
	m := New()
	m.Subscribe("audio", func(Change) {})
	if err := m.Compute("audio.remaining", []string{"audio.duration", "audio.currentTime"}, func(values ...any) any {
		duration, _ := values[0].(float64)
		current, _ := values[1].(float64)
		return duration - current
	}); err != nil {
		t.Fatalf("unexpected error from Compute: %v", err)
	}

	info := m.Debug()
	if len(info.Listeners) == 0 {
		t.Fatalf("expected listeners in debug info")
	}
	foundComputed := false
	for _, c := range info.Computed {
		if c.Name == "audio.remaining" && len(c.Deps) == 2 {
			foundComputed = true
		}
	}
	if !foundComputed {
		t.Fatalf("expected computed registry in debug info: %+v", info.Computed)
	}
	if len(info.Rules) == 0 {
		t.Fatalf("expected built-in rules in debug info")
	}
	if len(info.History) == 0 {
		t.Fatalf("expected history metadata in debug info")
	}
	if _, err := info.ToJSON(); err != nil {
		t.Fatalf("expected debug info to serialise: %v", err)
	}
}

func TestActivityHooksReceiveOperationEvents(t *testing.T) {
	capture := &activity.CaptureHook{}
	m := New(WithActivityHooks(activity.Hooks{capture}), WithBackend(persist.NewMemory()))

	if err := m.Set("audio.isPlaying", true); err != nil {
		t.Fatalf("unexpected error from Set: %v", err)
	}
	if err := m.Batch(map[string]any{"audio.volume": 0.5, "ui.panelOpen": true}); err != nil {
		t.Fatalf("unexpected error from Batch: %v", err)
	}
	m.Undo()
	m.Redo()
	m.Save()
	m.Reset("visual")

	var verbs []string
	for _, event := range capture.Events {
		verbs = append(verbs, event.Verb)
	}
	want := []string{
		activity.VerbSet,
		activity.VerbBatch,
		activity.VerbUndo,
		activity.VerbRedo,
		activity.VerbSave,
		activity.VerbReset,
	}
	if len(verbs) != len(want) {
		t.Fatalf("expected %v, got %v", want, verbs)
	}
	for i, verb := range want {
		if verbs[i] != verb {
			t.Fatalf("expected %v, got %v", want, verbs)
		}
	}

	set := capture.Events[0]
	if set.Path != "audio.isPlaying" || set.ID == "" || set.Channel != "store" {
		t.Fatalf("unexpected set event: %+v", set)
	}
	batch := capture.Events[1]
	if len(batch.Paths) != 2 {
		t.Fatalf("expected the batch event to carry changed paths, got %+v", batch)
	}
}

func TestInitialOverlayMergesOverDefaults(t *testing.T) {
	m := New(WithInitial(map[string]any{
		"audio": map[string]any{"volume": 0.5},
		"ui":    map[string]any{"theme": "light"},
	}))

	if volume, _ := m.Get("audio.volume"); volume != 0.5 {
		t.Fatalf("expected overlay volume, got %v", volume)
	}
	// Untouched siblings keep their defaults.
	if playing, _ := m.Get("audio.isPlaying"); playing != false {
		t.Fatalf("expected default isPlaying, got %v", playing)
	}
	if theme, _ := m.Get("ui.theme"); theme != "light" {
		t.Fatalf("expected overlay theme, got %v", theme)
	}
}
