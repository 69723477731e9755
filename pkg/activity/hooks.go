// Package activity fans out audit events describing store operations (sets,
// batches, undo/redo moves, persistence and resets) to pluggable hooks.
package activity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Verbs emitted by the store for its operations.
const (
	VerbSet   = "store.set"
	VerbBatch = "store.batch"
	VerbUndo  = "store.undo"
	VerbRedo  = "store.redo"
	VerbSave  = "store.save"
	VerbLoad  = "store.load"
	VerbReset = "store.reset"
)

// Event describes one store operation that can be fanned out to hooks.
type Event struct {
	ID         string
	Verb       string
	Path       string
	Paths      []string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Hook receives normalized store events.
type Hook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy Hook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []Hook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify forwards the event to all hooks, returning a joined error if any
// fail. It normalizes the event and short-circuits when the verb is missing.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims whitespace, clones the path list and metadata, and
// ensures a timestamp is present.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.Path = strings.TrimSpace(event.Path)
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.Metadata = cloneMap(event.Metadata)
	if len(event.Paths) > 0 {
		normalized.Paths = append([]string{}, event.Paths...)
	} else {
		normalized.Paths = nil
	}
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
