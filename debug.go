package store

import (
	"encoding/json"
	"sort"
	"time"
)

// Snapshot is an envelope-shaped capture of the whole tree.
type Snapshot struct {
	State      map[string]any `json:"state"`
	Version    int            `json:"version"`
	Timestamp  time.Time      `json:"timestamp"`
	SnapshotID string         `json:"snapshotId"`
}

// ListenerInfo describes one registered subscription.
type ListenerInfo struct {
	ID      string `json:"id"`
	Pattern string `json:"pattern"`
	Once    bool   `json:"once,omitempty"`
}

// ComputedInfo describes one registered computed property.
type ComputedInfo struct {
	Name       string   `json:"name"`
	Deps       []string `json:"deps"`
	Expr       string   `json:"expr,omitempty"`
	Dirty      bool     `json:"dirty"`
	Expression bool     `json:"expression,omitempty"`
}

// RuleInfo describes one registered validation predicate.
type RuleInfo struct {
	Path       string `json:"path"`
	Constraint string `json:"constraint,omitempty"`
	Builtin    bool   `json:"builtin,omitempty"`
}

// DebugInfo is a point-in-time view of everything the store tracks, intended
// for inspection and logging, never for mutation.
type DebugInfo struct {
	State     map[string]any `json:"state"`
	Listeners []ListenerInfo `json:"listeners"`
	Computed  []ComputedInfo `json:"computed"`
	Rules     []RuleInfo     `json:"rules"`
	History   []HistoryEntry `json:"history"`
}

// ToJSON serialises the debug view for logging or transport helpers.
func (d DebugInfo) ToJSON() ([]byte, error) {
	type alias DebugInfo
	return json.Marshal(alias(d))
}

// Debug captures the current state, listener registry, computed registry,
// rule registry and history metadata.
func (m *Manager) Debug() DebugInfo {
	listeners := m.subs.info()
	sort.Slice(listeners, func(i, j int) bool {
		if listeners[i].Pattern != listeners[j].Pattern {
			return listeners[i].Pattern < listeners[j].Pattern
		}
		return listeners[i].ID < listeners[j].ID
	})
	computed := m.computed.info()
	sort.Slice(computed, func(i, j int) bool { return computed[i].Name < computed[j].Name })
	rules := m.rules.info()
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Path != rules[j].Path {
			return rules[i].Path < rules[j].Path
		}
		return rules[i].Constraint < rules[j].Constraint
	})
	return DebugInfo{
		State:     m.Tree(),
		Listeners: listeners,
		Computed:  computed,
		Rules:     rules,
		History:   m.History(),
	}
}
