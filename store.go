// Package store implements the reactive state container behind the circular
// waveform player: a path-addressed tree with validation, three-tier change
// subscriptions, memoized computed properties, linear undo/redo and versioned
// persistence. Collaborators (audio engine, renderer, interaction handlers)
// only ever touch the Manager facade.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-store/pkg/activity"
	"github.com/goliatone/go-store/pkg/persist"
)

// Manager composes the state tree, rules, subscriptions, computed properties,
// history and persistence behind one synchronous surface. Every public
// operation runs to completion before returning; listener callbacks run
// synchronously and may re-enter the store.
type Manager struct {
	mu       sync.Mutex
	tree     *tree
	hist     *history
	rules    *ruleSet
	subs     *subscriptions
	computed *computedRegistry
	codec    *persist.Codec
	emitter  *activity.Emitter
	cfg      config
}

// New constructs a Manager from the default player tree merged with an
// optional initial overlay. Without an explicit evaluator, expression rules
// and computed expressions run on expr-lang with a shared program cache.
func New(opts ...Option) *Manager {
	cfg := applyOptions(opts)
	if cfg.programCache == nil {
		cfg.programCache = NewMemoryProgramCache()
	}
	if cfg.evaluator == nil {
		evalOpts := []ExprEvaluatorOption{ExprWithProgramCache(cfg.programCache)}
		if cfg.functions != nil {
			evalOpts = append(evalOpts, ExprWithFunctionRegistry(cfg.functions))
		}
		cfg.evaluator = NewExprEvaluator(evalOpts...)
	}
	if cfg.evalLogger == nil {
		cfg.evalLogger = noopEvalLogger{}
	}
	if cfg.dispatchLogger == nil {
		cfg.dispatchLogger = noopDispatchLogger{}
	}
	if cfg.persistLogger == nil {
		cfg.persistLogger = noopPersistLogger{}
	}

	m := &Manager{
		tree:     newTree(mergeTrees(cfg.defaults, cfg.initial)),
		rules:    newRuleSet(),
		subs:     newSubscriptions(cfg.dispatchLogger),
		computed: newComputedRegistry(),
		cfg:      cfg,
	}
	m.hist = newHistory(m.tree.snapshot(), cfg.historyLimit)

	var codecOpts []persist.CodecOption
	for from, fn := range cfg.migrations {
		codecOpts = append(codecOpts, persist.WithMigration(from, fn))
	}
	m.codec = persist.NewCodec(codecOpts...)
	m.emitter = activity.NewEmitter(cfg.activityHooks, activity.Config{Enabled: len(cfg.activityHooks) > 0})

	if cfg.builtinRules {
		registerBuiltinRules(m.rules)
	}
	return m
}

// Get resolves path to a clone of the stored value, or to the memoized value
// when path names a registered computed property. An unset path yields
// (nil, false); absence is never an error.
func (m *Manager) Get(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	if m.computed.has(path) {
		return m.computedValue(path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.get(path)
}

// Tree returns a full structural clone of the state tree.
func (m *Manager) Tree() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.snapshot()
}

// Set validates and commits value at path. A value deep-equal to the current
// one is a no-op: no notification, no history entry. On rejection the
// returned error is a *ValidationError and state is left unchanged.
func (m *Manager) Set(path string, value any, opts ...SetOption) error {
	if path == "" {
		return fmt.Errorf("store: path must not be empty")
	}
	cfg := applySetOptions(opts)
	if cfg.validate {
		if err := m.rules.check(path, value); err != nil {
			return err
		}
	}

	m.mu.Lock()
	old, changed := m.tree.set(path, value)
	if !changed {
		m.mu.Unlock()
		return nil
	}
	m.hist.record(m.tree.snapshot())
	m.mu.Unlock()

	m.subs.dispatch(Change{Path: path, Value: cloneValue(value), OldValue: old})
	m.emit(activity.VerbSet, path, nil)
	return nil
}

// Batch validates every update, commits them together and coalesces the
// whole batch into at most one history entry. Notifications fire only after
// all commits and reflect the final per-path values. A failing validation
// aborts the batch before any commit.
func (m *Manager) Batch(updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	paths := make([]string, 0, len(updates))
	for path := range updates {
		if path == "" {
			return fmt.Errorf("store: path must not be empty")
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := m.rules.check(path, updates[path]); err != nil {
			return err
		}
	}

	m.mu.Lock()
	var changes []Change
	for _, path := range paths {
		old, changed := m.tree.set(path, updates[path])
		if !changed {
			continue
		}
		changes = append(changes, Change{Path: path, Value: cloneValue(updates[path]), OldValue: old})
	}
	if len(changes) > 0 {
		m.hist.record(m.tree.snapshot())
	}
	m.mu.Unlock()

	if len(changes) == 0 {
		return nil
	}
	changedPaths := make([]string, len(changes))
	for i, change := range changes {
		changedPaths[i] = change.Path
		m.subs.dispatch(change)
	}
	m.emit(activity.VerbBatch, "", changedPaths)
	return nil
}

// Subscribe registers callback for pattern: an exact path, an ancestor path
// matching any write at or below it, or the wildcard "*" matching every
// write. The returned func unregisters the subscription.
func (m *Manager) Subscribe(pattern string, callback Callback, opts ...SubscribeOption) func() {
	if pattern == "" || callback == nil {
		return func() {}
	}
	cfg := applySubscribeOptions(opts)

	sub := m.subs.add(pattern, callback, cfg.once)
	if cfg.immediate {
		current := m.currentFor(pattern)
		m.subs.invoke(sub, Change{Path: pattern, Value: current, OldValue: current})
		if cfg.once {
			m.subs.remove(sub)
			return func() {}
		}
	}
	return func() { m.subs.remove(sub) }
}

func (m *Manager) currentFor(pattern string) any {
	if pattern == Wildcard {
		return m.Tree()
	}
	value, _ := m.Get(pattern)
	return value
}

// Undo moves the history cursor one step back and restores that snapshot.
// Returns false at the oldest entry.
func (m *Manager) Undo() bool {
	m.mu.Lock()
	target, ok := m.hist.stepBack()
	if !ok {
		m.mu.Unlock()
		return false
	}
	before := m.tree.snapshot()
	m.tree.restore(target)
	after := m.tree.snapshot()
	m.mu.Unlock()

	m.notifyDiff(before, after)
	m.emit(activity.VerbUndo, "", nil)
	return true
}

// Redo is the symmetric forward motion. Returns false at the newest entry.
func (m *Manager) Redo() bool {
	m.mu.Lock()
	target, ok := m.hist.stepForward()
	if !ok {
		m.mu.Unlock()
		return false
	}
	before := m.tree.snapshot()
	m.tree.restore(target)
	after := m.tree.snapshot()
	m.mu.Unlock()

	m.notifyDiff(before, after)
	m.emit(activity.VerbRedo, "", nil)
	return true
}

// CanUndo reports whether the cursor can move back.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hist.canStepBack()
}

// CanRedo reports whether the cursor can move forward.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hist.canStepForward()
}

// History returns ordered metadata for the recorded snapshots; exactly one
// entry reports Current true.
func (m *Manager) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hist.metadata()
}

// Save serialises the designated persisted sections into a versioned
// envelope under the configured storage key. Failures degrade to false and
// are observable through the persist logger.
func (m *Manager) Save() bool {
	if m.cfg.backend == nil {
		m.persistLogger().LogPersist(PersistEvent{Op: "save", Key: m.cfg.storageKey, Err: errors.New("store: no backend configured")})
		return false
	}
	payload, err := m.codec.Encode(persist.Envelope{
		State:      m.persistedSubset(),
		SnapshotID: uuid.NewString(),
	})
	if err != nil {
		m.persistLogger().LogPersist(PersistEvent{Op: "save", Key: m.cfg.storageKey, Err: err})
		return false
	}
	if err := m.cfg.backend.Save(context.Background(), m.cfg.storageKey, payload); err != nil {
		m.persistLogger().LogPersist(PersistEvent{Op: "save", Key: m.cfg.storageKey, Err: err})
		return false
	}
	m.emit(activity.VerbSave, "", nil)
	return true
}

// Load reads the envelope, migrates it by version and merges the result into
// the live tree. Missing or corrupted data returns false and leaves the
// in-memory state untouched; Load never partially applies.
func (m *Manager) Load() bool {
	if m.cfg.backend == nil {
		m.persistLogger().LogPersist(PersistEvent{Op: "load", Key: m.cfg.storageKey, Err: errors.New("store: no backend configured")})
		return false
	}
	payload, ok, err := m.cfg.backend.Load(context.Background(), m.cfg.storageKey)
	if err != nil {
		m.persistLogger().LogPersist(PersistEvent{Op: "load", Key: m.cfg.storageKey, Err: err})
		return false
	}
	if !ok {
		return false
	}
	env, err := m.codec.Decode(payload)
	if err != nil {
		m.persistLogger().LogPersist(PersistEvent{Op: "load", Key: m.cfg.storageKey, Err: err})
		return false
	}

	m.mu.Lock()
	before := m.tree.snapshot()
	m.tree.merge(env.State)
	after := m.tree.snapshot()
	changed := len(diffTrees("", before, after)) > 0
	if changed {
		m.hist.record(m.tree.snapshot())
	}
	m.mu.Unlock()

	if changed {
		m.notifyDiff(before, after)
	}
	m.emit(activity.VerbLoad, "", nil)
	return true
}

// Reset restores default values for the named sections, or for the whole
// tree when called without arguments. The tree identity is preserved.
func (m *Manager) Reset(sections ...string) {
	m.mu.Lock()
	before := m.tree.snapshot()
	if len(sections) == 0 {
		m.tree.restore(m.cfg.defaults)
	} else {
		for _, section := range sections {
			if defaults, ok := m.cfg.defaults[section]; ok {
				m.tree.setSection(section, defaults)
			}
		}
	}
	after := m.tree.snapshot()
	changed := len(diffTrees("", before, after)) > 0
	if changed {
		m.hist.record(m.tree.snapshot())
	}
	m.mu.Unlock()

	if changed {
		m.notifyDiff(before, after)
	}
	m.emit(activity.VerbReset, "", sections)
}

// Export captures the whole tree in an envelope-shaped snapshot without
// touching storage.
func (m *Manager) Export() Snapshot {
	return Snapshot{
		State:      m.Tree(),
		Version:    persist.Version,
		Timestamp:  time.Now(),
		SnapshotID: uuid.NewString(),
	}
}

func (m *Manager) persistedSubset() map[string]any {
	full := m.Tree()
	if len(m.cfg.persistSections) == 0 {
		return full
	}
	subset := make(map[string]any, len(m.cfg.persistSections))
	for _, section := range m.cfg.persistSections {
		if value, ok := full[section]; ok {
			subset[section] = value
		}
	}
	return subset
}

func (m *Manager) notifyDiff(before, after map[string]any) {
	for _, change := range diffTrees("", before, after) {
		m.subs.dispatch(change)
	}
}

// emit forwards an audit event to the configured hooks. Hook failures never
// affect the operation that raised them.
func (m *Manager) emit(verb, path string, paths []string) {
	if !m.emitter.Enabled() {
		return
	}
	_ = m.emitter.Emit(context.Background(), activity.Event{
		Verb:  verb,
		Path:  path,
		Paths: paths,
	})
}

func (m *Manager) evalLogger() EvalLogger {
	if m.cfg.evalLogger != nil {
		return m.cfg.evalLogger
	}
	return noopEvalLogger{}
}

func (m *Manager) persistLogger() PersistLogger {
	if m.cfg.persistLogger != nil {
		return m.cfg.persistLogger
	}
	return noopPersistLogger{}
}
