package store

import (
	"fmt"
	"sync"
	"time"
)

// computedProperty is a memoized derived value. Dependencies are static and
// declared once at registration; there is no implicit discovery of what the
// compute function reads.
type computedProperty struct {
	name  string
	deps  []string
	fn    ComputeFunc
	rule  CompiledRule
	expr  string
	cache any
	dirty bool
	ready bool
}

type computedRegistry struct {
	mu    sync.Mutex
	props map[string]*computedProperty
}

func newComputedRegistry() *computedRegistry {
	return &computedRegistry{props: map[string]*computedProperty{}}
}

func (r *computedRegistry) register(prop *computedProperty) error {
	if prop.name == "" {
		return fmt.Errorf("store: computed name must not be empty")
	}
	if len(prop.deps) == 0 {
		return fmt.Errorf("store: computed %q needs at least one dependency path", prop.name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.props[prop.name]; exists {
		return fmt.Errorf("store: computed %q already registered", prop.name)
	}
	prop.dirty = true
	r.props[prop.name] = prop
	return nil
}

func (r *computedRegistry) has(name string) bool {
	r.mu.Lock()
	_, ok := r.props[name]
	r.mu.Unlock()
	return ok
}

func (r *computedRegistry) invalidate(name string) {
	r.mu.Lock()
	if prop, ok := r.props[name]; ok {
		prop.dirty = true
	}
	r.mu.Unlock()
}

// value returns the memoized value for name, recomputing only when a
// dependency changed since the last read. readDep resolves the current value
// of a dependency path; evaluate runs expression-backed properties.
func (r *computedRegistry) value(name string, readDep func(string) any, evaluate func(*computedProperty, []any) (any, error)) (any, bool) {
	r.mu.Lock()
	prop, ok := r.props[name]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	if prop.ready && !prop.dirty {
		cached := cloneValue(prop.cache)
		r.mu.Unlock()
		return cached, true
	}
	r.mu.Unlock()

	values := make([]any, len(prop.deps))
	for i, dep := range prop.deps {
		values[i] = readDep(dep)
	}
	result, err := evaluate(prop, values)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		// Keep the stale cache and the dirty flag; the next read retries.
		return cloneValue(prop.cache), prop.ready
	}
	prop.cache = cloneValue(result)
	prop.ready = true
	prop.dirty = false
	return cloneValue(result), true
}

func (r *computedRegistry) info() []ComputedInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var infos []ComputedInfo
	for _, prop := range r.props {
		infos = append(infos, ComputedInfo{
			Name:       prop.name,
			Deps:       append([]string(nil), prop.deps...),
			Expr:       prop.expr,
			Dirty:      prop.dirty || !prop.ready,
			Expression: prop.rule != nil,
		})
	}
	return infos
}

// Compute registers a derived property computed from the declared dependency
// paths. The store subscribes to each dependency internally; a write landing
// on one marks the property dirty without recomputing it eagerly.
func (m *Manager) Compute(name string, deps []string, fn ComputeFunc) error {
	if fn == nil {
		return fmt.Errorf("store: compute function for %q is nil", name)
	}
	prop := &computedProperty{
		name: name,
		deps: append([]string(nil), deps...),
		fn:   fn,
	}
	if err := m.computed.register(prop); err != nil {
		return err
	}
	m.watchDependencies(prop)
	return nil
}

// ComputeExpr registers an expression-backed derived property. The
// expression is compiled once with the configured evaluator and sees the
// whole state tree plus the dependency values bound as deps[0..n].
func (m *Manager) ComputeExpr(name string, deps []string, expr string) error {
	if m.cfg.evaluator == nil {
		return ErrNoEvaluator
	}
	if expr == "" {
		return fmt.Errorf("store: computed expression for %q must not be empty", name)
	}
	rule, err := m.cfg.evaluator.Compile(expr)
	if err != nil {
		return wrapEvaluationError(evaluatorEngineName(m.cfg.evaluator), expr, name, err)
	}
	prop := &computedProperty{
		name: name,
		deps: append([]string(nil), deps...),
		rule: rule,
		expr: expr,
	}
	if err := m.computed.register(prop); err != nil {
		return err
	}
	m.watchDependencies(prop)
	return nil
}

func (m *Manager) watchDependencies(prop *computedProperty) {
	for _, dep := range prop.deps {
		name := prop.name
		m.subs.add(dep, func(Change) {
			m.computed.invalidate(name)
		}, false)
	}
}

func (m *Manager) computedValue(name string) (any, bool) {
	return m.computed.value(name, m.readDependency, m.evaluateComputed)
}

func (m *Manager) readDependency(path string) any {
	value, _ := m.Get(path)
	return value
}

func (m *Manager) evaluateComputed(prop *computedProperty, values []any) (any, error) {
	if prop.fn != nil {
		return prop.fn(values...), nil
	}
	ctx := RuleContext{
		Path:  prop.name,
		State: m.Tree(),
		Args:  map[string]any{"deps": values},
	}
	start := time.Now()
	result, err := prop.rule.Evaluate(ctx)
	err = wrapEvaluationError("", prop.expr, prop.name, err)
	m.evalLogger().LogEvaluation(EvalEvent{
		Engine:   evaluatorEngineName(m.cfg.evaluator),
		Expr:     prop.expr,
		Path:     prop.name,
		Duration: time.Since(start),
		Err:      err,
	})
	return result, err
}
