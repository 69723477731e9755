package store

import (
	"fmt"
	"sync"
	"time"
)

// rule is one predicate guarding a path. Built-in range checks run before
// custom registrations; the first failure aborts the write.
type rule struct {
	predicate  Predicate
	constraint string
	builtin    bool
}

type ruleSet struct {
	mu    sync.Mutex
	rules map[string][]rule
}

func newRuleSet() *ruleSet {
	return &ruleSet{rules: map[string][]rule{}}
}

func (rs *ruleSet) add(path string, r rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if r.builtin {
		// Built-ins stay ahead of custom predicates regardless of
		// registration order.
		existing := rs.rules[path]
		insert := 0
		for insert < len(existing) && existing[insert].builtin {
			insert++
		}
		existing = append(existing, rule{})
		copy(existing[insert+1:], existing[insert:])
		existing[insert] = r
		rs.rules[path] = existing
		return
	}
	rs.rules[path] = append(rs.rules[path], r)
}

func (rs *ruleSet) forPath(path string) []rule {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]rule(nil), rs.rules[path]...)
}

// check runs every predicate registered for path against value. The first
// failure is returned as a *ValidationError; state is never touched here.
func (rs *ruleSet) check(path string, value any) error {
	for _, r := range rs.forPath(path) {
		if err := r.predicate(value); err != nil {
			return &ValidationError{
				Path:       path,
				Value:      value,
				Constraint: r.constraint,
				Err:        err,
			}
		}
	}
	return nil
}

func (rs *ruleSet) info() []RuleInfo {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var infos []RuleInfo
	for path, rules := range rs.rules {
		for _, r := range rules {
			infos = append(infos, RuleInfo{Path: path, Constraint: r.constraint, Builtin: r.builtin})
		}
	}
	return infos
}

// Rule registers a custom predicate for path. Multiple predicates per path
// coexist; all must pass for a write to commit.
func (m *Manager) Rule(path string, predicate Predicate) {
	m.RuleNamed(path, "", predicate)
}

// RuleNamed registers a custom predicate with a constraint description that
// is surfaced on rejection.
func (m *Manager) RuleNamed(path, constraint string, predicate Predicate) {
	if path == "" || predicate == nil {
		return
	}
	m.rules.add(path, rule{predicate: predicate, constraint: constraint})
}

// RuleExpr registers an expression predicate for path. The expression sees
// value, old, path and the whole state tree; any result other than true
// rejects the write.
func (m *Manager) RuleExpr(path, expr string) error {
	if m.cfg.evaluator == nil {
		return ErrNoEvaluator
	}
	if path == "" {
		return fmt.Errorf("store: rule path must not be empty")
	}
	if expr == "" {
		return fmt.Errorf("store: rule expression for %q must not be empty", path)
	}
	compiled, err := m.cfg.evaluator.Compile(expr)
	if err != nil {
		return wrapEvaluationError(evaluatorEngineName(m.cfg.evaluator), expr, path, err)
	}
	engine := evaluatorEngineName(m.cfg.evaluator)
	m.rules.add(path, rule{
		constraint: expr,
		predicate: func(value any) error {
			ctx := RuleContext{
				Path:  path,
				Value: value,
				State: m.Tree(),
			}
			start := time.Now()
			result, evalErr := compiled.Evaluate(ctx)
			evalErr = wrapEvaluationError(engine, expr, path, evalErr)
			m.evalLogger().LogEvaluation(EvalEvent{
				Engine:   engine,
				Expr:     expr,
				Path:     path,
				Duration: time.Since(start),
				Err:      evalErr,
			})
			if evalErr != nil {
				return evalErr
			}
			if accepted, ok := result.(bool); ok && accepted {
				return nil
			}
			return fmt.Errorf("store: expression rejected value")
		},
	})
	return nil
}

// rangeRule builds a numeric bounds predicate used by the built-in checks.
func rangeRule(min, max float64) rule {
	return rule{
		builtin:    true,
		constraint: fmt.Sprintf("%g <= value <= %g", min, max),
		predicate: func(value any) error {
			n, ok := numericValue(value)
			if !ok {
				return fmt.Errorf("store: expected a number, got %T", value)
			}
			if n < min || n > max {
				return fmt.Errorf("store: %g outside [%g, %g]", n, min, max)
			}
			return nil
		},
	}
}

// minRule builds a lower-bound-only predicate.
func minRule(min float64) rule {
	return rule{
		builtin:    true,
		constraint: fmt.Sprintf("value >= %g", min),
		predicate: func(value any) error {
			n, ok := numericValue(value)
			if !ok {
				return fmt.Errorf("store: expected a number, got %T", value)
			}
			if n < min {
				return fmt.Errorf("store: %g below minimum %g", n, min)
			}
			return nil
		},
	}
}

// oneOfRule builds a membership predicate for enumerated string fields.
func oneOfRule(allowed ...string) rule {
	return rule{
		builtin:    true,
		constraint: fmt.Sprintf("one of %v", allowed),
		predicate: func(value any) error {
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("store: expected a string, got %T", value)
			}
			for _, candidate := range allowed {
				if s == candidate {
					return nil
				}
			}
			return fmt.Errorf("store: %q not in %v", s, allowed)
		},
	}
}
