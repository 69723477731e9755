package store

import "time"

// EvalEvent describes one expression evaluation attempt for logging.
type EvalEvent struct {
	Engine   string
	Expr     string
	Path     string
	Duration time.Duration
	Err      error
}

// EvalLogger records expression evaluation events raised by rules and
// computed properties.
type EvalLogger interface {
	LogEvaluation(EvalEvent)
}

// EvalLoggerFunc adapts a function to EvalLogger.
type EvalLoggerFunc func(EvalEvent)

// LogEvaluation implements EvalLogger.
func (f EvalLoggerFunc) LogEvaluation(event EvalEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvalLogger struct{}

func (noopEvalLogger) LogEvaluation(EvalEvent) {}

// DispatchEvent describes a listener callback that panicked during
// notification dispatch. The panic is contained at the dispatch site; sibling
// listeners still run.
type DispatchEvent struct {
	Pattern   string
	Path      string
	Recovered any
}

// DispatchLogger records listener failures during notification dispatch.
type DispatchLogger interface {
	LogDispatch(DispatchEvent)
}

// DispatchLoggerFunc adapts a function to DispatchLogger.
type DispatchLoggerFunc func(DispatchEvent)

// LogDispatch implements DispatchLogger.
func (f DispatchLoggerFunc) LogDispatch(event DispatchEvent) {
	if f != nil {
		f(event)
	}
}

type noopDispatchLogger struct{}

func (noopDispatchLogger) LogDispatch(DispatchEvent) {}

// PersistEvent describes a failed save or load attempt. Persistence failures
// degrade to a false return from Save/Load; they are observable only here.
type PersistEvent struct {
	Op  string
	Key string
	Err error
}

// PersistLogger records persistence failures.
type PersistLogger interface {
	LogPersist(PersistEvent)
}

// PersistLoggerFunc adapts a function to PersistLogger.
type PersistLoggerFunc func(PersistEvent)

// LogPersist implements PersistLogger.
func (f PersistLoggerFunc) LogPersist(event PersistEvent) {
	if f != nil {
		f(event)
	}
}

type noopPersistLogger struct{}

func (noopPersistLogger) LogPersist(PersistEvent) {}
