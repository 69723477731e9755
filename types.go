package store

import (
	"time"

	"github.com/goliatone/go-store/pkg/activity"
	"github.com/goliatone/go-store/pkg/persist"
)

// Wildcard is the subscription pattern that matches every committed write.
const Wildcard = "*"

// Change describes one committed write. Value and OldValue are clones;
// mutating them never affects stored state.
type Change struct {
	Path     string `json:"path"`
	Value    any    `json:"value"`
	OldValue any    `json:"oldValue"`
}

// Callback receives committed changes for a subscription. Exact and ancestor
// subscriptions receive the change for the written path; wildcard
// subscriptions receive the same structure for every write.
type Callback func(Change)

// Predicate validates a candidate value for a path. A nil return accepts the
// write; a non-nil error rejects it.
type Predicate func(value any) error

// ComputeFunc derives a value from the current values of the declared
// dependency paths, in declaration order.
type ComputeFunc func(values ...any) any

// RuleContext carries inputs needed when evaluating an expression rule or an
// expression-backed computed property.
type RuleContext struct {
	Path     string
	Value    any
	OldValue any
	State    map[string]any
	Now      *time.Time
	Args     map[string]any
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.State == nil {
		ctx.State = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Option configures a Manager at construction time.
type Option func(*config)

type config struct {
	defaults        map[string]any
	initial         map[string]any
	evaluator       Evaluator
	programCache    ProgramCache
	functions       *FunctionRegistry
	evalLogger      EvalLogger
	dispatchLogger  DispatchLogger
	persistLogger   PersistLogger
	historyLimit    int
	backend         persist.Backend
	storageKey      string
	persistSections []string
	migrations      map[int]persist.Migration
	activityHooks   activity.Hooks
	builtinRules    bool
}

func applyOptions(opts []Option) config {
	cfg := config{
		defaults:        DefaultState(),
		historyLimit:    DefaultHistoryLimit,
		storageKey:      persist.DefaultKey,
		persistSections: []string{"settings", "ui"},
		builtinRules:    true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithDefaults replaces the built-in default tree.
func WithDefaults(defaults map[string]any) Option {
	return func(cfg *config) {
		cfg.defaults = cloneTree(defaults)
	}
}

// WithInitial overlays values on top of the defaults at construction.
func WithInitial(initial map[string]any) Option {
	return func(cfg *config) {
		cfg.initial = cloneTree(initial)
	}
}

// WithEvaluator configures the evaluator used by expression rules and
// expression-backed computed properties.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = e
	}
}

// WithProgramCache registers a cache for compiled expression programs.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.programCache = cache
	}
}

// WithFunctionRegistry exposes custom functions to expression rules and
// computed expressions.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *config) {
		cfg.functions = registry
	}
}

// WithEvalLogger attaches an evaluation logger.
func WithEvalLogger(logger EvalLogger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.evalLogger = noopEvalLogger{}
			return
		}
		cfg.evalLogger = logger
	}
}

// WithDispatchLogger attaches a listener failure logger.
func WithDispatchLogger(logger DispatchLogger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.dispatchLogger = noopDispatchLogger{}
			return
		}
		cfg.dispatchLogger = logger
	}
}

// WithPersistLogger attaches a persistence failure logger.
func WithPersistLogger(logger PersistLogger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.persistLogger = noopPersistLogger{}
			return
		}
		cfg.persistLogger = logger
	}
}

// WithHistoryLimit caps the undo history. Oldest entries are dropped once the
// limit is reached. Values below 2 are ignored.
func WithHistoryLimit(limit int) Option {
	return func(cfg *config) {
		if limit >= 2 {
			cfg.historyLimit = limit
		}
	}
}

// WithBackend wires a persistence backend. Without one Save and Load report
// false.
func WithBackend(backend persist.Backend) Option {
	return func(cfg *config) {
		cfg.backend = backend
	}
}

// WithStorageKey overrides the storage key used by Save and Load.
func WithStorageKey(key string) Option {
	return func(cfg *config) {
		if key != "" {
			cfg.storageKey = key
		}
	}
}

// WithPersistSections designates the top-level sections included in a saved
// envelope. An empty call persists the whole tree.
func WithPersistSections(sections ...string) Option {
	return func(cfg *config) {
		cfg.persistSections = append([]string(nil), sections...)
	}
}

// WithMigration registers a migration applied when Load encounters an
// envelope written at version from.
func WithMigration(from int, fn persist.Migration) Option {
	return func(cfg *config) {
		if fn == nil {
			return
		}
		if cfg.migrations == nil {
			cfg.migrations = map[int]persist.Migration{}
		}
		cfg.migrations[from] = fn
	}
}

// WithActivityHooks attaches audit hooks notified after every store
// operation. Hooks are cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *config) {
		cfg.activityHooks = normalized
	}
}

// WithoutBuiltinRules disables the built-in range checks registered for the
// default player fields.
func WithoutBuiltinRules() Option {
	return func(cfg *config) {
		cfg.builtinRules = false
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.Hook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}

// SetOption configures a single write.
type SetOption func(*setConfig)

type setConfig struct {
	validate bool
}

func applySetOptions(opts []SetOption) setConfig {
	cfg := setConfig{validate: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// SkipValidation bypasses built-in and custom rules for one write.
func SkipValidation() SetOption {
	return func(cfg *setConfig) {
		cfg.validate = false
	}
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	immediate bool
	once      bool
}

func applySubscribeOptions(opts []SubscribeOption) subscribeConfig {
	cfg := subscribeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Immediate invokes the callback synchronously at subscribe time with the
// pattern's current value as both value and old value.
func Immediate() SubscribeOption {
	return func(cfg *subscribeConfig) {
		cfg.immediate = true
	}
}

// Once removes the subscription after its first invocation.
func Once() SubscribeOption {
	return func(cfg *subscribeConfig) {
		cfg.once = true
	}
}
