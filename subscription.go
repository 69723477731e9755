package store

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// subscription is one registered listener. A pattern is an exact path, an
// ancestor path, or the wildcard; which tier it fires in depends on the
// written path, not on registration.
type subscription struct {
	id       uuid.UUID
	pattern  string
	callback Callback
	once     bool
}

// subscriptions maintains the listener indices and dispatches committed
// writes in exact, ancestor, wildcard order. Callbacks run outside the
// internal lock so they may re-enter the store.
type subscriptions struct {
	mu       sync.Mutex
	byPath   map[string][]*subscription
	wildcard []*subscription
	logger   DispatchLogger
}

func newSubscriptions(logger DispatchLogger) *subscriptions {
	if logger == nil {
		logger = noopDispatchLogger{}
	}
	return &subscriptions{
		byPath: map[string][]*subscription{},
		logger: logger,
	}
}

func (s *subscriptions) add(pattern string, callback Callback, once bool) *subscription {
	sub := &subscription{
		id:       uuid.New(),
		pattern:  pattern,
		callback: callback,
		once:     once,
	}
	s.mu.Lock()
	if pattern == Wildcard {
		s.wildcard = append(s.wildcard, sub)
	} else {
		s.byPath[pattern] = append(s.byPath[pattern], sub)
	}
	s.mu.Unlock()
	return sub
}

func (s *subscriptions) remove(sub *subscription) {
	s.mu.Lock()
	s.removeLocked(sub)
	s.mu.Unlock()
}

func (s *subscriptions) removeLocked(sub *subscription) {
	if sub.pattern == Wildcard {
		s.wildcard = removeSubscription(s.wildcard, sub.id)
		return
	}
	remaining := removeSubscription(s.byPath[sub.pattern], sub.id)
	if len(remaining) == 0 {
		delete(s.byPath, sub.pattern)
		return
	}
	s.byPath[sub.pattern] = remaining
}

func removeSubscription(subs []*subscription, id uuid.UUID) []*subscription {
	for i, sub := range subs {
		if sub.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// dispatch notifies every listener matching change.Path. Exact listeners run
// first, then ancestor listeners from the nearest prefix up to the root, then
// wildcard listeners. A panicking callback is contained and logged; siblings
// still run. Once-listeners are unregistered before their callback runs so a
// re-entrant write cannot fire them twice.
func (s *subscriptions) dispatch(change Change) {
	targets := s.collect(change.Path)
	for _, sub := range targets {
		s.invoke(sub, change)
	}
}

func (s *subscriptions) collect(path string) []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	var targets []*subscription
	appendTier := func(subs []*subscription) {
		for _, sub := range subs {
			targets = append(targets, sub)
		}
	}

	appendTier(s.byPath[path])
	for _, ancestor := range ancestorPaths(path) {
		appendTier(s.byPath[ancestor])
	}
	appendTier(s.wildcard)

	for _, sub := range targets {
		if sub.once {
			s.removeLocked(sub)
		}
	}
	return targets
}

func (s *subscriptions) invoke(sub *subscription, change Change) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.LogDispatch(DispatchEvent{
				Pattern:   sub.pattern,
				Path:      change.Path,
				Recovered: recovered,
			})
		}
	}()
	sub.callback(change)
}

// ancestorPaths returns the strict prefixes of path ordered nearest first,
// e.g. "a.b.c" yields "a.b" then "a".
func ancestorPaths(path string) []string {
	var ancestors []string
	for {
		idx := strings.LastIndex(path, ".")
		if idx < 0 {
			return ancestors
		}
		path = path[:idx]
		ancestors = append(ancestors, path)
	}
}

// info snapshots the registered listeners for Debug.
func (s *subscriptions) info() []ListenerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var infos []ListenerInfo
	for pattern, subs := range s.byPath {
		for _, sub := range subs {
			infos = append(infos, ListenerInfo{ID: sub.id.String(), Pattern: pattern, Once: sub.once})
		}
	}
	for _, sub := range s.wildcard {
		infos = append(infos, ListenerInfo{ID: sub.id.String(), Pattern: Wildcard, Once: sub.once})
	}
	return infos
}
