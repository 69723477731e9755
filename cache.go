package store

import "sync"

// ProgramCache stores compiled expression programs keyed by expression
// strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MemoryProgramCache is a mutex-guarded in-process ProgramCache.
type MemoryProgramCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewMemoryProgramCache constructs an empty in-memory program cache.
func NewMemoryProgramCache() *MemoryProgramCache {
	return &MemoryProgramCache{programs: map[string]any{}}
}

// Get returns the cached program for key.
func (c *MemoryProgramCache) Get(key string) (any, bool) {
	c.mu.RLock()
	program, ok := c.programs[key]
	c.mu.RUnlock()
	return program, ok
}

// Set stores program under key, replacing any previous entry.
func (c *MemoryProgramCache) Set(key string, value any) {
	c.mu.Lock()
	if c.programs == nil {
		c.programs = map[string]any{}
	}
	c.programs[key] = value
	c.mu.Unlock()
}
