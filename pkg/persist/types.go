package persist

import (
	"context"
	"errors"
	"time"
)

// DefaultKey is the storage key used when the store is not configured with
// an explicit one.
const DefaultKey = "player.state"

// Version is the envelope version written by this codec.
const Version = 1

// ErrCorrupt indicates a payload that could not be decoded as an envelope.
var ErrCorrupt = errors.New("persist: corrupted payload")

// ErrVersion indicates an envelope version with no migration path to the
// current version.
var ErrVersion = errors.New("persist: unsupported envelope version")

// Backend loads and saves one opaque payload per storage key.
type Backend interface {
	Load(ctx context.Context, key string) (payload []byte, ok bool, err error)
	Save(ctx context.Context, key string, payload []byte) error
}

// Envelope is the versioned wrapper written to durable storage.
type Envelope struct {
	State      map[string]any
	Version    int
	Timestamp  time.Time
	SnapshotID string
}

// Migration upgrades a state tree written at one envelope version to the
// next. Migrations run stepwise until the current version is reached.
type Migration func(state map[string]any) (map[string]any, error)
