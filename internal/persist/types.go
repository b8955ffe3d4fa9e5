package persist

import (
	"context"
	"errors"
	"time"

	"schedsync/internal/schedule"
)

var ErrDisabled = errors.New("persistence disabled")

// ErrLoad reports an unreadable or version-mismatched snapshot at startup.
// Fatal to this subsystem only: the engine starts empty and warns once.
var ErrLoad = errors.New("snapshot load failed")

// SnapshotVersion is the persisted layout version. An unknown or future
// version is a hard load failure, never a silent truncation.
const SnapshotVersion = 1

// Snapshot is the single persisted record: the whole store plus link index.
// Writes are last-write-wins; there is no incremental format.
type Snapshot struct {
	Version      int                             `json:"version"`
	Events       []schedule.Schedule             `json:"events"`
	ProjectLinks map[string]schedule.ProjectLink `json:"projectLinks"`
	LastSync     time.Time                       `json:"lastSync"`
}

// Config configures the snapshot driver.
//
// Driver values:
//   - "file": dependency-free JSON snapshot (atomic replace)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", persistence is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the snapshot persistence API.
type Store interface {
	// Save replaces the durable snapshot.
	Save(ctx context.Context, snap Snapshot) error
	// Load reads the snapshot. ok is false when none exists yet.
	Load(ctx context.Context) (snap Snapshot, ok bool, err error)
	Close() error
}
