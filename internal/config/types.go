package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage selects the snapshot driver. If omitted, the engine runs
	// memory-only (snapshots disabled, LoadError semantics don't apply).
	Storage *StorageConfig `json:"storage,omitempty"`

	// Sync controls the coordinator: queue sizing, the conflict equivalence
	// window, and idempotency cache retention.
	Sync SyncConfig `json:"sync"`

	// Reminders controls the cron-driven reminder scanner.
	Reminders *RemindersConfig `json:"reminders,omitempty"`

	// Diag controls the localhost diagnostics HTTP server (pprof, statusz).
	Diag *DiagConfig `json:"diag,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the durable snapshot layer.
//
// Driver values:
//   - "file": dependency-free JSON snapshot (atomic replace)
//   - "sqlite": SQLite database file (optional build tag)
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Example:
//
//	"storage": { "driver": "file", "path": "./schedsync_store.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only

	// FlushDebounce coalesces snapshot writes. Default "500ms".
	// This is an operational knob, not a business requirement.
	FlushDebounce string `json:"flush_debounce,omitempty"`
}

// SyncConfig controls the sync coordinator.
//
// Defaults (when fields are omitted/zero):
//   - queue_size: 256
//   - conflict_window: "60s"
//   - idempotency_ttl: "10m"
//   - idempotency_max: 1000
type SyncConfig struct {
	QueueSize int `json:"queue_size,omitempty"`

	// ConflictWindow is the max start-time distance under which two create
	// requests for the same (project, meeting sequence) are merged.
	ConflictWindow string `json:"conflict_window,omitempty"`

	IdempotencyTTL string `json:"idempotency_ttl,omitempty"`
	IdempotencyMax int    `json:"idempotency_max,omitempty"`
}

// DiagConfig controls the diagnostics HTTP server.
//
// Binding a non-loopback address requires token or allow_insecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// RemindersConfig controls the reminder scanner.
//
// Spec accepts robfig/cron syntax including descriptors ("@every 1m").
type RemindersConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec,omitempty"` // default "@every 1m"
	Lead    string `json:"lead,omitempty"` // default "15m"
}
