package config

import (
	"strings"

	logx "schedsync/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging the reload.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage
	oldSt := derefStorage(oldCfg.Storage)
	newSt := derefStorage(newCfg.Storage)
	if oldSt != newSt {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newSt.Driver),
			logx.String("storage.flush_debounce", strings.TrimSpace(newSt.FlushDebounce)),
		)
	}

	// Sync
	if oldCfg.Sync != newCfg.Sync {
		changed = append(changed, "sync")
		attrs = append(attrs,
			logx.Int("sync.queue_size", newCfg.Sync.QueueSize),
			logx.String("sync.conflict_window", strings.TrimSpace(newCfg.Sync.ConflictWindow)),
			logx.String("sync.idempotency_ttl", strings.TrimSpace(newCfg.Sync.IdempotencyTTL)),
			logx.Int("sync.idempotency_max", newCfg.Sync.IdempotencyMax),
		)
	}

	// Reminders
	oldRm := derefReminders(oldCfg.Reminders)
	newRm := derefReminders(newCfg.Reminders)
	if oldRm != newRm {
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.Bool("reminders.enabled", newRm.Enabled),
			logx.String("reminders.spec", strings.TrimSpace(newRm.Spec)),
			logx.String("reminders.lead", strings.TrimSpace(newRm.Lead)),
		)
	}

	// Diag (server changes need a restart; still worth surfacing)
	oldDg := derefDiag(oldCfg.Diag)
	newDg := derefDiag(newCfg.Diag)
	if oldDg != newDg {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", newDg.Enabled),
			logx.String("diag.addr", strings.TrimSpace(newDg.Addr)),
		)
	}

	return changed, attrs
}

func derefDiag(d *DiagConfig) DiagConfig {
	if d == nil {
		return DiagConfig{}
	}
	return *d
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefReminders(r *RemindersConfig) RemindersConfig {
	if r == nil {
		return RemindersConfig{}
	}
	return *r
}
