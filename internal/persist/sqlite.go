//go:build sqlite
// +build sqlite

package persist

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"schedsync/internal/schedule"
	logx "schedsync/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the whole snapshot in one transaction (last-write-wins).
func (s *sqliteStore) Save(ctx context.Context, snap Snapshot) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_links`); err != nil {
		return err
	}

	for _, sc := range snap.Events {
		b, err := json.Marshal(sc)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO schedules(id, project_id, type, start_at, data) VALUES(?,?,?,?,?)`,
			sc.ID, nullStr(sc.ProjectID), string(sc.Type), sc.Start.Format(time.RFC3339Nano), string(b))
		if err != nil {
			return err
		}
	}
	for projectID, link := range snap.ProjectLinks {
		b, err := json.Marshal(link)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO project_links(project_id, data) VALUES(?,?)`, projectID, string(b)); err != nil {
			return err
		}
	}

	lastSync := snap.LastSync
	if lastSync.IsZero() {
		lastSync = time.Now()
	}
	for k, v := range map[string]string{
		"version":   strconv.Itoa(SnapshotVersion),
		"last_sync": lastSync.Format(time.RFC3339Nano),
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta(key, value) VALUES(?,?)
			 ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Load(ctx context.Context) (Snapshot, bool, error) {
	if s == nil || s.db == nil {
		return Snapshot{}, false, ErrDisabled
	}

	var verStr string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&verStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	ver, err := strconv.Atoi(verStr)
	if err != nil || ver != SnapshotVersion {
		return Snapshot{}, false, fmt.Errorf("%w: unsupported snapshot version %q (want %d)",
			ErrLoad, verStr, SnapshotVersion)
	}

	snap := Snapshot{Version: ver, ProjectLinks: map[string]schedule.ProjectLink{}}

	var lastSync string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_sync'`).Scan(&lastSync); err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, lastSync); perr == nil {
			snap.LastSync = t
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM schedules ORDER BY start_at, id`)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return Snapshot{}, false, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		var sc schedule.Schedule
		if err := json.Unmarshal([]byte(raw), &sc); err != nil {
			return Snapshot{}, false, fmt.Errorf("%w: decode schedule: %v", ErrLoad, err)
		}
		snap.Events = append(snap.Events, sc)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	lrows, err := s.db.QueryContext(ctx, `SELECT project_id, data FROM project_links`)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	defer lrows.Close()
	for lrows.Next() {
		var projectID, raw string
		if err := lrows.Scan(&projectID, &raw); err != nil {
			return Snapshot{}, false, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		var link schedule.ProjectLink
		if err := json.Unmarshal([]byte(raw), &link); err != nil {
			return Snapshot{}, false, fmt.Errorf("%w: decode link: %v", ErrLoad, err)
		}
		snap.ProjectLinks[projectID] = link
	}
	if err := lrows.Err(); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	return snap, true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
