// Package sqlite provides the SQLite-backed remote document store.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/vibe-dev/academy/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.RemoteStore.
type DB struct {
	db  *sql.DB
	hub *hub
	now func() time.Time
}

var _ domain.RemoteStore = (*DB)(nil)

// Open creates or opens the SQLite database at dir/gamification.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "gamification.db")
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db, hub: newHub(), now: time.Now}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database and ends all subscriptions.
func (d *DB) Close() error {
	d.hub.closeAll()
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Profile document, scalar fields
		`CREATE TABLE IF NOT EXISTS profiles (
			uid          TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			xp           INTEGER NOT NULL DEFAULT 0,
			level        INTEGER NOT NULL DEFAULT 1,
			streak_days  INTEGER NOT NULL DEFAULT 0,
			last_login   INTEGER,
			created_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL
		)`,

		// Profile set fields (union semantics via composite primary keys)
		`CREATE TABLE IF NOT EXISTS profile_achievements (
			uid            TEXT NOT NULL REFERENCES profiles(uid),
			achievement_id TEXT NOT NULL,
			added_at       INTEGER NOT NULL,
			PRIMARY KEY (uid, achievement_id)
		)`,
		`CREATE TABLE IF NOT EXISTS course_progress (
			uid              TEXT NOT NULL REFERENCES profiles(uid),
			course_id        TEXT NOT NULL,
			course_completed BOOLEAN NOT NULL DEFAULT 0,
			last_played      INTEGER NOT NULL,
			PRIMARY KEY (uid, course_id)
		)`,
		`CREATE TABLE IF NOT EXISTS completed_lessons (
			uid          TEXT NOT NULL,
			course_id    TEXT NOT NULL,
			lesson_id    TEXT NOT NULL,
			completed_at INTEGER NOT NULL,
			PRIMARY KEY (uid, course_id, lesson_id),
			FOREIGN KEY (uid, course_id) REFERENCES course_progress(uid, course_id)
		)`,
		// Legacy module-level progress; read only.
		`CREATE TABLE IF NOT EXISTS completed_modules (
			uid       TEXT NOT NULL,
			course_id TEXT NOT NULL,
			module_id TEXT NOT NULL,
			PRIMARY KEY (uid, course_id, module_id)
		)`,
		`CREATE TABLE IF NOT EXISTS saved_projects (
			uid        TEXT NOT NULL REFERENCES profiles(uid),
			project_id TEXT NOT NULL,
			added_at   INTEGER NOT NULL,
			PRIMARY KEY (uid, project_id)
		)`,
		`CREATE TABLE IF NOT EXISTS liked_projects (
			uid        TEXT NOT NULL REFERENCES profiles(uid),
			project_id TEXT NOT NULL,
			added_at   INTEGER NOT NULL,
			PRIMARY KEY (uid, project_id)
		)`,

		// Append-only audit collections
		`CREATE TABLE IF NOT EXISTS xp_transactions (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			amount         INTEGER NOT NULL,
			reason         TEXT NOT NULL,
			timestamp      INTEGER NOT NULL,
			course_id      TEXT NOT NULL DEFAULT '',
			lesson_id      TEXT NOT NULL DEFAULT '',
			achievement_id TEXT NOT NULL DEFAULT '',
			project_id     TEXT NOT NULL DEFAULT '',
			challenge_id   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_tx_user ON xp_transactions(user_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS achievement_unlocks (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			unlocked_at    INTEGER NOT NULL,
			xp_awarded     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_unlocks_user ON achievement_unlocks(user_id)`,

		`CREATE TABLE IF NOT EXISTS daily_challenge_progress (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			challenge_id TEXT NOT NULL,
			completed_at INTEGER NOT NULL,
			xp_awarded   INTEGER NOT NULL,
			date         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_challenge_key ON daily_challenge_progress(user_id, challenge_id, date)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
