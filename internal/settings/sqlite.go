//go:build sqlite
// +build sqlite

package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"duebell/pkg/logx"
)

// settingsKey is the single row the store reads and upserts.
const settingsKey = "notification_settings"

type sqliteStore struct {
	log logx.Logger
	db  *sql.DB

	mu sync.Mutex
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("settings.path is required for sqlite driver")
	}
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

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{log: log, db: db}, nil
}

func (s *sqliteStore) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, settingsKey).Scan(&raw)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("settings read failed; using defaults", logx.Err(err))
		}
		return Default()
	}

	var st Settings
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		s.log.Warn("settings corrupt; using defaults", logx.Err(err))
		return Default()
	}
	return normalize(st)
}

func (s *sqliteStore) Save(st Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(normalize(st))
	if err != nil {
		s.log.Warn("settings encode failed", logx.Err(err))
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO kv(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingsKey, string(b),
	)
	if err != nil {
		s.log.Warn("settings save failed", logx.Err(err))
	}
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
