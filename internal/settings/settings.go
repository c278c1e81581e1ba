// Package settings persists user notification preferences across runs.
//
// Persistence here is best-effort by design: a missing, corrupt, or
// unwritable store degrades to in-memory defaults and never fails the
// caller. The scheduler stays correct without it.
package settings

import (
	"errors"
	"strings"
	"sync"
	"time"

	"duebell/pkg/logx"
)

// Settings are the only durable state of the alert scheduler.
// Everything else (armed timers) is re-derived from task snapshots.
type Settings struct {
	// Enabled gates all arming; existing timers are cancelled on the
	// next reconcile after it flips to false.
	Enabled bool `json:"enabled"`
	// LeadMinutes is how many minutes before the due date an alert fires.
	LeadMinutes int `json:"lead_minutes"`
}

// Default returns the out-of-the-box settings.
func Default() Settings {
	return Settings{Enabled: true, LeadMinutes: 15}
}

// Lead returns the lead time as a duration.
func (s Settings) Lead() time.Duration {
	return time.Duration(s.LeadMinutes) * time.Minute
}

// normalize repairs values a corrupt or hand-edited store may contain.
func normalize(s Settings) Settings {
	if s.LeadMinutes < 0 {
		s.LeadMinutes = Default().LeadMinutes
	}
	return s
}

// Store loads and saves Settings.
//
// Load never fails: anything unreadable degrades to Default().
// Save is best-effort: failures are logged by the implementation
// and swallowed.
type Store interface {
	Load() Settings
	Save(s Settings)
	Close() error
}

// Config configures the settings store.
//
// Driver values:
//   - "file": JSON file, written atomically (temp + rename)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", settings live in memory only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store. An empty/none driver yields an
// in-memory store rather than nil so callers never branch.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown settings driver: " + cfg.Driver)
	}
}

// memStore keeps settings for the lifetime of the process.
type memStore struct {
	mu  sync.Mutex
	cur Settings
}

// NewMemory returns a volatile store seeded with defaults.
func NewMemory() Store {
	return &memStore{cur: Default()}
}

func (m *memStore) Load() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *memStore) Save(s Settings) {
	m.mu.Lock()
	m.cur = normalize(s)
	m.mu.Unlock()
}

func (m *memStore) Close() error { return nil }
