package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"duebell/pkg/logx"
)

// fileStore persists settings as a small JSON document.
//
// Writes go through a temp file + rename so a crash mid-write leaves the
// previous document intact instead of a truncated one.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("settings.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (f *fileStore) Load() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Warn("settings read failed; using defaults", logx.String("path", f.path), logx.Err(err))
		}
		return Default()
	}

	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		f.log.Warn("settings corrupt; using defaults", logx.String("path", f.path), logx.Err(err))
		return Default()
	}
	return normalize(s)
}

func (f *fileStore) Save(s Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := json.MarshalIndent(normalize(s), "", "  ")
	if err != nil {
		f.log.Warn("settings encode failed", logx.Err(err))
		return
	}
	if err := writeFileAtomic(f.path, append(b, '\n'), 0o600); err != nil {
		f.log.Warn("settings save failed", logx.String("path", f.path), logx.Err(err))
	}
}

func (f *fileStore) Close() error { return nil }

// writeFileAtomic writes data to path via a temp file in the same directory,
// fsyncs, and renames into place. On Unix the rename is atomic.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
