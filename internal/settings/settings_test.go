package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"duebell/pkg/logx"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	d := Default()
	if !d.Enabled {
		t.Fatal("default Enabled = false, want true")
	}
	if d.LeadMinutes != 15 {
		t.Fatalf("default LeadMinutes = %d, want 15", d.LeadMinutes)
	}
	if d.Lead() != 15*time.Minute {
		t.Fatalf("Lead() = %v, want 15m", d.Lead())
	}
}

func TestNormalizeRepairsNegativeLead(t *testing.T) {
	t.Parallel()
	s := normalize(Settings{Enabled: true, LeadMinutes: -3})
	if s.LeadMinutes != 15 {
		t.Fatalf("LeadMinutes = %d, want 15", s.LeadMinutes)
	}
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty is memory", cfg: Config{}},
		{name: "none is memory", cfg: Config{Driver: "none"}},
		{name: "file", cfg: Config{Driver: "file", Path: filepath.Join(t.TempDir(), "s.json")}},
		{name: "file without path", cfg: Config{Driver: "file"}, wantErr: true},
		{name: "unknown", cfg: Config{Driver: "etcd"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st, err := Open(tc.cfg, logx.Nop())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()
			if got := st.Load(); got != Default() {
				t.Fatalf("fresh store Load = %+v, want defaults", got)
			}
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	st.Save(Settings{Enabled: false, LeadMinutes: 30})
	if got := st.Load(); got.Enabled || got.LeadMinutes != 30 {
		t.Fatalf("Load = %+v, want {false 30}", got)
	}

	// A second store on the same path sees the saved document.
	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st2.Close()
	if got := st2.Load(); got.Enabled || got.LeadMinutes != 30 {
		t.Fatalf("reopened Load = %+v, want {false 30}", got)
	}
}

func TestFileStoreMissingAndCorrupt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string // "" means no file at all
	}{
		{name: "missing file"},
		{name: "garbage", content: "{not json"},
		{name: "wrong shape", content: `[1,2,3]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "settings.json")
			if tc.content != "" {
				if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()
			if got := st.Load(); got != Default() {
				t.Fatalf("Load = %+v, want defaults", got)
			}
		})
	}
}

func TestFileStoreNegativeLeadOnDisk(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"enabled":true,"lead_minutes":-5}`), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if got := st.Load(); got.LeadMinutes != 15 {
		t.Fatalf("LeadMinutes = %d, want repaired default 15", got.LeadMinutes)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	st.Save(Settings{Enabled: false, LeadMinutes: 5})
	if got := st.Load(); got.Enabled || got.LeadMinutes != 5 {
		t.Fatalf("Load = %+v, want {false 5}", got)
	}
}
