package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"duebell/internal/gateway"
	"duebell/internal/registry"
	"duebell/internal/settings"
	"duebell/internal/task"
	"duebell/pkg/logx"
)

// blockingDriver holds the consent prompt open until released, so tests can
// pile concurrent RequestPermission calls onto one in-flight prompt.
type blockingDriver struct {
	mu      sync.Mutex
	perm    gateway.PermissionState
	prompts int
	release chan struct{}
}

func (d *blockingDriver) Name() string    { return "blocking" }
func (d *blockingDriver) Supported() bool { return true }

func (d *blockingDriver) Permission() gateway.PermissionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perm
}

func (d *blockingDriver) RequestPermission(ctx context.Context) gateway.PermissionState {
	d.mu.Lock()
	d.prompts++
	d.mu.Unlock()
	select {
	case <-d.release:
	case <-ctx.Done():
	}
	d.mu.Lock()
	d.perm = gateway.PermissionGranted
	d.mu.Unlock()
	return gateway.PermissionGranted
}

func (d *blockingDriver) Send(ctx context.Context, m gateway.Message) (string, error) {
	_ = ctx
	_ = m
	return "1", nil
}

func (d *blockingDriver) promptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prompts
}

func newService(t *testing.T, driver gateway.Driver, store settings.Store) *Service {
	t.Helper()
	gw := gateway.New(gateway.Config{RatePerSec: 100}, driver, logx.Nop())
	s := New(gw, store, logx.Nop(), nil, registry.Options{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func grantedDriver() *blockingDriver {
	return &blockingDriver{perm: gateway.PermissionGranted, release: make(chan struct{})}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestNewLoadsSettingsFromStore(t *testing.T) {
	t.Parallel()
	store := settings.NewMemory()
	store.Save(settings.Settings{Enabled: false, LeadMinutes: 45})

	s := newService(t, grantedDriver(), store)
	if got := s.Settings(); got.Enabled || got.LeadMinutes != 45 {
		t.Fatalf("Settings = %+v, want {false 45}", got)
	}
}

func TestNilStoreDefaults(t *testing.T) {
	t.Parallel()
	s := newService(t, grantedDriver(), nil)
	if got := s.Settings(); got != settings.Default() {
		t.Fatalf("Settings = %+v, want defaults", got)
	}
}

func TestUpdateSettings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		patch Patch
		want  settings.Settings
	}{
		{
			name:  "enabled only",
			patch: Patch{Enabled: boolPtr(false)},
			want:  settings.Settings{Enabled: false, LeadMinutes: 15},
		},
		{
			name:  "lead only",
			patch: Patch{LeadMinutes: intPtr(30)},
			want:  settings.Settings{Enabled: true, LeadMinutes: 30},
		},
		{
			name:  "negative lead clamps to zero",
			patch: Patch{LeadMinutes: intPtr(-10)},
			want:  settings.Settings{Enabled: true, LeadMinutes: 0},
		},
		{
			name:  "empty patch changes nothing",
			patch: Patch{},
			want:  settings.Default(),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := settings.NewMemory()
			s := newService(t, grantedDriver(), store)
			if got := s.UpdateSettings(tc.patch); got != tc.want {
				t.Fatalf("UpdateSettings = %+v, want %+v", got, tc.want)
			}
			// Persisted, not just held in memory.
			if got := store.Load(); got != tc.want {
				t.Fatalf("store.Load = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRequestPermissionSingleInFlightPrompt(t *testing.T) {
	t.Parallel()
	d := &blockingDriver{perm: gateway.PermissionDefault, release: make(chan struct{})}
	s := newService(t, d, nil)

	const n = 8
	results := make(chan gateway.PermissionState, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- s.RequestPermission(context.Background())
		}()
	}

	// Let the goroutines queue up behind the single prompt, then answer it.
	deadline := time.After(2 * time.Second)
	for d.promptCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("prompt never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(d.release)

	for i := 0; i < n; i++ {
		if got := <-results; got != gateway.PermissionGranted {
			t.Fatalf("result %d = %q, want granted", i, got)
		}
	}
	if got := d.promptCount(); got != 1 {
		t.Fatalf("driver prompted %d times, want 1", got)
	}
}

func TestReconcilePassesThrough(t *testing.T) {
	t.Parallel()
	s := newService(t, grantedDriver(), nil)

	due := time.Now().Add(time.Hour)
	s.Reconcile([]task.Snapshot{{ID: "t1", Title: "a", DueAt: &due}})
	if got := s.Count(); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}

	s.Cancel("t1")
	if got := s.Count(); got != 0 {
		t.Fatalf("Count after Cancel = %d, want 0", got)
	}

	s.Reconcile([]task.Snapshot{{ID: "t1", Title: "a", DueAt: &due}})
	s.CancelAll()
	if got := s.Count(); got != 0 {
		t.Fatalf("Count after CancelAll = %d, want 0", got)
	}
}

func TestShowTestAlert(t *testing.T) {
	t.Parallel()

	t.Run("granted delivers", func(t *testing.T) {
		t.Parallel()
		s := newService(t, grantedDriver(), nil)
		if !s.ShowTestAlert(context.Background()) {
			t.Fatal("ShowTestAlert = false, want true")
		}
	})

	t.Run("denied is a no-op", func(t *testing.T) {
		t.Parallel()
		s := newService(t, gateway.NewNoop(), nil)
		if s.ShowTestAlert(context.Background()) {
			t.Fatal("ShowTestAlert = true, want false")
		}
	})
}
