// Package reminder is the facade of the due-date alert subsystem.
//
// One Service instance owns the delivery gateway, the timer registry, and
// the persisted settings; the embedding application constructs it once and
// passes it by reference (no package-level state). Nothing on this surface
// returns an error: unsupported platforms, denied permission, and broken
// persistence all degrade to observable no-ops, because a best-effort
// reminder feature must never crash its host.
package reminder

import (
	"context"
	"sync"

	"duebell/internal/eventbus"
	"duebell/internal/gateway"
	"duebell/internal/registry"
	"duebell/internal/settings"
	"duebell/internal/task"
	"duebell/pkg/logx"
)

// Patch is an explicit partial settings update. Nil fields stay unchanged.
type Patch struct {
	Enabled     *bool
	LeadMinutes *int
}

type Service struct {
	log   logx.Logger
	gw    *gateway.Gateway
	reg   *registry.Registry
	store settings.Store

	mu  sync.Mutex
	cur settings.Settings

	// promptDone is non-nil while a permission prompt is in flight;
	// concurrent requests wait on it instead of double-prompting.
	pmu        sync.Mutex
	promptDone chan struct{}
}

// New loads settings once from the store and wires the registry to read
// them live on every reconcile.
func New(gw *gateway.Gateway, store settings.Store, log logx.Logger, bus eventbus.Bus, opts registry.Options) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if store == nil {
		store = settings.NewMemory()
	}
	s := &Service{
		log:   log,
		gw:    gw,
		store: store,
		cur:   store.Load(),
	}
	s.reg = registry.New(gw, s.Settings, log.With(logx.String("comp", "registry")), bus, opts)
	return s
}

// Supported reports whether the platform can present alerts at all.
func (s *Service) Supported() bool { return s.gw.Supported() }

// Permission reads the current consent state without prompting.
func (s *Service) Permission() gateway.PermissionState { return s.gw.Permission() }

// RequestPermission runs the consent flow, serialized by a single in-flight
// guard: while one prompt is pending, further calls wait for its outcome
// rather than prompting again.
func (s *Service) RequestPermission(ctx context.Context) gateway.PermissionState {
	s.pmu.Lock()
	if done := s.promptDone; done != nil {
		s.pmu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return s.gw.Permission()
	}
	done := make(chan struct{})
	s.promptDone = done
	s.pmu.Unlock()

	state := s.gw.RequestPermission(ctx)

	s.pmu.Lock()
	s.promptDone = nil
	s.pmu.Unlock()
	close(done)
	return state
}

// Reconcile feeds the latest task snapshot list to the registry.
func (s *Service) Reconcile(snaps []task.Snapshot) { s.reg.Reconcile(snaps) }

// Cancel disarms the pending alert for one task, if any.
func (s *Service) Cancel(taskID string) { s.reg.Cancel(taskID) }

// CancelAll disarms every pending alert. Call on teardown.
func (s *Service) CancelAll() { s.reg.CancelAll() }

// Count reports the number of currently armed alerts.
func (s *Service) Count() int { return s.reg.Count() }

// Settings returns the current notification settings.
func (s *Service) Settings() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// UpdateSettings applies an explicit partial update and re-persists
// immediately (best-effort). The next reconcile picks the new values up.
func (s *Service) UpdateSettings(p Patch) settings.Settings {
	s.mu.Lock()
	cur := s.cur
	if p.Enabled != nil {
		cur.Enabled = *p.Enabled
	}
	if p.LeadMinutes != nil {
		lm := *p.LeadMinutes
		if lm < 0 {
			lm = 0
		}
		cur.LeadMinutes = lm
	}
	s.cur = cur
	s.mu.Unlock()

	s.store.Save(cur)
	s.log.Info("settings updated",
		logx.Bool("enabled", cur.Enabled),
		logx.Int("lead_minutes", cur.LeadMinutes))
	return cur
}

// ShowTestAlert delivers a sample alert immediately, bypassing the
// registry. Reports whether anything was actually presented.
func (s *Service) ShowTestAlert(ctx context.Context) bool {
	d := s.gw.Deliver(ctx, "Test alert", "Due-date alerts are working.", "test")
	return d != nil
}

// Close releases every live timer and the settings store.
func (s *Service) Close() error {
	s.reg.CancelAll()
	return s.store.Close()
}
