// Package registry owns the map of pending due-date alert timers.
//
// All scheduling state here is deliberately ephemeral: a fresh process
// re-derives the armed set from task snapshots via Reconcile instead of
// trusting timers from a previous run. Only one timer may be pending per
// task at any time; re-arming disarms the old timer first, under the same
// lock, so no interleaving can observe both.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"duebell/internal/eventbus"
	"duebell/internal/gateway"
	"duebell/internal/settings"
	"duebell/internal/task"
	"duebell/pkg/logx"
)

// Bus event types published by the registry.
const (
	EventArmed     = "alert.armed"
	EventRearmed   = "alert.rearmed"
	EventCancelled = "alert.cancelled"
	EventFired     = "alert.fired"
)

// AlertEvent is the bus payload for all registry events.
type AlertEvent struct {
	TaskID string
	Title  string
	FireAt time.Time
}

// Deliverer is the slice of the gateway the registry uses.
type Deliverer interface {
	Permission() gateway.PermissionState
	Deliver(ctx context.Context, title, body, tag string) *gateway.Delivery
}

// DefaultLookahead caps how far out a timer may be armed. Long-lived
// in-process timers drift across suspend/resume, so anything further out
// waits for a later reconcile to pull it into the window.
const DefaultLookahead = 24 * time.Hour

// Options tune the registry; zero values take defaults.
type Options struct {
	Lookahead time.Duration
	Now       func() time.Time
	Timers    TimerFactory
}

type entry struct {
	taskID string
	title  string
	dueAt  time.Time
	fireAt time.Time
	ver    uint64
	timer  Timer
}

// Registry maps task ids to their pending alert timer.
type Registry struct {
	log      logx.Logger
	bus      eventbus.Bus
	gw       Deliverer
	settings func() settings.Settings

	lookahead time.Duration
	now       func() time.Time
	timers    TimerFactory

	mu      sync.Mutex
	seq     uint64
	entries map[string]*entry
	// fired records the consumed fire time per task, so a one-shot alert
	// is never re-armed for the same moment even if reconcile runs again
	// before the fire time scrolls out of the window.
	fired map[string]time.Time
}

func New(gw Deliverer, settingsFn func() settings.Settings, log logx.Logger, bus eventbus.Bus, opts Options) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timers == nil {
		opts.Timers = SystemTimers()
	}
	return &Registry{
		log:       log,
		bus:       bus,
		gw:        gw,
		settings:  settingsFn,
		lookahead: opts.Lookahead,
		now:       opts.Now,
		timers:    opts.Timers,
		entries:   map[string]*entry{},
		fired:     map[string]time.Time{},
	}
}

// Reconcile brings the armed-timer set in line with the latest snapshots.
//
// For every snapshot it computes the desired state (armed at due - lead, or
// not armed) and performs the minimal arm/re-arm/cancel diff. Tasks present
// in the registry but absent from snaps are cancelled (deletion). Calling
// it twice with unchanged input causes zero timer churn.
func (r *Registry) Reconcile(snaps []task.Snapshot) {
	st := r.settings()
	granted := r.gw.Permission() == gateway.PermissionGranted
	now := r.now()
	lead := st.Lead()

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(snaps))
	for _, s := range snaps {
		seen[s.ID] = struct{}{}

		want := false
		var fireAt time.Time
		if st.Enabled && granted && !s.Completed && s.DueAt != nil {
			f := s.DueAt.Add(-lead)
			// Past fire points are skipped, never delivered late: a
			// burst of stale alerts after reopening helps nobody.
			if f.After(now) && !f.After(now.Add(r.lookahead)) {
				if consumed, ok := r.fired[s.ID]; !ok || !consumed.Equal(f) {
					want = true
					fireAt = f
				}
			}
		}

		cur := r.entries[s.ID]
		switch {
		case want && cur == nil:
			r.armLocked(s, fireAt, now, EventArmed)
		case want && !cur.fireAt.Equal(fireAt):
			// Due date moved: disarm-then-arm without unlocking, so no
			// moment exists where both timers are pending.
			r.disarmLocked(cur)
			r.armLocked(s, fireAt, now, EventRearmed)
		case !want && cur != nil:
			r.disarmLocked(cur)
			r.publish(EventCancelled, cur)
			r.log.Debug("alert cancelled", logx.String("task", cur.taskID))
		}
	}

	// Tasks gone from the snapshot set: cancel their timers and forget
	// their consumed-fire markers.
	for id, e := range r.entries {
		if _, ok := seen[id]; !ok {
			r.disarmLocked(e)
			r.publish(EventCancelled, e)
			r.log.Debug("alert cancelled (task deleted)", logx.String("task", id))
		}
	}
	for id := range r.fired {
		if _, ok := seen[id]; !ok {
			delete(r.fired, id)
		}
	}
}

// Cancel disarms the pending alert for one task. No-op if none is armed.
func (r *Registry) Cancel(taskID string) {
	r.mu.Lock()
	e := r.entries[taskID]
	if e != nil {
		r.disarmLocked(e)
	}
	r.mu.Unlock()

	if e != nil {
		r.publish(EventCancelled, e)
		r.log.Debug("alert cancelled", logx.String("task", taskID))
	}
}

// CancelAll disarms every pending timer. Mandatory on teardown: an armed
// entry is a live runtime timer that must not outlive its owner.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	n := len(r.entries)
	for _, e := range r.entries {
		e.timer.Disarm()
	}
	r.entries = map[string]*entry{}
	r.mu.Unlock()

	if n > 0 {
		r.log.Debug("all alerts cancelled", logx.Int("count", n))
	}
}

// Count reports the number of currently armed entries.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// armLocked creates the entry and its timer. Call with r.mu held.
func (r *Registry) armLocked(s task.Snapshot, fireAt, now time.Time, event string) {
	r.seq++
	e := &entry{
		taskID: s.ID,
		title:  s.Title,
		dueAt:  *s.DueAt,
		fireAt: fireAt,
		ver:    r.seq,
	}
	id, ver := s.ID, e.ver
	e.timer = r.timers.Arm(fireAt.Sub(now), func() { r.fire(id, ver) })
	r.entries[s.ID] = e

	r.publish(event, e)
	r.log.Debug("alert armed",
		logx.String("task", s.ID),
		logx.Time("fire_at", fireAt),
		logx.Bool("rearm", event == EventRearmed))
}

// disarmLocked stops the timer and removes the entry. Call with r.mu held.
//
// Disarm may report false when the callback is already queued; the
// version check in fire() is what actually suppresses its effect.
func (r *Registry) disarmLocked(e *entry) {
	e.timer.Disarm()
	delete(r.entries, e.taskID)
}

// fire is the timer callback. A callback whose entry was removed or
// superseded since arming is stale and does nothing; otherwise firing is
// authoritative and one-shot.
func (r *Registry) fire(taskID string, ver uint64) {
	r.mu.Lock()
	e := r.entries[taskID]
	if e == nil || e.ver != ver {
		r.mu.Unlock()
		return
	}
	delete(r.entries, taskID)
	r.fired[taskID] = e.fireAt
	r.mu.Unlock()

	r.publish(EventFired, e)
	r.log.Info("alert fired", logx.String("task", taskID), logx.Time("due_at", e.dueAt))

	// Delivery happens outside the lock; the gateway owns permission
	// gating, rate limiting, and error swallowing.
	body := fmt.Sprintf("%s is due at %s", e.title, e.dueAt.Local().Format("15:04"))
	r.gw.Deliver(context.Background(), "Task due soon", body, "task:"+taskID)
}

func (r *Registry) publish(typ string, e *entry) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{
		Type: typ,
		Data: AlertEvent{TaskID: e.taskID, Title: e.title, FireAt: e.fireAt},
	})
}
