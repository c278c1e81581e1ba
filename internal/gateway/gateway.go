package gateway

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"duebell/pkg/logx"
)

// Config controls delivery behavior common to all drivers.
type Config struct {
	// RatePerSec caps deliveries; over-budget alerts are dropped, not
	// queued. A late reminder is a wrong reminder.
	RatePerSec int
	// SendTimeout bounds one driver Send call.
	SendTimeout time.Duration
}

// Gateway is the permission and delivery front of one Driver.
//
// It adds what drivers don't carry themselves: rate limiting, the per-tag
// replace map, and the never-error contract.
type Gateway struct {
	log    logx.Logger
	driver Driver

	mu      sync.Mutex
	limiter *rate.Limiter
	timeout time.Duration
	// tags maps a logical alert tag to the platform id of its last
	// delivery, so redelivery replaces instead of stacking.
	tags map[string]string
}

func New(cfg Config, driver Driver, log logx.Logger) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	g := &Gateway{
		log:    log,
		driver: driver,
		tags:   map[string]string{},
	}
	g.Apply(cfg)
	return g
}

// Apply updates the delivery knobs. Safe to call concurrently (config hot
// reload path).
func (g *Gateway) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g.mu.Lock()
	g.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	g.timeout = timeout
	g.mu.Unlock()
}

// Supported reports whether the underlying capability exists.
func (g *Gateway) Supported() bool { return g.driver.Supported() }

// Permission reads the current consent state without prompting.
// Unsupported platforms report denied.
func (g *Gateway) Permission() PermissionState {
	if !g.driver.Supported() {
		return PermissionDenied
	}
	return g.driver.Permission()
}

// RequestPermission runs the driver's consent flow.
//
// Callers are expected to serialize concurrent requests through the facade;
// a redundant concurrent call here is harmless, merely wasteful.
func (g *Gateway) RequestPermission(ctx context.Context) PermissionState {
	if !g.driver.Supported() {
		return PermissionDenied
	}
	if g.driver.Permission() == PermissionGranted {
		return PermissionGranted
	}
	state := g.driver.RequestPermission(ctx)
	g.log.Info("permission requested", logx.String("driver", g.driver.Name()), logx.String("state", string(state)))
	return state
}

// Deliver presents an alert now.
//
// Returns nil with no side effect when permission is not granted, when the
// rate budget is exhausted, or when the driver fails. Delivering twice with
// the same non-empty tag replaces the earlier notification.
func (g *Gateway) Deliver(ctx context.Context, title, body, tag string) *Delivery {
	if g.Permission() != PermissionGranted {
		g.log.Debug("delivery skipped: permission not granted", logx.String("tag", tag))
		return nil
	}

	g.mu.Lock()
	lim := g.limiter
	timeout := g.timeout
	replaceID := ""
	if tag != "" {
		replaceID = g.tags[tag]
	}
	g.mu.Unlock()

	if !lim.Allow() {
		g.log.Warn("delivery dropped: rate limit", logx.String("tag", tag), logx.String("title", title))
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id, err := g.driver.Send(sctx, Message{Title: title, Body: body, Tag: tag, ReplaceID: replaceID})
	if err != nil {
		g.log.Warn("delivery failed",
			logx.String("driver", g.driver.Name()),
			logx.String("tag", tag),
			logx.Err(err))
		return nil
	}

	if tag != "" {
		g.mu.Lock()
		if id != "" {
			g.tags[tag] = id
		} else {
			delete(g.tags, tag)
		}
		g.mu.Unlock()
	}

	g.log.Debug("alert delivered",
		logx.String("driver", g.driver.Name()),
		logx.String("tag", tag),
		logx.String("platform_id", id))
	return &Delivery{Tag: tag, PlatformID: id, At: time.Now()}
}
