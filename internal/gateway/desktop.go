package gateway

import (
	"context"
	"sync"
)

// desktopDriver presents alerts through the host's desktop notification
// tool (notify-send on Linux, osascript on macOS).
//
// Desktops have no OS-level consent prompt the way browsers do, so the
// permission flow is a recorded capability probe: default until the first
// RequestPermission, then granted (tool present) or denied (absent) for the
// rest of the session.
type desktopDriver struct {
	mu   sync.Mutex
	perm PermissionState
}

// NewDesktop returns the platform desktop driver.
func NewDesktop() Driver {
	return &desktopDriver{perm: PermissionDefault}
}

func (d *desktopDriver) Name() string { return "desktop" }

func (d *desktopDriver) Supported() bool { return desktopSupported() }

func (d *desktopDriver) Permission() PermissionState {
	if !desktopSupported() {
		return PermissionDenied
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perm
}

func (d *desktopDriver) RequestPermission(ctx context.Context) PermissionState {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	if desktopSupported() {
		d.perm = PermissionGranted
	} else {
		d.perm = PermissionDenied
	}
	return d.perm
}

func (d *desktopDriver) Send(ctx context.Context, m Message) (string, error) {
	return desktopSend(ctx, m)
}
