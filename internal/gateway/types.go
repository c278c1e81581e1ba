// Package gateway wraps a platform notification capability behind a small
// permission-gated surface: support probing, permission state, and delivery.
//
// Permission denial is a legitimate terminal state here, not an error.
// Every failure mode degrades to a nil delivery handle; nothing on the
// Gateway surface returns an error.
package gateway

import (
	"context"
	"time"
)

// PermissionState mirrors the platform's notification consent state.
type PermissionState string

const (
	// PermissionDefault means the user has not been asked yet.
	PermissionDefault PermissionState = "default"
	// PermissionGranted means alerts may be presented.
	PermissionGranted PermissionState = "granted"
	// PermissionDenied means alerts must be silently skipped.
	// Unsupported platforms report denied as well.
	PermissionDenied PermissionState = "denied"
)

// Message is one alert as handed to a Driver.
//
// ReplaceID, when non-empty, is the platform id of a previous delivery with
// the same Tag; the driver should replace that notification instead of
// stacking a new one.
type Message struct {
	Title     string
	Body      string
	Tag       string
	ReplaceID string
}

// Delivery is the handle for one presented alert.
type Delivery struct {
	Tag        string
	PlatformID string
	At         time.Time
}

// Driver is one concrete notification backend (desktop, telegram, noop).
//
// Drivers may return errors; the Gateway owns the policy of degrading them
// to skipped deliveries.
type Driver interface {
	// Name identifies the driver in logs.
	Name() string
	// Supported reports whether the capability exists at all.
	// Pure check, no side effects.
	Supported() bool
	// Permission reads the current consent state without prompting.
	Permission() PermissionState
	// RequestPermission triggers whatever consent flow the platform has.
	// Idempotent short-circuit: an already-granted driver returns
	// immediately without re-prompting.
	RequestPermission(ctx context.Context) PermissionState
	// Send presents the alert and returns the platform id of the
	// presented notification ("" when the platform has none).
	Send(ctx context.Context, m Message) (id string, err error)
}
