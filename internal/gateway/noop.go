package gateway

import (
	"context"
	"errors"
)

// noopDriver is the "alerts disabled" backend: unsupported, denied, inert.
type noopDriver struct{}

// NewNoop returns a driver that never presents anything.
func NewNoop() Driver { return noopDriver{} }

func (noopDriver) Name() string                { return "noop" }
func (noopDriver) Supported() bool             { return false }
func (noopDriver) Permission() PermissionState { return PermissionDenied }
func (noopDriver) RequestPermission(ctx context.Context) PermissionState {
	_ = ctx
	return PermissionDenied
}
func (noopDriver) Send(ctx context.Context, m Message) (string, error) {
	_ = ctx
	_ = m
	return "", errors.New("noop driver cannot deliver")
}
