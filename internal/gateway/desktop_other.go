//go:build !linux && !darwin

package gateway

import (
	"context"
	"errors"
)

func desktopSupported() bool { return false }

func desktopSend(ctx context.Context, m Message) (string, error) {
	_ = ctx
	_ = m
	return "", errors.New("desktop notifications unsupported on this platform")
}
