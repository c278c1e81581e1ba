//go:build linux

package gateway

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// desktopSupported reports whether notify-send is on PATH.
func desktopSupported() bool {
	_, err := exec.LookPath("notify-send")
	return err == nil
}

// desktopSend delivers via notify-send. "-p" prints the server-assigned
// notification id; passing it back with "-r" replaces the earlier popup, so
// same-tag redelivery doesn't stack.
func desktopSend(ctx context.Context, m Message) (string, error) {
	args := []string{"--app-name=duebell", "-p"}
	if m.ReplaceID != "" {
		// notify-send ids are numeric; ignore anything else.
		if _, err := strconv.Atoi(m.ReplaceID); err == nil {
			args = append(args, "-r", m.ReplaceID)
		}
	}
	args = append(args, m.Title, m.Body)

	out, err := exec.CommandContext(ctx, "notify-send", args...).Output()
	if err != nil {
		return "", fmt.Errorf("notify-send: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
