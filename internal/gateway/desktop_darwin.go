//go:build darwin

package gateway

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// desktopSupported reports whether osascript is on PATH.
func desktopSupported() bool {
	_, err := exec.LookPath("osascript")
	return err == nil
}

// desktopSend delivers through Notification Center via osascript.
// macOS exposes no notification id, so replace-by-tag is not available
// here and the returned id is always empty.
func desktopSend(ctx context.Context, m Message) (string, error) {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`,
		escapeAppleScript(m.Body), escapeAppleScript(m.Title))

	if err := exec.CommandContext(ctx, "osascript", "-e", script).Run(); err != nil {
		return "", fmt.Errorf("osascript: %w", err)
	}
	return "", nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}
