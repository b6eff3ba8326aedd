package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type desktopRequest struct {
	AppName   string
	ReplaceID uint32
	Summary   string
	Body      string
	Urgency   byte
	TimeoutMS int
}

// desktopNotify calls org.freedesktop.Notifications.Notify over the user bus
// and returns the id the daemon assigned.
func desktopNotify(ctx context.Context, req desktopRequest) (uint32, error) {
	args := []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"Notify",
		"susssasa{sv}i",
		req.AppName,
		strconv.FormatUint(uint64(req.ReplaceID), 10),
		"",
		req.Summary,
		req.Body,
		"0",
		"1", "urgency", "y", strconv.Itoa(int(req.Urgency)),
		strconv.Itoa(req.TimeoutMS),
	}

	out, err := busctl(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("desktop notify failed: %w", err)
	}

	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", out)
	}
	value, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(value), nil
}

// desktopDismiss closes a notification by id.
func desktopDismiss(ctx context.Context, id uint32) error {
	_, err := busctl(ctx,
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"CloseNotification",
		"u",
		strconv.FormatUint(uint64(id), 10),
	)
	if err != nil {
		return fmt.Errorf("desktop dismiss failed: %w", err)
	}
	return nil
}

func busctl(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		if trimmed == "" {
			return "", err
		}
		return "", fmt.Errorf("%w (%s)", err, trimmed)
	}
	return trimmed, nil
}
