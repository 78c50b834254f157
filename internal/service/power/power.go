// Package power shuts the host down after a power-off alarm went unanswered.
package power

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/oshokin/alarm-klaxon/internal/logger"
)

// windowsShutdownTimeout is the delay in seconds for Windows shutdown command.
const windowsShutdownTimeout = "0"

// ErrUnsupportedOS indicates the current OS is not supported for shutdown.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// Shutdown triggers an OS shutdown command using common, built-in tools:
// - Linux/macOS: `shutdown -h now`
// - Windows:     `shutdown.exe -s -f -t 0` (force, no delay)
// The commands are started asynchronously; the OS takes over the rest.
func Shutdown(ctx context.Context) error {
	osName := strings.ToLower(runtime.GOOS)

	switch {
	case strings.Contains(osName, "linux") || strings.Contains(osName, "darwin"):
		return exec.CommandContext(ctx, "shutdown", "-h", "now").Start()
	case strings.Contains(osName, "windows"):
		return exec.CommandContext(ctx, "shutdown.exe", "-s", "-f", "-t", windowsShutdownTimeout).Start()
	default:
		return fmt.Errorf("unsupported operating system: %s: %w", runtime.GOOS, ErrUnsupportedOS)
	}
}

// Hook powers the host off for power-off alarms. A disabled hook only logs.
type Hook struct {
	// Enabled allows the hook to run the shutdown command.
	Enabled bool
	// shutdown runs the OS command; replaced in tests.
	shutdown func(ctx context.Context) error
}

// NewHook creates a hook running Shutdown when enabled.
func NewHook(enabled bool) *Hook {
	return &Hook{
		Enabled:  enabled,
		shutdown: Shutdown,
	}
}

// PowerOff shuts the host down if the hook is enabled.
func (h *Hook) PowerOff(ctx context.Context) error {
	if !h.Enabled {
		logger.Info(ctx, "Power off requested but disabled by configuration")

		return nil
	}

	logger.Info(ctx, "Triggering local shutdown...")

	if err := h.shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
