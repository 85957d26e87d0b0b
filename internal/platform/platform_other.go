//go:build !windows

package platform

import (
	"fmt"
	"log/slog"
	"runtime"

	"keysense/internal/hook"
)

// New returns the native platform. Low-level hooks only exist on Windows.
func New(logger *slog.Logger) (Platform, error) {
	return nil, fmt.Errorf("%w (%s)", hook.ErrNotAvailable, runtime.GOOS)
}
