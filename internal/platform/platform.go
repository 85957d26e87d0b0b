// Package platform provides the operating system side of input hooking: hook
// registration, key-state queries and layout-aware key translation.
//
// On Windows the real user32 API is used. Other systems get a stub that
// reports hook.ErrNotAvailable. Simulated implements the same surface in
// memory for tests and demos.
package platform

import (
	"keysense/internal/hook"
	"keysense/internal/keyboard"
)

// Platform is everything the hook dispatcher and the translator need.
type Platform interface {
	hook.Native
	keyboard.Native

	// Name identifies the implementation in logs.
	Name() string

	// Close stops any background machinery and releases remaining hooks.
	Close() error
}

var (
	_ Platform = (*Simulated)(nil)
)
