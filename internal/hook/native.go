// Package hook installs low-level keyboard and mouse hooks and fans the
// events they deliver out to subscribers.
//
// The operating system calls the hook procedure for every input event in the
// session, so everything on the callback path is bounded: events are decoded,
// modifiers sampled, characters translated on demand, subscribers invoked, and
// the event is always forwarded to the next hook in the chain.
package hook

import (
	"errors"
	"strings"
)

var (
	// ErrNotAvailable is returned when low-level hooks are not supported on
	// this platform.
	ErrNotAvailable = errors.New("hook: low-level hooks not available on this platform")

	// ErrInstallFailed is returned when the operating system refused a hook.
	ErrInstallFailed = errors.New("hook: install failed")

	// ErrHookBusy is returned when another owner already holds the hook slot
	// for a kind.
	ErrHookBusy = errors.New("hook: hook kind already owned")

	// ErrInvalidKind is returned for an empty or unknown kind set.
	ErrInvalidKind = errors.New("hook: invalid hook kind")

	// ErrClosed is returned by Install after Close.
	ErrClosed = errors.New("hook: dispatcher closed")

	// ErrSubscriberPanic wraps a value recovered from a subscriber.
	ErrSubscriberPanic = errors.New("hook: subscriber panicked")

	// ErrCallbackPanic wraps a value recovered while assembling an event.
	ErrCallbackPanic = errors.New("hook: callback panicked")
)

// Kind is a set of hook kinds.
type Kind uint8

const (
	KindKeyboard Kind = 1 << iota
	KindMouse

	KindAll = KindKeyboard | KindMouse
)

// String returns "keyboard", "mouse", "keyboard+mouse" or "none".
func (k Kind) String() string {
	var parts []string
	if k&KindKeyboard != 0 {
		parts = append(parts, "keyboard")
	}
	if k&KindMouse != 0 {
		parts = append(parts, "mouse")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Handle is an opaque native hook handle. Zero means no hook.
type Handle uintptr

// Raw is one hook invocation as received from the operating system.
type Raw struct {
	Code   int32
	WParam uintptr
	LParam uintptr
}

// Proc is a hook procedure. It must return the value of CallNext for raw.
type Proc func(raw Raw) uintptr

// Native is the operating system hook registration API.
type Native interface {
	// Install registers proc for every event of a single kind.
	Install(kind Kind, proc Proc) (Handle, error)

	// Uninstall releases a hook. It reports whether the system accepted the
	// release.
	Uninstall(h Handle) bool

	// CallNext forwards raw to the next hook in the chain.
	CallNext(h Handle, raw Raw) uintptr

	DecodeKeyboard(raw Raw) KeyboardInput
	DecodeMouse(raw Raw) MouseInput
}

// Registration records the native hook held for one kind.
type Registration struct {
	Kind      Kind
	Handle    Handle
	Installed bool
}
