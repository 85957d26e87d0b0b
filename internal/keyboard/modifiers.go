package keyboard

import "strings"

// Modifiers is the set of modifier keys held at the instant of an event.
type Modifiers uint8

const (
	ModControl Modifiers = 1 << iota
	ModShift
	ModAlt
)

// Control reports whether either Control key was held.
func (m Modifiers) Control() bool { return m&ModControl != 0 }

// Shift reports whether either Shift key was held.
func (m Modifiers) Shift() bool { return m&ModShift != 0 }

// Alt reports whether either Alt key was held.
func (m Modifiers) Alt() bool { return m&ModAlt != 0 }

// String renders the set as "ctrl+shift+alt", or "none".
func (m Modifiers) String() string {
	if m == 0 {
		return "none"
	}
	parts := make([]string, 0, 3)
	if m.Control() {
		parts = append(parts, "ctrl")
	}
	if m.Shift() {
		parts = append(parts, "shift")
	}
	if m.Alt() {
		parts = append(parts, "alt")
	}
	return strings.Join(parts, "+")
}

// KeyProber reports the live, asynchronous down state of a key.
type KeyProber interface {
	AsyncKeyDown(vk VirtualKey) bool
}

// ResolveModifiers samples Control, Shift and Alt from the operating system
// at call time. Each flag is the OR of the generic key and both sides.
func ResolveModifiers(p KeyProber) Modifiers {
	var m Modifiers
	if anyDown(p, VK_CONTROL, VK_LCONTROL, VK_RCONTROL) {
		m |= ModControl
	}
	if anyDown(p, VK_SHIFT, VK_LSHIFT, VK_RSHIFT) {
		m |= ModShift
	}
	if anyDown(p, VK_MENU, VK_LMENU, VK_RMENU) {
		m |= ModAlt
	}
	return m
}

func anyDown(p KeyProber, keys ...VirtualKey) bool {
	for _, vk := range keys {
		if p.AsyncKeyDown(vk) {
			return true
		}
	}
	return false
}
