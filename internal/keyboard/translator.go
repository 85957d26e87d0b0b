package keyboard

import (
	"unicode"
	"unicode/utf16"
)

// Layout is an opaque keyboard layout handle (HKL).
type Layout uintptr

// Native is the part of the platform keyboard API the translator relies on.
type Native interface {
	KeyProber

	// KeyboardState fills state with the current key-state table.
	KeyboardState(state *KeyState) error

	// KeyToggled reports the toggle bit of a lock key.
	KeyToggled(vk VirtualKey) bool

	// ToUnicodeEx translates vk under state and layout into buf. It returns
	// the number of UTF-16 code units written, or a negative value when vk is
	// a dead key.
	ToUnicodeEx(vk VirtualKey, scanCode uint32, state *KeyState, buf []uint16, flags uint32, layout Layout) int

	// ForegroundThreadID returns the thread owning the focused window.
	ForegroundThreadID() uint32

	// KeyboardLayout returns the active layout of a thread.
	KeyboardLayout(threadID uint32) Layout
}

const (
	translateBufferSize = 64

	// maxCommitted is the number of characters kept from a single keystroke.
	// Anything the layout produces beyond it is dropped.
	maxCommitted = 2

	// drainLimit bounds the loop that empties the native dead-key buffer.
	drainLimit = 8
)

// Carry holds the outcome of the previous translation. Dead-key composition
// needs the previous keystroke and the key state it was pressed under.
//
// A Carry must only be used by one hook source at a time. The zero value is
// ready to use.
type Carry struct {
	lastKey   VirtualKey
	lastScan  uint32
	lastState KeyState
	lastDead  bool
}

// PendingDeadKey reports whether the previous keystroke was a dead key
// waiting for its base character.
func (c *Carry) PendingDeadKey() bool {
	return c.lastDead
}

// LastKey returns the previous translated key.
func (c *Carry) LastKey() VirtualKey {
	return c.lastKey
}

// Reset forgets the previous keystroke.
func (c *Carry) Reset() {
	*c = Carry{}
}

// Translator converts virtual keys into committed characters.
type Translator struct {
	native Native
}

// NewTranslator creates a Translator on top of a native keyboard API.
func NewTranslator(native Native) *Translator {
	return &Translator{native: native}
}

// ActiveLayout returns the layout of the thread that owns the foreground
// window.
func (t *Translator) ActiveLayout() Layout {
	return t.native.KeyboardLayout(t.native.ForegroundThreadID())
}

// TranslateActive translates vk using the foreground window's layout.
func (t *Translator) TranslateActive(c *Carry, vk VirtualKey, scanCode, flags uint32) []rune {
	return t.Translate(c, vk, scanCode, flags, t.ActiveLayout())
}

// Translate converts vk into zero, one or two characters and updates c.
//
// A dead key yields nothing and is remembered in c. The next keystroke that
// consumes the native composition buffer is composed with it; keys that leave
// the buffer alone (arrows, function keys) keep the dead key pending. Unmapped
// and non-printable keys yield nothing; no error is ever reported.
//
// The native buffer is left exactly as the focused window expects it, so the
// window's own translation of the same keystroke sees the same composition.
func (t *Translator) Translate(c *Carry, vk VirtualKey, scanCode, flags uint32, layout Layout) []rune {
	var state KeyState
	if err := t.native.KeyboardState(&state); err != nil {
		state = KeyState{}
	}

	// Low-level hooks run before the key-state table sees modifier changes.
	if ResolveModifiers(t.native).Shift() {
		state[VK_SHIFT] = KeyDownBit
	}
	if state.IsToggled(VK_CAPITAL) || t.native.KeyToggled(VK_CAPITAL) {
		state[VK_CAPITAL] = KeyToggledBit
	}

	pending := c.lastDead
	if pending {
		// Whatever the focused window left pending is replaced by the dead key
		// replayed under the state it was originally pressed with.
		t.drain(c.lastKey, c.lastScan, layout)
		t.replay(c, layout)
	}

	var buf [translateBufferSize]uint16
	n := t.native.ToUnicodeEx(vk, scanCode, &state, buf[:], flags, layout)

	dead := n < 0
	var chars []rune
	switch {
	case dead:
		t.drain(vk, scanCode, layout)
	case n <= translateBufferSize:
		chars = firstChars(buf[:n])
	}

	if pending && !dead {
		if len(chars) == maxCommitted && !t.isDead(vk, scanCode, &state, layout) {
			// The layout could not compose and echoed the accent in front of
			// the base character.
			chars = chars[1:]
		}
		if !t.rearm(c, layout) {
			// The keystroke left the composition buffer alone, so the dead
			// key stays pending for the next one.
			return chars
		}
	}

	c.lastKey = vk
	c.lastScan = scanCode
	c.lastState = state
	c.lastDead = dead

	return chars
}

// firstChars decodes at most maxCommitted characters. A surrogate pair is one
// character and is never split.
func firstChars(units []uint16) []rune {
	var chars []rune
	for i := 0; i < len(units) && len(chars) < maxCommitted; i++ {
		r := rune(units[i])
		if utf16.IsSurrogate(r) {
			r = unicode.ReplacementChar
			if i+1 < len(units) {
				if pair := utf16.DecodeRune(rune(units[i]), rune(units[i+1])); pair != unicode.ReplacementChar {
					r = pair
					i++
				}
			}
		}
		chars = append(chars, r)
	}
	return chars
}

// isDead reports whether vk is a dead key under state. It is only called with
// an empty composition buffer, which it leaves empty.
func (t *Translator) isDead(vk VirtualKey, scanCode uint32, state *KeyState, layout Layout) bool {
	var buf [translateBufferSize]uint16
	if t.native.ToUnicodeEx(vk, scanCode, state, buf[:], 0, layout) >= 0 {
		return false
	}
	t.drain(vk, scanCode, layout)
	return true
}

// rearm hands the carried dead key back to the focused window after the
// current keystroke was translated. It reports whether that keystroke had
// consumed the composition buffer.
func (t *Translator) rearm(c *Carry, layout Layout) bool {
	if t.replay(c, layout) < 0 {
		return true
	}
	// The buffer was still armed and the replay just composed it away.
	t.replay(c, layout)
	return false
}

// replay presents the carried dead key to the native primitive again, arming
// its composition buffer. Its output is intentionally discarded.
func (t *Translator) replay(c *Carry, layout Layout) int {
	var buf [translateBufferSize]uint16
	return t.native.ToUnicodeEx(c.lastKey, c.lastScan, &c.lastState, buf[:], 0, layout)
}

// drain empties the native dead-key buffer by translating vk under an
// all-zero key state until it stops reporting a dead key.
func (t *Translator) drain(vk VirtualKey, scanCode uint32, layout Layout) {
	var buf [translateBufferSize]uint16
	for i := 0; i < drainLimit; i++ {
		var neutral KeyState
		if t.native.ToUnicodeEx(vk, scanCode, &neutral, buf[:], 0, layout) >= 0 {
			return
		}
	}
}
