// Package keyboard turns Windows virtual keys into committed characters.
//
// The translator works on top of the layout-aware ToUnicodeEx primitive and
// compensates for the two things a low-level hook does not get for free:
//   - the global key-state table is not updated for modifier keys before the
//     hook runs, so Shift and CapsLock are patched into the snapshot
//   - dead keys are a two-keystroke protocol, so the previous keystroke is
//     carried between calls in an explicit Carry value
//
// Everything that touches the operating system goes through the Native
// interface, which is implemented for Windows and by a simulated platform in
// internal/platform.
package keyboard

import "fmt"

// VirtualKey is a Windows virtual-key code.
type VirtualKey uint16

// Virtual-key codes used by the translator and the hook dispatcher.
const (
	VK_BACK       VirtualKey = 0x08
	VK_TAB        VirtualKey = 0x09
	VK_RETURN     VirtualKey = 0x0D
	VK_SHIFT      VirtualKey = 0x10
	VK_CONTROL    VirtualKey = 0x11
	VK_MENU       VirtualKey = 0x12
	VK_PAUSE      VirtualKey = 0x13
	VK_CAPITAL    VirtualKey = 0x14
	VK_ESCAPE     VirtualKey = 0x1B
	VK_SPACE      VirtualKey = 0x20
	VK_PRIOR      VirtualKey = 0x21
	VK_NEXT       VirtualKey = 0x22
	VK_END        VirtualKey = 0x23
	VK_HOME       VirtualKey = 0x24
	VK_LEFT       VirtualKey = 0x25
	VK_UP         VirtualKey = 0x26
	VK_RIGHT      VirtualKey = 0x27
	VK_DOWN       VirtualKey = 0x28
	VK_INSERT     VirtualKey = 0x2D
	VK_DELETE     VirtualKey = 0x2E
	VK_0          VirtualKey = 0x30
	VK_9          VirtualKey = 0x39
	VK_A          VirtualKey = 0x41
	VK_Z          VirtualKey = 0x5A
	VK_LWIN       VirtualKey = 0x5B
	VK_RWIN       VirtualKey = 0x5C
	VK_NUMPAD0    VirtualKey = 0x60
	VK_F1         VirtualKey = 0x70
	VK_F12        VirtualKey = 0x7B
	VK_NUMLOCK    VirtualKey = 0x90
	VK_SCROLL     VirtualKey = 0x91
	VK_LSHIFT     VirtualKey = 0xA0
	VK_RSHIFT     VirtualKey = 0xA1
	VK_LCONTROL   VirtualKey = 0xA2
	VK_RCONTROL   VirtualKey = 0xA3
	VK_LMENU      VirtualKey = 0xA4
	VK_RMENU      VirtualKey = 0xA5
	VK_OEM_1      VirtualKey = 0xBA // ;:
	VK_OEM_PLUS   VirtualKey = 0xBB
	VK_OEM_COMMA  VirtualKey = 0xBC
	VK_OEM_MINUS  VirtualKey = 0xBD
	VK_OEM_PERIOD VirtualKey = 0xBE
	VK_OEM_2      VirtualKey = 0xBF // /?
	VK_OEM_3      VirtualKey = 0xC0 // `~
	VK_OEM_4      VirtualKey = 0xDB // [{
	VK_OEM_5      VirtualKey = 0xDC // \|
	VK_OEM_6      VirtualKey = 0xDD // ]}
	VK_OEM_7      VirtualKey = 0xDE // '"
	VK_PACKET     VirtualKey = 0xE7
)

// Digit and letter keys between the bounds above share their ASCII codes.
const (
	VK_1 VirtualKey = 0x31
	VK_2 VirtualKey = 0x32
	VK_3 VirtualKey = 0x33
	VK_4 VirtualKey = 0x34
	VK_5 VirtualKey = 0x35
	VK_6 VirtualKey = 0x36
	VK_7 VirtualKey = 0x37
	VK_8 VirtualKey = 0x38
	VK_B VirtualKey = 0x42
	VK_C VirtualKey = 0x43
	VK_D VirtualKey = 0x44
	VK_E VirtualKey = 0x45
	VK_F VirtualKey = 0x46
	VK_G VirtualKey = 0x47
	VK_H VirtualKey = 0x48
	VK_I VirtualKey = 0x49
	VK_J VirtualKey = 0x4A
	VK_K VirtualKey = 0x4B
	VK_L VirtualKey = 0x4C
	VK_M VirtualKey = 0x4D
	VK_N VirtualKey = 0x4E
	VK_O VirtualKey = 0x4F
	VK_P VirtualKey = 0x50
	VK_Q VirtualKey = 0x51
	VK_R VirtualKey = 0x52
	VK_S VirtualKey = 0x53
	VK_T VirtualKey = 0x54
	VK_U VirtualKey = 0x55
	VK_V VirtualKey = 0x56
	VK_W VirtualKey = 0x57
	VK_X VirtualKey = 0x58
	VK_Y VirtualKey = 0x59
)

// Letter returns the virtual key for an ASCII letter, either case.
func Letter(r rune) (VirtualKey, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return VK_A + VirtualKey(r-'a'), true
	case r >= 'A' && r <= 'Z':
		return VK_A + VirtualKey(r-'A'), true
	}
	return 0, false
}

// IsModifier reports whether vk is a pure modifier or lock key. Such keys
// never commit a character on their own.
func (vk VirtualKey) IsModifier() bool {
	switch vk {
	case VK_SHIFT, VK_LSHIFT, VK_RSHIFT,
		VK_CONTROL, VK_LCONTROL, VK_RCONTROL,
		VK_MENU, VK_LMENU, VK_RMENU,
		VK_LWIN, VK_RWIN,
		VK_CAPITAL, VK_NUMLOCK, VK_SCROLL:
		return true
	}
	return false
}

// String returns a short name for well-known keys and the hex code otherwise.
func (vk VirtualKey) String() string {
	switch {
	case vk >= VK_A && vk <= VK_Z:
		return string(rune('A' + vk - VK_A))
	case vk >= VK_0 && vk <= VK_9:
		return string(rune('0' + vk - VK_0))
	case vk >= VK_F1 && vk <= VK_F12:
		return fmt.Sprintf("F%d", vk-VK_F1+1)
	}
	if name, ok := keyNames[vk]; ok {
		return name
	}
	return fmt.Sprintf("VK_0x%02X", uint16(vk))
}

var keyNames = map[VirtualKey]string{
	VK_BACK:     "BACKSPACE",
	VK_TAB:      "TAB",
	VK_RETURN:   "ENTER",
	VK_SHIFT:    "SHIFT",
	VK_CONTROL:  "CTRL",
	VK_MENU:     "ALT",
	VK_PAUSE:    "PAUSE",
	VK_CAPITAL:  "CAPSLOCK",
	VK_ESCAPE:   "ESC",
	VK_SPACE:    "SPACE",
	VK_PRIOR:    "PAGEUP",
	VK_NEXT:     "PAGEDOWN",
	VK_END:      "END",
	VK_HOME:     "HOME",
	VK_LEFT:     "LEFT",
	VK_UP:       "UP",
	VK_RIGHT:    "RIGHT",
	VK_DOWN:     "DOWN",
	VK_INSERT:   "INSERT",
	VK_DELETE:   "DELETE",
	VK_LWIN:     "LWIN",
	VK_RWIN:     "RWIN",
	VK_NUMLOCK:  "NUMLOCK",
	VK_SCROLL:   "SCROLLLOCK",
	VK_LSHIFT:   "LSHIFT",
	VK_RSHIFT:   "RSHIFT",
	VK_LCONTROL: "LCTRL",
	VK_RCONTROL: "RCTRL",
	VK_LMENU:    "LALT",
	VK_RMENU:    "RALT",
	VK_PACKET:   "PACKET",
}
