package hook

import (
	"time"

	"keysense/internal/keyboard"
)

// Window messages delivered to low-level hooks.
const (
	WM_KEYDOWN       uint32 = 0x0100
	WM_KEYUP         uint32 = 0x0101
	WM_SYSKEYDOWN    uint32 = 0x0104
	WM_SYSKEYUP      uint32 = 0x0105
	WM_MOUSEMOVE     uint32 = 0x0200
	WM_LBUTTONDOWN   uint32 = 0x0201
	WM_LBUTTONUP     uint32 = 0x0202
	WM_LBUTTONDBLCLK uint32 = 0x0203
	WM_RBUTTONDOWN   uint32 = 0x0204
	WM_RBUTTONUP     uint32 = 0x0205
	WM_RBUTTONDBLCLK uint32 = 0x0206
	WM_MBUTTONDOWN   uint32 = 0x0207
	WM_MBUTTONUP     uint32 = 0x0208
	WM_MBUTTONDBLCLK uint32 = 0x0209
	WM_MOUSEWHEEL    uint32 = 0x020A
	WM_XBUTTONDOWN   uint32 = 0x020B
	WM_XBUTTONUP     uint32 = 0x020C
	WM_XBUTTONDBLCLK uint32 = 0x020D
	WM_MOUSEHWHEEL   uint32 = 0x020E
)

// Flags carried by KBDLLHOOKSTRUCT.
const (
	LLKHF_EXTENDED uint32 = 0x01
	LLKHF_INJECTED uint32 = 0x10
	LLKHF_ALTDOWN  uint32 = 0x20
	LLKHF_UP       uint32 = 0x80
)

// KeyboardInput is the decoded payload of one keyboard hook invocation.
type KeyboardInput struct {
	Message   uint32
	Key       keyboard.VirtualKey
	ScanCode  uint32
	Flags     uint32
	Time      uint32 // milliseconds since boot
	ExtraInfo uintptr
}

// IsKeyDown reports whether the message is a key press. A message can be
// neither a press nor a release.
func (k KeyboardInput) IsKeyDown() bool {
	return k.Message == WM_KEYDOWN || k.Message == WM_SYSKEYDOWN
}

// IsKeyUp reports whether the message is a key release.
func (k KeyboardInput) IsKeyUp() bool {
	return k.Message == WM_KEYUP || k.Message == WM_SYSKEYUP
}

// MouseInput is the decoded payload of one mouse hook invocation.
type MouseInput struct {
	Message   uint32
	X, Y      int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// MouseButton identifies a mouse button. It is deliberately not a virtual
// key.
type MouseButton uint8

const (
	ButtonNone MouseButton = iota
	ButtonLeft
	ButtonRight
	ButtonMiddle
	ButtonX1
	ButtonX2

	numButtons
)

// String returns the button name.
func (b MouseButton) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	case ButtonX1:
		return "x1"
	case ButtonX2:
		return "x2"
	default:
		return "none"
	}
}

// MouseAction classifies a mouse message.
type MouseAction uint8

const (
	MouseUnknown MouseAction = iota
	MouseMove
	MouseButtonDown
	MouseButtonUp
	MouseDoubleClick
	MouseWheel
	MouseHWheel
)

// String returns the action name.
func (a MouseAction) String() string {
	switch a {
	case MouseMove:
		return "move"
	case MouseButtonDown:
		return "down"
	case MouseButtonUp:
		return "up"
	case MouseDoubleClick:
		return "double-click"
	case MouseWheel:
		return "wheel"
	case MouseHWheel:
		return "hwheel"
	default:
		return "unknown"
	}
}

// KeyEvent is delivered to key subscribers.
type KeyEvent struct {
	Key       keyboard.VirtualKey
	ScanCode  uint32
	Flags     uint32
	Down      bool
	Up        bool
	Modifiers keyboard.Modifiers
	Time      uint32
	At        time.Time
}

// Injected reports whether the event was synthesized by SendInput or similar.
func (e KeyEvent) Injected() bool { return e.Flags&LLKHF_INJECTED != 0 }

// Extended reports whether the key is an extended key.
func (e KeyEvent) Extended() bool { return e.Flags&LLKHF_EXTENDED != 0 }

// CharEvent is a committed character.
type CharEvent struct {
	Char rune
	Time uint32
	At   time.Time
}

// MouseEvent is delivered to mouse subscribers.
type MouseEvent struct {
	Message    uint32
	Action     MouseAction
	Button     MouseButton
	X, Y       int32
	WheelDelta int16
	Flags      uint32
	Time       uint32
	At         time.Time
}

// ActivityEvent reports that some input happened, without any detail.
type ActivityEvent struct {
	Kind Kind
	At   time.Time
}

// classifyMouse maps a mouse message to its action and button.
func classifyMouse(in MouseInput) (MouseAction, MouseButton) {
	switch in.Message {
	case WM_MOUSEMOVE:
		return MouseMove, ButtonNone
	case WM_LBUTTONDOWN:
		return MouseButtonDown, ButtonLeft
	case WM_LBUTTONUP:
		return MouseButtonUp, ButtonLeft
	case WM_LBUTTONDBLCLK:
		return MouseDoubleClick, ButtonLeft
	case WM_RBUTTONDOWN:
		return MouseButtonDown, ButtonRight
	case WM_RBUTTONUP:
		return MouseButtonUp, ButtonRight
	case WM_RBUTTONDBLCLK:
		return MouseDoubleClick, ButtonRight
	case WM_MBUTTONDOWN:
		return MouseButtonDown, ButtonMiddle
	case WM_MBUTTONUP:
		return MouseButtonUp, ButtonMiddle
	case WM_MBUTTONDBLCLK:
		return MouseDoubleClick, ButtonMiddle
	case WM_XBUTTONDOWN:
		return MouseButtonDown, xButton(in.MouseData)
	case WM_XBUTTONUP:
		return MouseButtonUp, xButton(in.MouseData)
	case WM_XBUTTONDBLCLK:
		return MouseDoubleClick, xButton(in.MouseData)
	case WM_MOUSEWHEEL:
		return MouseWheel, ButtonNone
	case WM_MOUSEHWHEEL:
		return MouseHWheel, ButtonNone
	}
	return MouseUnknown, ButtonNone
}

func xButton(mouseData uint32) MouseButton {
	switch mouseData >> 16 {
	case 1:
		return ButtonX1
	case 2:
		return ButtonX2
	}
	return ButtonNone
}

// wheelDelta extracts the signed wheel rotation from the high word.
func wheelDelta(mouseData uint32) int16 {
	return int16(uint16(mouseData >> 16))
}
