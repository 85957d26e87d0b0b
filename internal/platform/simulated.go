package platform

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"keysense/internal/hook"
	"keysense/internal/keyboard"
)

// LayoutUSInternational is the only layout Simulated knows. It has dead keys
// for acute and diaeresis on the quote key and grave and tilde on the
// backtick key.
const LayoutUSInternational keyboard.Layout = 0x00020409

// simulatedThread is the thread id reported for the "focused window".
const simulatedThread = 0x1F00

// deadKey is a diacritic waiting for its base character.
type deadKey struct {
	combining rune // U+0300 block mark used for composition
	spacing   rune // emitted when the key cannot compose
}

type keyDef struct {
	normal  rune
	shifted rune
	letter  bool
	dead    [2]deadKey // unshifted, shifted
}

var usInternational = buildUSInternational()

func buildUSInternational() map[keyboard.VirtualKey]keyDef {
	keys := make(map[keyboard.VirtualKey]keyDef)
	for vk := keyboard.VK_A; vk <= keyboard.VK_Z; vk++ {
		off := rune(vk - keyboard.VK_A)
		keys[vk] = keyDef{normal: 'a' + off, shifted: 'A' + off, letter: true}
	}
	shiftedDigits := []rune(")!@#$%^&*(")
	for vk := keyboard.VK_0; vk <= keyboard.VK_9; vk++ {
		keys[vk] = keyDef{normal: '0' + rune(vk-keyboard.VK_0), shifted: shiftedDigits[vk-keyboard.VK_0]}
	}

	plain := map[keyboard.VirtualKey][2]rune{
		keyboard.VK_SPACE:      {' ', ' '},
		keyboard.VK_RETURN:     {'\r', '\r'},
		keyboard.VK_TAB:        {'\t', '\t'},
		keyboard.VK_BACK:       {'\b', '\b'},
		keyboard.VK_ESCAPE:     {0x1B, 0x1B},
		keyboard.VK_OEM_1:      {';', ':'},
		keyboard.VK_OEM_PLUS:   {'=', '+'},
		keyboard.VK_OEM_COMMA:  {',', '<'},
		keyboard.VK_OEM_MINUS:  {'-', '_'},
		keyboard.VK_OEM_PERIOD: {'.', '>'},
		keyboard.VK_OEM_2:      {'/', '?'},
		keyboard.VK_OEM_4:      {'[', '{'},
		keyboard.VK_OEM_5:      {'\\', '|'},
		keyboard.VK_OEM_6:      {']', '}'},
	}
	for vk, r := range plain {
		keys[vk] = keyDef{normal: r[0], shifted: r[1]}
	}

	keys[keyboard.VK_OEM_7] = keyDef{dead: [2]deadKey{
		{combining: '\u0301', spacing: '\''},
		{combining: '\u0308', spacing: '"'},
	}}
	keys[keyboard.VK_OEM_3] = keyDef{dead: [2]deadKey{
		{combining: '\u0300', spacing: '`'},
		{combining: '\u0303', spacing: '~'},
	}}
	return keys
}

// Set 1 scan codes of the simulated keyboard.
var scanCodes = map[keyboard.VirtualKey]uint32{
	keyboard.VK_ESCAPE: 0x01, keyboard.VK_BACK: 0x0E, keyboard.VK_TAB: 0x0F,
	keyboard.VK_RETURN: 0x1C, keyboard.VK_SPACE: 0x39, keyboard.VK_CAPITAL: 0x3A,
	keyboard.VK_LSHIFT: 0x2A, keyboard.VK_RSHIFT: 0x36, keyboard.VK_SHIFT: 0x2A,
	keyboard.VK_LCONTROL: 0x1D, keyboard.VK_CONTROL: 0x1D, keyboard.VK_LMENU: 0x38, keyboard.VK_MENU: 0x38,
	keyboard.VK_OEM_MINUS: 0x0C, keyboard.VK_OEM_PLUS: 0x0D, keyboard.VK_OEM_4: 0x1A, keyboard.VK_OEM_6: 0x1B,
	keyboard.VK_OEM_1: 0x27, keyboard.VK_OEM_7: 0x28, keyboard.VK_OEM_3: 0x29, keyboard.VK_OEM_5: 0x2B,
	keyboard.VK_OEM_COMMA: 0x33, keyboard.VK_OEM_PERIOD: 0x34, keyboard.VK_OEM_2: 0x35,
}

func init() {
	for i, r := range "QWERTYUIOP" {
		scanCodes[keyboard.VK_A+keyboard.VirtualKey(r-'A')] = 0x10 + uint32(i)
	}
	for i, r := range "ASDFGHJKL" {
		scanCodes[keyboard.VK_A+keyboard.VirtualKey(r-'A')] = 0x1E + uint32(i)
	}
	for i, r := range "ZXCVBNM" {
		scanCodes[keyboard.VK_A+keyboard.VirtualKey(r-'A')] = 0x2C + uint32(i)
	}
	for vk := keyboard.VK_0 + 1; vk <= keyboard.VK_9; vk++ {
		scanCodes[vk] = 0x02 + uint32(vk-keyboard.VK_0-1)
	}
	scanCodes[keyboard.VK_0] = 0x0B
}

// ScanCode returns the simulated scan code of vk, or 0.
func ScanCode(vk keyboard.VirtualKey) uint32 {
	return scanCodes[vk]
}

var (
	genericOf = map[keyboard.VirtualKey]keyboard.VirtualKey{
		keyboard.VK_LSHIFT: keyboard.VK_SHIFT, keyboard.VK_RSHIFT: keyboard.VK_SHIFT,
		keyboard.VK_LCONTROL: keyboard.VK_CONTROL, keyboard.VK_RCONTROL: keyboard.VK_CONTROL,
		keyboard.VK_LMENU: keyboard.VK_MENU, keyboard.VK_RMENU: keyboard.VK_MENU,
	}
	sidesOf = map[keyboard.VirtualKey][2]keyboard.VirtualKey{
		keyboard.VK_SHIFT:   {keyboard.VK_LSHIFT, keyboard.VK_RSHIFT},
		keyboard.VK_CONTROL: {keyboard.VK_LCONTROL, keyboard.VK_RCONTROL},
		keyboard.VK_MENU:    {keyboard.VK_LMENU, keyboard.VK_RMENU},
	}
	staleKeys = []keyboard.VirtualKey{
		keyboard.VK_SHIFT, keyboard.VK_LSHIFT, keyboard.VK_RSHIFT,
		keyboard.VK_CONTROL, keyboard.VK_LCONTROL, keyboard.VK_RCONTROL,
		keyboard.VK_MENU, keyboard.VK_LMENU, keyboard.VK_RMENU,
		keyboard.VK_CAPITAL,
	}
)

// Simulated is an in-memory platform. It owns a live key-state table, a
// native dead-key buffer shared by every translation (as the real one is per
// thread), and a focused application that consumes each keystroke after the
// hooks have run.
type Simulated struct {
	mu sync.Mutex

	procs     [2]hook.Proc
	handles   [2]hook.Handle
	nextID    uintptr
	refuse    hook.Kind
	delivered [2]int
	forwarded [2]int

	inFlightKB map[uintptr]hook.KeyboardInput
	inFlightMS map[uintptr]hook.MouseInput

	live     keyboard.KeyState
	stale    bool
	stateErr error
	pending  deadKey
	appText  []rune
	tick     uint32
	x, y     int32
}

// NewSimulated returns a Simulated platform with no key held and CapsLock
// off.
func NewSimulated() *Simulated {
	return &Simulated{
		nextID:     0x5000,
		inFlightKB: make(map[uintptr]hook.KeyboardInput),
		inFlightMS: make(map[uintptr]hook.MouseInput),
	}
}

// Name implements Platform.
func (s *Simulated) Name() string { return "simulated" }

// Close releases every hook.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs = [2]hook.Proc{}
	s.handles = [2]hook.Handle{}
	return nil
}

// RefuseInstall makes Install fail for the given kinds.
func (s *Simulated) RefuseInstall(kinds hook.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = kinds
}

// SetStaleState makes KeyboardState omit modifier and CapsLock bits, the way
// the snapshot lags behind inside a low-level hook.
func (s *Simulated) SetStaleState(stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = stale
}

// FailKeyboardState makes KeyboardState return err. Nil restores it.
func (s *Simulated) FailKeyboardState(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateErr = err
}

// SetCapsLock sets the CapsLock toggle without delivering an event.
func (s *Simulated) SetCapsLock(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.SetToggled(keyboard.VK_CAPITAL, on)
}

// SetKeyDown marks vk held or released without delivering an event.
func (s *Simulated) SetKeyDown(vk keyboard.VirtualKey, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setDownLocked(vk, down)
}

func (s *Simulated) setDownLocked(vk keyboard.VirtualKey, down bool) {
	s.live.SetDown(vk, down)
	if generic, ok := genericOf[vk]; ok {
		sides := sidesOf[generic]
		s.live.SetDown(generic, s.live.IsDown(sides[0]) || s.live.IsDown(sides[1]))
	}
	if sides, ok := sidesOf[vk]; ok {
		// A generic key stands for its left side.
		s.live.SetDown(sides[0], down)
		if !down {
			s.live.SetDown(sides[1], false)
		}
	}
}

// Delivered returns how many events reached an installed hook of kind.
func (s *Simulated) Delivered(kind hook.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered[slotOf(kind)]
}

// Forwarded returns how many events of kind were passed to CallNext.
func (s *Simulated) Forwarded(kind hook.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwarded[slotOf(kind)]
}

// Installed returns the kinds with a hook installed.
func (s *Simulated) Installed() hook.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var k hook.Kind
	if s.procs[0] != nil {
		k |= hook.KindKeyboard
	}
	if s.procs[1] != nil {
		k |= hook.KindMouse
	}
	return k
}

// AppText returns everything the focused application has received.
func (s *Simulated) AppText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.appText)
}

// PendingDeadKey reports whether the native dead-key buffer is armed.
func (s *Simulated) PendingDeadKey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.combining != 0
}

func slotOf(kind hook.Kind) int {
	if kind == hook.KindMouse {
		return 1
	}
	return 0
}

// Install implements hook.Native.
func (s *Simulated) Install(kind hook.Kind, proc hook.Proc) (hook.Handle, error) {
	if kind != hook.KindKeyboard && kind != hook.KindMouse {
		return 0, fmt.Errorf("%w: %s", hook.ErrInvalidKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refuse&kind != 0 {
		return 0, fmt.Errorf("%w: simulated refusal", hook.ErrInstallFailed)
	}
	i := slotOf(kind)
	if s.procs[i] != nil {
		return 0, hook.ErrHookBusy
	}
	s.nextID++
	s.procs[i] = proc
	s.handles[i] = hook.Handle(s.nextID)
	return s.handles[i], nil
}

// Uninstall implements hook.Native.
func (s *Simulated) Uninstall(h hook.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.handles {
		if h != 0 && s.handles[i] == h {
			s.handles[i] = 0
			s.procs[i] = nil
			return true
		}
	}
	return false
}

// CallNext implements hook.Native.
func (s *Simulated) CallNext(h hook.Handle, raw hook.Raw) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint32(raw.WParam) < hook.WM_MOUSEMOVE {
		s.forwarded[0]++
	} else {
		s.forwarded[1]++
	}
	return 0
}

// DecodeKeyboard implements hook.Native.
func (s *Simulated) DecodeKeyboard(raw hook.Raw) hook.KeyboardInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlightKB[raw.LParam]
}

// DecodeMouse implements hook.Native.
func (s *Simulated) DecodeMouse(raw hook.Raw) hook.MouseInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlightMS[raw.LParam]
}

// KeyboardState implements keyboard.Native.
func (s *Simulated) KeyboardState(state *keyboard.KeyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateErr != nil {
		return s.stateErr
	}
	*state = s.live
	if s.stale {
		for _, vk := range staleKeys {
			state[vk] = 0
		}
	}
	return nil
}

// AsyncKeyDown implements keyboard.KeyProber.
func (s *Simulated) AsyncKeyDown(vk keyboard.VirtualKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.IsDown(vk)
}

// KeyToggled implements keyboard.Native.
func (s *Simulated) KeyToggled(vk keyboard.VirtualKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.IsToggled(vk)
}

// ForegroundThreadID implements keyboard.Native.
func (s *Simulated) ForegroundThreadID() uint32 { return simulatedThread }

// KeyboardLayout implements keyboard.Native.
func (s *Simulated) KeyboardLayout(threadID uint32) keyboard.Layout {
	if threadID == 0 {
		return 0
	}
	return LayoutUSInternational
}

// ToUnicodeEx implements keyboard.Native with LayoutUSInternational
// semantics. Like the real primitive it consumes and arms the dead-key
// buffer.
func (s *Simulated) ToUnicodeEx(vk keyboard.VirtualKey, scanCode uint32, state *keyboard.KeyState, buf []uint16, flags uint32, layout keyboard.Layout) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if layout != LayoutUSInternational {
		return 0
	}
	return s.translateLocked(vk, state, buf)
}

// ApplicationTranslate is the focused application translating vk after the
// hooks have seen it. The result is appended to AppText.
func (s *Simulated) ApplicationTranslate(vk keyboard.VirtualKey) []rune {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appTranslateLocked(vk)
}

func (s *Simulated) appTranslateLocked(vk keyboard.VirtualKey) []rune {
	state := s.live
	var buf [16]uint16
	n := s.translateLocked(vk, &state, buf[:])
	if n <= 0 {
		return nil
	}
	out := utf16.Decode(buf[:n])
	s.appText = append(s.appText, out...)
	return out
}

func (s *Simulated) translateLocked(vk keyboard.VirtualKey, state *keyboard.KeyState, buf []uint16) int {
	def, ok := usInternational[vk]
	if !ok {
		return 0
	}

	shift := state.IsDown(keyboard.VK_SHIFT)
	ctrl := state.IsDown(keyboard.VK_CONTROL)
	alt := state.IsDown(keyboard.VK_MENU)
	switch {
	case ctrl && alt:
		return 0
	case ctrl:
		if def.letter {
			return encode(buf, rune(vk-keyboard.VK_A)+1)
		}
		return 0
	}

	idx := 0
	if shift {
		idx = 1
	}
	if dk := def.dead[idx]; dk.combining != 0 {
		if prev := s.pending; prev.combining != 0 {
			s.pending = deadKey{}
			return encode(buf, prev.spacing, dk.spacing)
		}
		s.pending = dk
		return -1
	}

	upper := shift
	if def.letter && state.IsToggled(keyboard.VK_CAPITAL) {
		upper = !upper
	}
	r := def.normal
	if upper {
		r = def.shifted
	}

	if prev := s.pending; prev.combining != 0 {
		s.pending = deadKey{}
		if r == ' ' {
			return encode(buf, prev.spacing)
		}
		if c, ok := compose(r, prev.combining); ok {
			return encode(buf, c)
		}
		return encode(buf, prev.spacing, r)
	}
	return encode(buf, r)
}

// compose joins base and a combining mark into one precomposed rune.
func compose(base, mark rune) (rune, bool) {
	out := []rune(norm.NFC.String(string([]rune{base, mark})))
	if len(out) != 1 {
		return 0, false
	}
	return out[0], true
}

func encode(buf []uint16, runes ...rune) int {
	units := utf16.Encode(runes)
	return copy(buf, units)
}

// Keyboard injection.

// KeyDown delivers a key press. The hook sees the event before the live key
// state changes; the focused application translates it afterwards.
func (s *Simulated) KeyDown(vk keyboard.VirtualKey) {
	s.key(vk, true)
}

// KeyUp delivers a key release.
func (s *Simulated) KeyUp(vk keyboard.VirtualKey) {
	s.key(vk, false)
}

// Tap presses and releases vk.
func (s *Simulated) Tap(vk keyboard.VirtualKey) {
	s.KeyDown(vk)
	s.KeyUp(vk)
}

// TapShifted taps vk while holding the left Shift key.
func (s *Simulated) TapShifted(vk keyboard.VirtualKey) {
	s.KeyDown(keyboard.VK_LSHIFT)
	s.Tap(vk)
	s.KeyUp(keyboard.VK_LSHIFT)
}

func (s *Simulated) key(vk keyboard.VirtualKey, down bool) {
	s.mu.Lock()
	alt := s.live.IsDown(keyboard.VK_MENU) || genericOf[vk] == keyboard.VK_MENU || vk == keyboard.VK_MENU
	ctrl := s.live.IsDown(keyboard.VK_CONTROL)
	in := hook.KeyboardInput{Key: vk, ScanCode: scanCodes[vk], Time: s.nextTickLocked()}
	sys := alt && !ctrl
	switch {
	case down && sys:
		in.Message = hook.WM_SYSKEYDOWN
	case down:
		in.Message = hook.WM_KEYDOWN
	case sys:
		in.Message = hook.WM_SYSKEYUP
	default:
		in.Message = hook.WM_KEYUP
	}
	if !down {
		in.Flags |= hook.LLKHF_UP
	}
	if alt {
		in.Flags |= hook.LLKHF_ALTDOWN
	}
	s.mu.Unlock()

	s.InjectKeyboard(in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if down && vk == keyboard.VK_CAPITAL && !s.live.IsDown(vk) {
		s.live.SetToggled(vk, !s.live.IsToggled(vk))
	}
	s.setDownLocked(vk, down)
	if down && !vk.IsModifier() {
		s.appTranslateLocked(vk)
	}
}

// InjectKeyboard delivers in to the keyboard hook, if one is installed. The
// live key state is not touched.
func (s *Simulated) InjectKeyboard(in hook.KeyboardInput) {
	s.mu.Lock()
	proc := s.procs[0]
	s.nextID++
	id := s.nextID
	s.inFlightKB[id] = in
	if proc != nil {
		s.delivered[0]++
	}
	s.mu.Unlock()

	if proc != nil {
		proc(hook.Raw{Code: 0, WParam: uintptr(in.Message), LParam: id})
	}

	s.mu.Lock()
	delete(s.inFlightKB, id)
	s.mu.Unlock()
}

// InjectInvalid delivers an event with a negative hook code, which hooks
// must forward without processing.
func (s *Simulated) InjectInvalid(kind hook.Kind) {
	s.mu.Lock()
	proc := s.procs[slotOf(kind)]
	if proc != nil {
		s.delivered[slotOf(kind)]++
	}
	s.mu.Unlock()

	msg := hook.WM_KEYDOWN
	if kind == hook.KindMouse {
		msg = hook.WM_MOUSEMOVE
	}
	if proc != nil {
		proc(hook.Raw{Code: -1, WParam: uintptr(msg)})
	}
}

// Packet delivers r as VK_PACKET keystrokes, one per UTF-16 code unit.
func (s *Simulated) Packet(r rune) {
	for _, unit := range utf16.Encode([]rune{r}) {
		for _, msg := range []uint32{hook.WM_KEYDOWN, hook.WM_KEYUP} {
			s.mu.Lock()
			in := hook.KeyboardInput{Message: msg, Key: keyboard.VK_PACKET, ScanCode: uint32(unit), Flags: hook.LLKHF_INJECTED, Time: s.nextTickLocked()}
			if msg == hook.WM_KEYUP {
				in.Flags |= hook.LLKHF_UP
			}
			s.mu.Unlock()
			s.InjectKeyboard(in)
		}
	}
	s.mu.Lock()
	s.appText = append(s.appText, r)
	s.mu.Unlock()
}

// Stroke is one key tap, optionally with Shift held.
type Stroke struct {
	Key   keyboard.VirtualKey
	Shift bool
}

// ErrUntypeable is returned by Strokes for characters the simulated layout
// cannot produce.
var ErrUntypeable = errors.New("platform: character not on simulated layout")

// Strokes returns the keystrokes that type r on LayoutUSInternational.
func Strokes(r rune) ([]Stroke, error) {
	if st, ok := plainStroke(r); ok {
		return []Stroke{st}, nil
	}

	// Spacing accents are typed as dead key + space.
	for vk, def := range usInternational {
		for i, dk := range def.dead {
			if dk.combining != 0 && dk.spacing == r {
				return []Stroke{{Key: vk, Shift: i == 1}, {Key: keyboard.VK_SPACE}}, nil
			}
		}
	}

	decomposed := []rune(norm.NFD.String(string(r)))
	if len(decomposed) == 2 {
		base, ok := plainStroke(decomposed[0])
		if ok {
			for vk, def := range usInternational {
				for i, dk := range def.dead {
					if dk.combining == decomposed[1] {
						return []Stroke{{Key: vk, Shift: i == 1}, base}, nil
					}
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUntypeable, r)
}

func plainStroke(r rune) (Stroke, bool) {
	for vk, def := range usInternational {
		if def.dead[0].combining != 0 {
			continue
		}
		switch r {
		case def.normal:
			return Stroke{Key: vk}, true
		case def.shifted:
			return Stroke{Key: vk, Shift: true}, true
		}
	}
	return Stroke{}, false
}

// Type types text through the keyboard hook. Characters the layout cannot
// produce are sent as VK_PACKET, the way input methods inject them.
func (s *Simulated) Type(text string) {
	for _, r := range text {
		strokes, err := Strokes(r)
		if err != nil {
			s.Packet(r)
			continue
		}
		for _, st := range strokes {
			if st.Shift {
				s.TapShifted(st.Key)
			} else {
				s.Tap(st.Key)
			}
		}
	}
}

// Mouse injection.

// MouseMove moves the pointer to x, y.
func (s *Simulated) MouseMove(x, y int32) {
	s.mouse(hook.WM_MOUSEMOVE, 0, x, y)
}

// MouseDown presses btn at the current position.
func (s *Simulated) MouseDown(btn hook.MouseButton) {
	msg, data := buttonMessage(btn, 0)
	x, y := s.pos()
	s.mouse(msg, data, x, y)
}

// MouseUp releases btn at the current position.
func (s *Simulated) MouseUp(btn hook.MouseButton) {
	msg, data := buttonMessage(btn, 1)
	x, y := s.pos()
	s.mouse(msg, data, x, y)
}

// Click presses and releases btn.
func (s *Simulated) Click(btn hook.MouseButton) {
	s.MouseDown(btn)
	s.MouseUp(btn)
}

// DoubleClick delivers the double-click message of btn.
func (s *Simulated) DoubleClick(btn hook.MouseButton) {
	msg, data := buttonMessage(btn, 2)
	x, y := s.pos()
	s.mouse(msg, data, x, y)
}

// Wheel rotates the vertical wheel by delta (120 per notch).
func (s *Simulated) Wheel(delta int16) {
	x, y := s.pos()
	s.mouse(hook.WM_MOUSEWHEEL, uint32(uint16(delta))<<16, x, y)
}

// HWheel rotates the horizontal wheel by delta.
func (s *Simulated) HWheel(delta int16) {
	x, y := s.pos()
	s.mouse(hook.WM_MOUSEHWHEEL, uint32(uint16(delta))<<16, x, y)
}

func (s *Simulated) pos() (int32, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y
}

// buttonMessage returns the message for btn; action is 0 down, 1 up, 2
// double-click.
func buttonMessage(btn hook.MouseButton, action int) (uint32, uint32) {
	switch btn {
	case hook.ButtonLeft:
		return hook.WM_LBUTTONDOWN + uint32(action), 0
	case hook.ButtonRight:
		return hook.WM_RBUTTONDOWN + uint32(action), 0
	case hook.ButtonMiddle:
		return hook.WM_MBUTTONDOWN + uint32(action), 0
	case hook.ButtonX1:
		return hook.WM_XBUTTONDOWN + uint32(action), 1 << 16
	case hook.ButtonX2:
		return hook.WM_XBUTTONDOWN + uint32(action), 2 << 16
	}
	return hook.WM_MOUSEMOVE, 0
}

func (s *Simulated) mouse(msg, data uint32, x, y int32) {
	s.mu.Lock()
	s.x, s.y = x, y
	in := hook.MouseInput{Message: msg, X: x, Y: y, MouseData: data, Time: s.nextTickLocked()}
	s.mu.Unlock()
	s.InjectMouse(in)
}

// InjectMouse delivers in to the mouse hook, if one is installed.
func (s *Simulated) InjectMouse(in hook.MouseInput) {
	s.mu.Lock()
	proc := s.procs[1]
	s.nextID++
	id := s.nextID
	s.inFlightMS[id] = in
	if proc != nil {
		s.delivered[1]++
	}
	s.mu.Unlock()

	if proc != nil {
		proc(hook.Raw{Code: 0, WParam: uintptr(in.Message), LParam: id})
	}

	s.mu.Lock()
	delete(s.inFlightMS, id)
	s.mu.Unlock()
}

func (s *Simulated) nextTickLocked() uint32 {
	s.tick += 10
	return s.tick
}
