package hook

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf16"

	"keysense/internal/keyboard"
	"keysense/internal/metrics"
)

// Config configures a Dispatcher.
type Config struct {
	// Layout forces a keyboard layout for character translation. Zero uses
	// the layout of the foreground window's thread.
	Layout keyboard.Layout

	// SlowCallback is the callback duration above which a warning is logged.
	// Zero disables the check.
	SlowCallback time.Duration

	// Metrics is optional.
	Metrics *metrics.KeysenseMetrics

	// Clock stamps events. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		SlowCallback: 50 * time.Millisecond,
	}
}

// KeyboardEvents are the keyboard subscriber registries.
type KeyboardEvents struct {
	KeyDown Registry[KeyEvent]
	KeyUp   Registry[KeyEvent]
	Key     Registry[KeyEvent]
	Char    Registry[CharEvent]
}

// MouseEvents are the mouse subscriber registries.
type MouseEvents struct {
	down [numButtons]Registry[MouseEvent]
	up   [numButtons]Registry[MouseEvent]

	Move        Registry[MouseEvent]
	Wheel       Registry[MouseEvent] // vertical and horizontal
	DoubleClick Registry[MouseEvent]
	Any         Registry[MouseEvent]
}

// ButtonDown returns the registry notified when btn is pressed.
func (m *MouseEvents) ButtonDown(btn MouseButton) *Registry[MouseEvent] {
	if btn >= numButtons {
		btn = ButtonNone
	}
	return &m.down[btn]
}

// ButtonUp returns the registry notified when btn is released.
func (m *MouseEvents) ButtonUp(btn MouseButton) *Registry[MouseEvent] {
	if btn >= numButtons {
		btn = ButtonNone
	}
	return &m.up[btn]
}

// Dispatcher owns the keyboard and mouse hooks of one consumer and fans their
// events out to subscribers.
//
// Subscribers run synchronously on the hook thread and must return quickly;
// the system silently removes hooks that exceed its timeout.
type Dispatcher struct {
	Keyboard KeyboardEvents
	Mouse    MouseEvents
	Activity Registry[ActivityEvent]

	native     Native
	translator *keyboard.Translator
	prober     keyboard.KeyProber
	config     Config
	logger     *slog.Logger
	metrics    *metrics.KeysenseMetrics

	mu      sync.Mutex
	regs    [2]Registration
	handles [2]atomic.Uintptr
	closed  bool

	// Touched only from the keyboard callback, which the system serializes.
	carry      keyboard.Carry
	packetHigh uint16
}

// New creates a Dispatcher. No hook is installed until Install is called.
func New(native Native, kb keyboard.Native, config Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Dispatcher{
		native:     native,
		translator: keyboard.NewTranslator(kb),
		prober:     kb,
		config:     config,
		logger:     logger.With("component", "hook_dispatcher"),
		metrics:    config.Metrics,
	}
}

func slot(kind Kind) int {
	if kind == KindMouse {
		return 1
	}
	return 0
}

// Install installs the hooks in kinds. Each kind is attempted independently;
// the returned error joins the failures, each wrapping ErrInstallFailed.
//
// Installing a kind that is already installed replaces its native hook.
func (d *Dispatcher) Install(kinds Kind) error {
	if kinds == 0 || kinds&^KindAll != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidKind, kinds)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	var errs []error
	for _, kind := range []Kind{KindKeyboard, KindMouse} {
		if kinds&kind == 0 {
			continue
		}
		if err := d.installLocked(kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) installLocked(kind Kind) error {
	i := slot(kind)
	reg := &d.regs[i]

	if reg.Installed {
		d.logger.Warn("hook already installed, replacing", "kind", kind, "handle", uintptr(reg.Handle))
		d.releaseLocked(kind)
	}

	proc := d.keyboardProc
	if kind == KindMouse {
		proc = d.mouseProc
	}

	if kind == KindKeyboard {
		d.carry.Reset()
		d.packetHigh = 0
	}

	h, err := d.native.Install(kind, proc)
	if err != nil || h == 0 {
		*reg = Registration{Kind: kind}
		d.metrics.RecordInstallFailure()
		if err == nil {
			err = errors.New("no handle returned")
		}
		d.logger.Error("hook install failed", "kind", kind, "error", err)
		if errors.Is(err, ErrInstallFailed) {
			return fmt.Errorf("install %s hook: %w", kind, err)
		}
		return fmt.Errorf("%w: %s hook: %w", ErrInstallFailed, kind, err)
	}

	*reg = Registration{Kind: kind, Handle: h, Installed: true}
	d.handles[i].Store(uintptr(h))
	d.metrics.SetHookInstalled(kind == KindKeyboard, true)
	d.logger.Info("hook installed", "kind", kind, "handle", uintptr(h))
	return nil
}

// releaseLocked uninstalls one kind. It never fails: a refused release is
// logged and the registration is cleared regardless.
func (d *Dispatcher) releaseLocked(kind Kind) {
	i := slot(kind)
	reg := &d.regs[i]
	if !reg.Installed {
		return
	}
	if !d.native.Uninstall(reg.Handle) {
		d.logger.Warn("hook release refused", "kind", kind, "handle", uintptr(reg.Handle))
	}
	d.handles[i].Store(0)
	*reg = Registration{Kind: kind}
	d.metrics.SetHookInstalled(kind == KindKeyboard, false)
	d.logger.Info("hook uninstalled", "kind", kind)
}

// Uninstall releases every installed hook. Calling it with nothing installed
// is a no-op.
func (d *Dispatcher) Uninstall() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked(KindKeyboard)
	d.releaseLocked(KindMouse)
	return nil
}

// Close uninstalls every hook. The Dispatcher cannot be installed again.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked(KindKeyboard)
	d.releaseLocked(KindMouse)
	d.closed = true
	return nil
}

// Registration returns the current registration of one kind.
func (d *Dispatcher) Registration(kind Kind) Registration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[slot(kind)]
}

// Installed returns the set of kinds currently installed.
func (d *Dispatcher) Installed() Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	var k Kind
	for _, r := range d.regs {
		if r.Installed {
			k |= r.Kind
		}
	}
	return k
}

func (d *Dispatcher) handle(kind Kind) Handle {
	return Handle(d.handles[slot(kind)].Load())
}

// keyboardProc is the keyboard hook procedure. The event is forwarded exactly
// once on every path, including a panic.
func (d *Dispatcher) keyboardProc(raw Raw) (ret uintptr) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			d.reportPanic(KindKeyboard, fmt.Errorf("%w: %v", ErrCallbackPanic, p))
		}
		ret = d.native.CallNext(d.handle(KindKeyboard), raw)
		elapsed := time.Since(start)
		d.metrics.RecordKeyboardCallback(elapsed)
		d.checkSlow(KindKeyboard, elapsed)
	}()

	if raw.Code < 0 {
		return
	}
	d.dispatchKeyboard(d.native.DecodeKeyboard(raw))
	return
}

// mouseProc is the mouse hook procedure.
func (d *Dispatcher) mouseProc(raw Raw) (ret uintptr) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			d.reportPanic(KindMouse, fmt.Errorf("%w: %v", ErrCallbackPanic, p))
		}
		ret = d.native.CallNext(d.handle(KindMouse), raw)
		elapsed := time.Since(start)
		d.metrics.RecordMouseCallback(elapsed)
		d.checkSlow(KindMouse, elapsed)
	}()

	if raw.Code < 0 {
		return
	}
	d.dispatchMouse(d.native.DecodeMouse(raw))
	return
}

func (d *Dispatcher) dispatchKeyboard(in KeyboardInput) {
	at := d.config.Clock()
	onPanic := d.subscriberPanic(KindKeyboard)

	d.Activity.emit(ActivityEvent{Kind: KindKeyboard, At: at}, onPanic)

	ev := KeyEvent{
		Key:       in.Key,
		ScanCode:  in.ScanCode,
		Flags:     in.Flags,
		Down:      in.IsKeyDown(),
		Up:        in.IsKeyUp(),
		Modifiers: keyboard.ResolveModifiers(d.prober),
		Time:      in.Time,
		At:        at,
	}

	switch {
	case ev.Down:
		d.Keyboard.KeyDown.emit(ev, onPanic)
	case ev.Up:
		d.Keyboard.KeyUp.emit(ev, onPanic)
	}
	d.Keyboard.Key.emit(ev, onPanic)

	if !ev.Down || d.Keyboard.Char.Len() == 0 {
		return
	}

	for _, r := range d.translate(in) {
		if r == 0 {
			continue
		}
		d.metrics.RecordChars(1)
		d.Keyboard.Char.emit(CharEvent{Char: r, Time: in.Time, At: at}, onPanic)
	}
}

// translate turns a key press into committed characters.
func (d *Dispatcher) translate(in KeyboardInput) []rune {
	if in.Key == keyboard.VK_PACKET {
		return d.packet(uint16(in.ScanCode))
	}
	if in.Key.IsModifier() {
		// Keeps a pending dead key alive across a Shift press.
		return nil
	}

	var chars []rune
	if d.config.Layout != 0 {
		chars = d.translator.Translate(&d.carry, in.Key, in.ScanCode, in.Flags, d.config.Layout)
	} else {
		chars = d.translator.TranslateActive(&d.carry, in.Key, in.ScanCode, in.Flags)
	}
	if d.carry.PendingDeadKey() && d.carry.LastKey() == in.Key {
		d.metrics.RecordDeadKey()
	}
	return chars
}

// packet decodes a VK_PACKET keystroke, whose scan code carries one UTF-16
// code unit. Surrogate halves arrive as two packets.
func (d *Dispatcher) packet(unit uint16) []rune {
	r := rune(unit)
	switch {
	case unit == 0:
		d.packetHigh = 0
		return nil
	case unit >= 0xD800 && unit < 0xDC00:
		d.packetHigh = unit
		return nil
	case unit >= 0xDC00 && unit < 0xE000:
		high := d.packetHigh
		d.packetHigh = 0
		if high == 0 {
			return nil
		}
		return []rune{utf16.DecodeRune(rune(high), r)}
	}
	d.packetHigh = 0
	return []rune{r}
}

func (d *Dispatcher) dispatchMouse(in MouseInput) {
	at := d.config.Clock()
	onPanic := d.subscriberPanic(KindMouse)

	d.Activity.emit(ActivityEvent{Kind: KindMouse, At: at}, onPanic)

	action, btn := classifyMouse(in)
	ev := MouseEvent{
		Message: in.Message,
		Action:  action,
		Button:  btn,
		X:       in.X,
		Y:       in.Y,
		Flags:   in.Flags,
		Time:    in.Time,
		At:      at,
	}

	switch action {
	case MouseMove:
		d.Mouse.Move.emit(ev, onPanic)
	case MouseButtonDown:
		d.Mouse.ButtonDown(btn).emit(ev, onPanic)
	case MouseButtonUp:
		d.Mouse.ButtonUp(btn).emit(ev, onPanic)
	case MouseDoubleClick:
		d.Mouse.DoubleClick.emit(ev, onPanic)
	case MouseWheel, MouseHWheel:
		ev.WheelDelta = wheelDelta(in.MouseData)
		d.Mouse.Wheel.emit(ev, onPanic)
	}
	d.Mouse.Any.emit(ev, onPanic)
}

func (d *Dispatcher) subscriberPanic(kind Kind) func(error) {
	return func(err error) {
		d.reportPanic(kind, err)
	}
}

func (d *Dispatcher) reportPanic(kind Kind, err error) {
	d.metrics.RecordPanic()
	d.logger.Error("recovered panic on hook path", "kind", kind, "error", err)
}

func (d *Dispatcher) checkSlow(kind Kind, elapsed time.Duration) {
	if d.config.SlowCallback <= 0 || elapsed <= d.config.SlowCallback {
		return
	}
	d.metrics.RecordSlowCallback()
	d.logger.Warn("slow hook callback",
		"kind", kind,
		"elapsed", elapsed,
		"threshold", d.config.SlowCallback,
	)
}
