//go:build windows

package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"keysense/internal/hook"
	"keysense/internal/keyboard"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetKeyboardState    = user32.NewProc("GetKeyboardState")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
	procGetKeyState         = user32.NewProc("GetKeyState")
	procToUnicodeEx         = user32.NewProc("ToUnicodeEx")
	procGetKeyboardLayout   = user32.NewProc("GetKeyboardLayout")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmQuit = 0x0012
	wmUser = 0x0400

	// wmRun asks the hook thread to drain its request queue.
	wmRun = wmUser + 0x4B

	pmNoRemove = 0x0000
)

type kbdllhookstruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msllhookstruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// The system calls back into Go through one trampoline per kind, created
// once per process. The trampolines dispatch to whichever proc currently owns
// the slot.
var (
	trampolineOnce sync.Once
	keyboardCB     uintptr
	mouseCB        uintptr
	slots          [2]atomic.Pointer[hook.Proc]
)

func slotIndex(kind hook.Kind) int {
	if kind == hook.KindMouse {
		return 1
	}
	return 0
}

func initTrampolines() {
	trampolineOnce.Do(func() {
		keyboardCB = windows.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			return trampoline(0, nCode, wParam, lParam)
		})
		mouseCB = windows.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			return trampoline(1, nCode, wParam, lParam)
		})
	})
}

func trampoline(i int, nCode, wParam, lParam uintptr) uintptr {
	if p := slots[i].Load(); p != nil {
		return (*p)(hook.Raw{Code: int32(nCode), WParam: wParam, LParam: lParam})
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

var _ Platform = (*Windows)(nil)

// Windows runs low-level hooks on a dedicated OS thread with a message loop.
// Hooks must be installed and removed from that thread. Install, Uninstall
// and Close may also be called from subscribers running on it.
type Windows struct {
	logger *slog.Logger

	threadID uint32
	requests chan func()
	done     chan struct{}

	mu      sync.Mutex
	handles [2]hook.Handle
	closed  bool
}

// New starts the hook thread and returns the Windows platform.
func New(logger *slog.Logger) (Platform, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("%w: %v", hook.ErrNotAvailable, err)
	}
	initTrampolines()

	w := &Windows{
		logger:   logger.With("component", "platform_windows"),
		requests: make(chan func(), 8),
		done:     make(chan struct{}),
	}

	ready := make(chan uint32)
	go w.loop(ready)
	w.threadID = <-ready
	return w, nil
}

// loop owns the locked OS thread for the platform's lifetime.
func (w *Windows) loop(ready chan<- uint32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	// PeekMessage creates the thread's message queue so PostThreadMessage
	// cannot race the first GetMessage.
	var m msg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, wmUser, wmUser, pmNoRemove)
	ready <- windows.GetCurrentThreadId()

	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			w.logger.Error("GetMessageW failed, stopping hook thread")
			w.releaseAll()
			return
		case 0:
			w.releaseAll()
			return
		}
		if m.Message == wmRun {
			w.drain()
		}
	}
}

func (w *Windows) drain() {
	for {
		select {
		case fn := <-w.requests:
			fn()
		default:
			return
		}
	}
}

// onHookThread reports whether the caller is a hook callback or a subscriber
// running inside one.
func (w *Windows) onHookThread() bool {
	return windows.GetCurrentThreadId() == w.threadID
}

// run executes fn on the hook thread and waits for it. Called from the hook
// thread itself, fn runs inline.
func (w *Windows) run(fn func()) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return hook.ErrNotAvailable
	}

	if w.onHookThread() {
		fn()
		return nil
	}

	finished := make(chan struct{})
	w.requests <- func() {
		defer close(finished)
		fn()
	}
	if ok, _, err := procPostThreadMessageW.Call(uintptr(w.threadID), wmRun, 0, 0); ok == 0 {
		return fmt.Errorf("post to hook thread: %w", err)
	}

	select {
	case <-finished:
		return nil
	case <-w.done:
		return errors.New("hook thread exited")
	}
}

// Name implements Platform.
func (w *Windows) Name() string { return "windows" }

// Install implements hook.Native.
func (w *Windows) Install(kind hook.Kind, proc hook.Proc) (hook.Handle, error) {
	var (
		idHook uintptr
		cb     uintptr
	)
	switch kind {
	case hook.KindKeyboard:
		idHook, cb = whKeyboardLL, keyboardCB
	case hook.KindMouse:
		idHook, cb = whMouseLL, mouseCB
	default:
		return 0, fmt.Errorf("%w: %s", hook.ErrInvalidKind, kind)
	}

	i := slotIndex(kind)
	if !slots[i].CompareAndSwap(nil, &proc) {
		return 0, hook.ErrHookBusy
	}

	var (
		h       uintptr
		callErr error
	)
	err := w.run(func() {
		var mod windows.Handle
		if err := windows.GetModuleHandleEx(0, nil, &mod); err != nil {
			callErr = err
			return
		}
		h, _, callErr = procSetWindowsHookExW.Call(idHook, cb, uintptr(mod), 0)
	})
	if err == nil && h == 0 {
		err = fmt.Errorf("%w: SetWindowsHookExW: %v", hook.ErrInstallFailed, callErr)
	}
	if err != nil {
		slots[i].Store(nil)
		return 0, err
	}

	w.mu.Lock()
	w.handles[i] = hook.Handle(h)
	w.mu.Unlock()
	return hook.Handle(h), nil
}

// Uninstall implements hook.Native.
func (w *Windows) Uninstall(h hook.Handle) bool {
	if h == 0 {
		return false
	}

	w.mu.Lock()
	i := -1
	for j, owned := range w.handles {
		if owned == h {
			i = j
		}
	}
	w.mu.Unlock()

	var ok uintptr
	err := w.run(func() {
		ok, _, _ = procUnhookWindowsHookEx.Call(uintptr(h))
	})
	if i >= 0 {
		w.mu.Lock()
		w.handles[i] = 0
		w.mu.Unlock()
		slots[i].Store(nil)
	}
	return err == nil && ok != 0
}

// CallNext implements hook.Native.
func (w *Windows) CallNext(h hook.Handle, raw hook.Raw) uintptr {
	ret, _, _ := procCallNextHookEx.Call(uintptr(h), uintptr(raw.Code), raw.WParam, raw.LParam)
	return ret
}

// DecodeKeyboard implements hook.Native. raw.LParam points at a
// KBDLLHOOKSTRUCT owned by the system for the duration of the callback.
func (w *Windows) DecodeKeyboard(raw hook.Raw) hook.KeyboardInput {
	k := (*kbdllhookstruct)(unsafe.Pointer(raw.LParam))
	return hook.KeyboardInput{
		Message:   uint32(raw.WParam),
		Key:       keyboard.VirtualKey(k.VkCode),
		ScanCode:  k.ScanCode,
		Flags:     k.Flags,
		Time:      k.Time,
		ExtraInfo: k.DwExtraInfo,
	}
}

// DecodeMouse implements hook.Native.
func (w *Windows) DecodeMouse(raw hook.Raw) hook.MouseInput {
	m := (*msllhookstruct)(unsafe.Pointer(raw.LParam))
	return hook.MouseInput{
		Message:   uint32(raw.WParam),
		X:         m.Pt.X,
		Y:         m.Pt.Y,
		MouseData: m.MouseData,
		Flags:     m.Flags,
		Time:      m.Time,
		ExtraInfo: m.DwExtraInfo,
	}
}

// KeyboardState implements keyboard.Native.
func (w *Windows) KeyboardState(state *keyboard.KeyState) error {
	ok, _, err := procGetKeyboardState.Call(uintptr(unsafe.Pointer(&state[0])))
	if ok == 0 {
		return fmt.Errorf("GetKeyboardState: %w", err)
	}
	return nil
}

// AsyncKeyDown implements keyboard.KeyProber.
func (w *Windows) AsyncKeyDown(vk keyboard.VirtualKey) bool {
	r, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	return uint16(r)&0x8000 != 0
}

// KeyToggled implements keyboard.Native.
func (w *Windows) KeyToggled(vk keyboard.VirtualKey) bool {
	r, _, _ := procGetKeyState.Call(uintptr(vk))
	return uint16(r)&0x0001 != 0
}

// ToUnicodeEx implements keyboard.Native.
func (w *Windows) ToUnicodeEx(vk keyboard.VirtualKey, scanCode uint32, state *keyboard.KeyState, buf []uint16, flags uint32, layout keyboard.Layout) int {
	if len(buf) == 0 {
		return 0
	}
	r, _, _ := procToUnicodeEx.Call(
		uintptr(vk),
		uintptr(scanCode),
		uintptr(unsafe.Pointer(&state[0])),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(flags),
		uintptr(layout),
	)
	return int(int32(r))
}

// ForegroundThreadID implements keyboard.Native.
func (w *Windows) ForegroundThreadID() uint32 {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return 0
	}
	tid, err := windows.GetWindowThreadProcessId(hwnd, nil)
	if err != nil {
		return 0
	}
	return tid
}

// KeyboardLayout implements keyboard.Native.
func (w *Windows) KeyboardLayout(threadID uint32) keyboard.Layout {
	r, _, _ := procGetKeyboardLayout.Call(uintptr(threadID))
	return keyboard.Layout(r)
}

// Close stops the hook thread. Hooks still installed are released on it.
func (w *Windows) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if ok, _, err := procPostThreadMessageW.Call(uintptr(w.threadID), wmQuit, 0, 0); ok == 0 {
		return fmt.Errorf("stop hook thread: %w", err)
	}
	if w.onHookThread() {
		// The loop sees WM_QUIT once the current callback returns.
		return nil
	}
	<-w.done
	return nil
}

// releaseAll runs on the hook thread as it exits.
func (w *Windows) releaseAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, h := range w.handles {
		if h == 0 {
			continue
		}
		procUnhookWindowsHookEx.Call(uintptr(h))
		w.handles[i] = 0
		slots[i].Store(nil)
		w.logger.Warn("released hook left installed at shutdown", "handle", uintptr(h))
	}
}
