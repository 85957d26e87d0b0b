package hook_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keysense/internal/hook"
	"keysense/internal/keyboard"
	"keysense/internal/metrics"
	"keysense/internal/platform"
)

func newDispatcher(t *testing.T) (*hook.Dispatcher, *platform.Simulated) {
	t.Helper()
	sim := platform.NewSimulated()
	d := hook.New(sim, sim, hook.DefaultConfig(), nil)
	t.Cleanup(func() { d.Close() })
	return d, sim
}

func collectChars(d *hook.Dispatcher) *[]rune {
	var out []rune
	d.Keyboard.Char.Subscribe(func(e hook.CharEvent) { out = append(out, e.Char) })
	return &out
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func TestInstallUninstall(t *testing.T) {
	d, sim := newDispatcher(t)

	require.NoError(t, d.Install(hook.KindAll))
	assert.Equal(t, hook.KindAll, d.Installed())
	assert.Equal(t, hook.KindAll, sim.Installed())

	kb := d.Registration(hook.KindKeyboard)
	assert.True(t, kb.Installed)
	assert.NotZero(t, kb.Handle)

	require.NoError(t, d.Uninstall())
	require.NoError(t, d.Uninstall())
	assert.Equal(t, hook.Kind(0), d.Installed())
	assert.Equal(t, hook.Kind(0), sim.Installed())
	assert.Zero(t, d.Registration(hook.KindKeyboard).Handle)
}

func TestUninstallFromSubscriber(t *testing.T) {
	d, sim := newDispatcher(t)
	keys := 0
	d.Keyboard.KeyDown.Subscribe(func(e hook.KeyEvent) {
		keys++
		if e.Key == keyboard.VK_ESCAPE {
			assert.NoError(t, d.Uninstall())
		}
	})

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Tap(keyboard.VK_A)
	sim.Tap(keyboard.VK_ESCAPE)
	sim.Tap(keyboard.VK_B)

	assert.Equal(t, 2, keys)
	assert.Equal(t, hook.Kind(0), d.Installed())
	assert.Equal(t, hook.Kind(0), sim.Installed())
	// The Escape press was still forwarded after the uninstall.
	assert.Equal(t, sim.Delivered(hook.KindKeyboard), sim.Forwarded(hook.KindKeyboard))

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Tap(keyboard.VK_C)
	assert.Equal(t, 3, keys)
}

func TestUninstallWithoutInstall(t *testing.T) {
	d, _ := newDispatcher(t)
	assert.NoError(t, d.Uninstall())
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
}

func TestInstallInvalidKind(t *testing.T) {
	d, _ := newDispatcher(t)
	assert.ErrorIs(t, d.Install(0), hook.ErrInvalidKind)
	assert.ErrorIs(t, d.Install(hook.Kind(8)), hook.ErrInvalidKind)
}

func TestInstallAfterClose(t *testing.T) {
	d, sim := newDispatcher(t)
	require.NoError(t, d.Install(hook.KindKeyboard))
	require.NoError(t, d.Close())

	assert.ErrorIs(t, d.Install(hook.KindKeyboard), hook.ErrClosed)
	assert.Equal(t, hook.Kind(0), sim.Installed())
}

func TestReinstallReplacesHook(t *testing.T) {
	d, sim := newDispatcher(t)
	keys := 0
	d.Keyboard.KeyDown.Subscribe(func(hook.KeyEvent) { keys++ })

	require.NoError(t, d.Install(hook.KindKeyboard))
	first := d.Registration(hook.KindKeyboard).Handle
	require.NoError(t, d.Install(hook.KindKeyboard))
	second := d.Registration(hook.KindKeyboard).Handle

	assert.NotEqual(t, first, second)
	assert.Equal(t, hook.KindKeyboard, sim.Installed())

	sim.Tap(keyboard.VK_A)
	assert.Equal(t, 1, keys, "the replaced hook must not deliver twice")
}

func TestInstallFailureIsPerKind(t *testing.T) {
	d, sim := newDispatcher(t)
	sim.RefuseInstall(hook.KindMouse)

	err := d.Install(hook.KindAll)
	require.Error(t, err)
	assert.ErrorIs(t, err, hook.ErrInstallFailed)

	ms := d.Registration(hook.KindMouse)
	assert.False(t, ms.Installed)
	assert.Zero(t, ms.Handle)
	assert.Equal(t, hook.KindKeyboard, d.Installed(), "keyboard must still be installed")
}

func TestHookBusy(t *testing.T) {
	sim := platform.NewSimulated()
	first := hook.New(sim, sim, hook.DefaultConfig(), nil)
	second := hook.New(sim, sim, hook.DefaultConfig(), nil)
	defer first.Close()
	defer second.Close()

	require.NoError(t, first.Install(hook.KindKeyboard))

	err := second.Install(hook.KindKeyboard)
	assert.ErrorIs(t, err, hook.ErrHookBusy)
	assert.ErrorIs(t, err, hook.ErrInstallFailed)

	require.NoError(t, second.Install(hook.KindMouse))
}

// -----------------------------------------------------------------------------
// Kind isolation and forwarding
// -----------------------------------------------------------------------------

func TestKeyboardOnly(t *testing.T) {
	d, sim := newDispatcher(t)
	keys, mice := 0, 0
	d.Keyboard.Key.Subscribe(func(hook.KeyEvent) { keys++ })
	d.Mouse.Any.Subscribe(func(hook.MouseEvent) { mice++ })

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Tap(keyboard.VK_A)
	sim.Click(hook.ButtonLeft)
	sim.MouseMove(10, 10)

	assert.Equal(t, 2, keys)
	assert.Zero(t, mice)
	assert.Zero(t, sim.Delivered(hook.KindMouse))
}

func TestMouseOnly(t *testing.T) {
	d, sim := newDispatcher(t)
	keys, mice := 0, 0
	d.Keyboard.Key.Subscribe(func(hook.KeyEvent) { keys++ })
	d.Mouse.Any.Subscribe(func(hook.MouseEvent) { mice++ })

	require.NoError(t, d.Install(hook.KindMouse))
	sim.Tap(keyboard.VK_A)
	sim.Click(hook.ButtonLeft)

	assert.Zero(t, keys)
	assert.Equal(t, 2, mice)
	assert.Zero(t, sim.Delivered(hook.KindKeyboard))
}

func TestBothKindsIndependent(t *testing.T) {
	d, sim := newDispatcher(t)
	keys, mice := 0, 0
	d.Keyboard.Key.Subscribe(func(hook.KeyEvent) { keys++ })
	d.Mouse.Any.Subscribe(func(hook.MouseEvent) { mice++ })

	require.NoError(t, d.Install(hook.KindAll))
	sim.Tap(keyboard.VK_A)
	sim.Click(hook.ButtonRight)

	assert.Equal(t, 2, keys)
	assert.Equal(t, 2, mice)
}

func TestEveryEventForwardedOnce(t *testing.T) {
	d, sim := newDispatcher(t)
	d.Keyboard.KeyDown.Subscribe(func(hook.KeyEvent) { panic("subscriber bug") })
	d.Mouse.Move.Subscribe(func(hook.MouseEvent) { panic("subscriber bug") })
	collectChars(d)

	require.NoError(t, d.Install(hook.KindAll))
	sim.Type("hello")
	sim.InjectInvalid(hook.KindKeyboard)
	sim.MouseMove(1, 2)
	sim.InjectInvalid(hook.KindMouse)
	sim.Wheel(120)

	assert.Equal(t, sim.Delivered(hook.KindKeyboard), sim.Forwarded(hook.KindKeyboard))
	assert.Equal(t, sim.Delivered(hook.KindMouse), sim.Forwarded(hook.KindMouse))
	assert.Equal(t, 11, sim.Forwarded(hook.KindKeyboard))
	assert.Equal(t, 3, sim.Forwarded(hook.KindMouse))
}

func TestInvalidCodeNotDispatched(t *testing.T) {
	d, sim := newDispatcher(t)
	events := 0
	d.Keyboard.Key.Subscribe(func(hook.KeyEvent) { events++ })
	d.Activity.Subscribe(func(hook.ActivityEvent) { events++ })

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.InjectInvalid(hook.KindKeyboard)

	assert.Zero(t, events)
	assert.Equal(t, 1, sim.Forwarded(hook.KindKeyboard))
}

func TestSubscriberPanicRecovered(t *testing.T) {
	var logs bytes.Buffer
	sim := platform.NewSimulated()
	reg := metrics.NewRegistry("test", "")
	cfg := hook.DefaultConfig()
	cfg.Metrics = metrics.NewKeysenseMetrics(reg)
	d := hook.New(sim, sim, cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	defer d.Close()

	ran := false
	d.Keyboard.KeyDown.Subscribe(func(hook.KeyEvent) { panic("boom") })
	d.Keyboard.KeyDown.Subscribe(func(hook.KeyEvent) { ran = true })

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.KeyDown(keyboard.VK_A)

	assert.True(t, ran)
	assert.Equal(t, 1, sim.Forwarded(hook.KindKeyboard))
	assert.Equal(t, uint64(1), cfg.Metrics.Panics.Value())
	assert.Contains(t, logs.String(), "recovered panic")
}

// -----------------------------------------------------------------------------
// Keyboard events
// -----------------------------------------------------------------------------

func TestKeyEvents(t *testing.T) {
	d, sim := newDispatcher(t)
	var downs, ups, all []hook.KeyEvent
	d.Keyboard.KeyDown.Subscribe(func(e hook.KeyEvent) { downs = append(downs, e) })
	d.Keyboard.KeyUp.Subscribe(func(e hook.KeyEvent) { ups = append(ups, e) })
	d.Keyboard.Key.Subscribe(func(e hook.KeyEvent) { all = append(all, e) })

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.KeyDown(keyboard.VK_LCONTROL)
	sim.Tap(keyboard.VK_C)
	sim.KeyUp(keyboard.VK_LCONTROL)

	require.Len(t, downs, 2)
	require.Len(t, ups, 2)
	assert.Len(t, all, 4)

	c := downs[1]
	assert.Equal(t, keyboard.VK_C, c.Key)
	assert.Equal(t, platform.ScanCode(keyboard.VK_C), c.ScanCode)
	assert.True(t, c.Down)
	assert.False(t, c.Up)
	assert.True(t, c.Modifiers.Control())
	assert.False(t, c.Modifiers.Shift())

	assert.True(t, ups[1].Up)
	assert.Equal(t, keyboard.VK_LCONTROL, ups[1].Key)
}

func TestEventClock(t *testing.T) {
	sim := platform.NewSimulated()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg := hook.DefaultConfig()
	cfg.Clock = func() time.Time { return at }
	d := hook.New(sim, sim, cfg, nil)
	defer d.Close()

	var got time.Time
	d.Keyboard.KeyDown.Subscribe(func(e hook.KeyEvent) { got = e.At })
	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.KeyDown(keyboard.VK_A)

	assert.Equal(t, at, got)
}

func TestCharEvents(t *testing.T) {
	d, sim := newDispatcher(t)
	chars := collectChars(d)

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Type("Hé! ça")

	assert.Equal(t, "Hé! ça", string(*chars))
}

func TestCharEventsDeadKeyAcrossShift(t *testing.T) {
	d, sim := newDispatcher(t)
	chars := collectChars(d)

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Tap(keyboard.VK_OEM_7)
	sim.TapShifted(keyboard.VK_E)

	assert.Equal(t, "É", string(*chars))
	assert.Equal(t, "É", sim.AppText())
}

func TestCharEventsDeadKeyAcrossArrow(t *testing.T) {
	sim := platform.NewSimulated()
	m := metrics.NewKeysenseMetrics(metrics.NewRegistry("test", ""))
	cfg := hook.DefaultConfig()
	cfg.Metrics = m
	d := hook.New(sim, sim, cfg, nil)
	t.Cleanup(func() { d.Close() })
	chars := collectChars(d)

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Tap(keyboard.VK_OEM_7)
	sim.Tap(keyboard.VK_LEFT)
	sim.Tap(keyboard.VK_E)

	assert.Equal(t, "é", string(*chars))
	assert.Equal(t, "é", sim.AppText())
	assert.Equal(t, uint64(1), m.DeadKeys.Value())
}

func TestCharEventsTwoDeadKeys(t *testing.T) {
	d, sim := newDispatcher(t)
	chars := collectChars(d)

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Tap(keyboard.VK_OEM_7)
	sim.Tap(keyboard.VK_OEM_3)
	sim.Tap(keyboard.VK_E)

	assert.Equal(t, sim.AppText(), string(*chars))
	assert.Equal(t, "'`e", string(*chars))
}

func TestCharEventsNonComposable(t *testing.T) {
	d, sim := newDispatcher(t)
	chars := collectChars(d)

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Tap(keyboard.VK_OEM_3)
	sim.Tap(keyboard.VK_X)

	assert.Equal(t, "x", string(*chars))
	assert.Equal(t, "`x", sim.AppText())
}

func TestCharEventsOnlyOnKeyDown(t *testing.T) {
	d, sim := newDispatcher(t)
	var events []hook.CharEvent
	d.Keyboard.Char.Subscribe(func(e hook.CharEvent) { events = append(events, e) })

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.KeyDown(keyboard.VK_Z)
	require.Len(t, events, 1)
	sim.KeyUp(keyboard.VK_Z)
	assert.Len(t, events, 1)
	assert.Equal(t, 'z', events[0].Char)
}

func TestNoTranslationWithoutCharSubscriber(t *testing.T) {
	sim := platform.NewSimulated()
	cfg := hook.DefaultConfig()
	cfg.Metrics = metrics.NewKeysenseMetrics(metrics.NewRegistry("test", ""))
	d := hook.New(sim, sim, cfg, nil)
	defer d.Close()

	keys := 0
	d.Keyboard.KeyDown.Subscribe(func(hook.KeyEvent) { keys++ })
	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Type("abc")

	assert.Equal(t, 3, keys)
	assert.Zero(t, cfg.Metrics.CharsCommitted.Value())

	tok := d.Keyboard.Char.Subscribe(func(hook.CharEvent) {})
	sim.Type("de")
	assert.Equal(t, uint64(2), cfg.Metrics.CharsCommitted.Value())

	d.Keyboard.Char.Unsubscribe(tok)
	sim.Type("f")
	assert.Equal(t, uint64(2), cfg.Metrics.CharsCommitted.Value())
}

func TestPacketCharacters(t *testing.T) {
	d, sim := newDispatcher(t)
	chars := collectChars(d)

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Packet('中')
	sim.Packet('😀')
	sim.Packet(0)

	assert.Equal(t, "中😀", string(*chars))
}

func TestExplicitLayout(t *testing.T) {
	sim := platform.NewSimulated()
	cfg := hook.DefaultConfig()
	cfg.Layout = keyboard.Layout(0x0407)
	d := hook.New(sim, sim, cfg, nil)
	defer d.Close()
	chars := collectChars(d)

	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.Tap(keyboard.VK_A)

	assert.Empty(t, *chars, "the simulated platform only knows one layout")
}

// -----------------------------------------------------------------------------
// Mouse events
// -----------------------------------------------------------------------------

func TestMouseEvents(t *testing.T) {
	d, sim := newDispatcher(t)

	var moves, downs, ups, x2, wheels, doubles []hook.MouseEvent
	d.Mouse.Move.Subscribe(func(e hook.MouseEvent) { moves = append(moves, e) })
	d.Mouse.ButtonDown(hook.ButtonLeft).Subscribe(func(e hook.MouseEvent) { downs = append(downs, e) })
	d.Mouse.ButtonUp(hook.ButtonLeft).Subscribe(func(e hook.MouseEvent) { ups = append(ups, e) })
	d.Mouse.ButtonDown(hook.ButtonX2).Subscribe(func(e hook.MouseEvent) { x2 = append(x2, e) })
	d.Mouse.Wheel.Subscribe(func(e hook.MouseEvent) { wheels = append(wheels, e) })
	d.Mouse.DoubleClick.Subscribe(func(e hook.MouseEvent) { doubles = append(doubles, e) })

	require.NoError(t, d.Install(hook.KindMouse))
	sim.MouseMove(640, 480)
	sim.Click(hook.ButtonLeft)
	sim.Click(hook.ButtonRight)
	sim.MouseDown(hook.ButtonX2)
	sim.Wheel(-120)
	sim.HWheel(240)
	sim.DoubleClick(hook.ButtonMiddle)

	require.Len(t, moves, 1)
	assert.Equal(t, int32(640), moves[0].X)
	assert.Equal(t, int32(480), moves[0].Y)

	require.Len(t, downs, 1)
	assert.Equal(t, hook.ButtonLeft, downs[0].Button)
	assert.Equal(t, int32(640), downs[0].X)
	assert.Len(t, ups, 1)

	require.Len(t, x2, 1)
	assert.Equal(t, hook.ButtonX2, x2[0].Button)

	require.Len(t, wheels, 2)
	assert.Equal(t, int16(-120), wheels[0].WheelDelta)
	assert.Equal(t, hook.MouseWheel, wheels[0].Action)
	assert.Equal(t, int16(240), wheels[1].WheelDelta)
	assert.Equal(t, hook.MouseHWheel, wheels[1].Action)

	require.Len(t, doubles, 1)
	assert.Equal(t, hook.ButtonMiddle, doubles[0].Button)
}

func TestMouseInvalidButtonRegistry(t *testing.T) {
	d, _ := newDispatcher(t)
	r := d.Mouse.ButtonDown(hook.MouseButton(200))
	require.NotNil(t, r)
	assert.Same(t, d.Mouse.ButtonDown(hook.ButtonNone), r)
}

// -----------------------------------------------------------------------------
// Activity and metrics
// -----------------------------------------------------------------------------

func TestActivityEvents(t *testing.T) {
	d, sim := newDispatcher(t)
	var kinds []hook.Kind
	d.Activity.Subscribe(func(e hook.ActivityEvent) { kinds = append(kinds, e.Kind) })

	require.NoError(t, d.Install(hook.KindAll))
	sim.Tap(keyboard.VK_A)
	sim.MouseMove(3, 4)

	assert.Equal(t, []hook.Kind{hook.KindKeyboard, hook.KindKeyboard, hook.KindMouse}, kinds)
}

func TestMetricsRecorded(t *testing.T) {
	sim := platform.NewSimulated()
	m := metrics.NewKeysenseMetrics(metrics.NewRegistry("test", ""))
	cfg := hook.DefaultConfig()
	cfg.Metrics = m
	d := hook.New(sim, sim, cfg, nil)
	collectChars(d)

	require.NoError(t, d.Install(hook.KindAll))
	assert.Equal(t, int64(1), m.KeyboardHookInstalled.Value())
	assert.Equal(t, int64(1), m.MouseHookInstalled.Value())

	sim.Type("é")
	sim.MouseMove(1, 1)

	assert.Equal(t, uint64(4), m.KeyboardEvents.Value())
	assert.Equal(t, uint64(1), m.MouseEvents.Value())
	assert.Equal(t, uint64(1), m.CharsCommitted.Value())
	assert.Equal(t, uint64(1), m.DeadKeys.Value())
	assert.Equal(t, uint64(4), m.KeyboardCallback.Count())

	require.NoError(t, d.Close())
	assert.Zero(t, m.KeyboardHookInstalled.Value())
	assert.Zero(t, m.MouseHookInstalled.Value())
}

func TestSlowCallbackWarning(t *testing.T) {
	var logs bytes.Buffer
	sim := platform.NewSimulated()
	cfg := hook.DefaultConfig()
	cfg.SlowCallback = time.Millisecond
	cfg.Metrics = metrics.NewKeysenseMetrics(metrics.NewRegistry("test", ""))
	d := hook.New(sim, sim, cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	defer d.Close()

	d.Keyboard.KeyDown.Subscribe(func(hook.KeyEvent) { time.Sleep(5 * time.Millisecond) })
	require.NoError(t, d.Install(hook.KindKeyboard))
	sim.KeyDown(keyboard.VK_A)

	assert.Equal(t, uint64(1), cfg.Metrics.SlowCallbacks.Value())
	assert.Contains(t, logs.String(), "slow hook callback")
}
