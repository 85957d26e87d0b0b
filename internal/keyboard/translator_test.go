package keyboard_test

import (
	"errors"
	"testing"
	"unicode/utf16"

	"keysense/internal/keyboard"
	"keysense/internal/platform"
)

// press translates vk the way the hook does and then lets the simulated
// focused window consume the same keystroke.
func press(sim *platform.Simulated, tr *keyboard.Translator, c *keyboard.Carry, vk keyboard.VirtualKey) []rune {
	got := tr.TranslateActive(c, vk, platform.ScanCode(vk), 0)
	sim.ApplicationTranslate(vk)
	return got
}

func setup() (*platform.Simulated, *keyboard.Translator, *keyboard.Carry) {
	sim := platform.NewSimulated()
	return sim, keyboard.NewTranslator(sim), &keyboard.Carry{}
}

func expectRunes(t *testing.T, got []rune, want string) {
	t.Helper()
	if string(got) != want {
		t.Errorf("expected %q, got %q", want, string(got))
	}
}

// =============================================================================
// Plain keys
// =============================================================================

func TestTranslateLetter(t *testing.T) {
	sim, tr, c := setup()
	expectRunes(t, press(sim, tr, c, keyboard.VK_A), "a")
}

func TestTranslateKeys(t *testing.T) {
	tests := []struct {
		name  string
		vk    keyboard.VirtualKey
		shift bool
		caps  bool
		want  string
	}{
		{"lower", keyboard.VK_Q, false, false, "q"},
		{"shift", keyboard.VK_Q, true, false, "Q"},
		{"caps", keyboard.VK_Q, false, true, "Q"},
		{"caps and shift", keyboard.VK_Q, true, true, "q"},
		{"digit", keyboard.VK_0 + 1, false, false, "1"},
		{"shifted digit", keyboard.VK_0 + 1, true, false, "!"},
		{"caps leaves digits", keyboard.VK_0 + 1, false, true, "1"},
		{"punctuation", keyboard.VK_OEM_2, true, false, "?"},
		{"space", keyboard.VK_SPACE, false, false, " "},
		{"function key", keyboard.VK_F1, false, false, ""},
		{"arrow", keyboard.VK_LEFT, false, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, tr, c := setup()
			sim.SetKeyDown(keyboard.VK_LSHIFT, tt.shift)
			sim.SetCapsLock(tt.caps)
			expectRunes(t, press(sim, tr, c, tt.vk), tt.want)
		})
	}
}

func TestTranslateShiftMissingFromSnapshot(t *testing.T) {
	sim, tr, c := setup()
	sim.SetStaleState(true)
	sim.SetKeyDown(keyboard.VK_RSHIFT, true)

	expectRunes(t, press(sim, tr, c, keyboard.VK_A), "A")
}

func TestTranslateCapsLockMissingFromSnapshot(t *testing.T) {
	sim, tr, c := setup()
	sim.SetStaleState(true)
	sim.SetCapsLock(true)

	expectRunes(t, press(sim, tr, c, keyboard.VK_A), "A")
}

func TestTranslateCapsLockAndShiftCancel(t *testing.T) {
	sim, tr, c := setup()
	sim.SetStaleState(true)
	sim.SetCapsLock(true)
	sim.SetKeyDown(keyboard.VK_LSHIFT, true)

	expectRunes(t, press(sim, tr, c, keyboard.VK_A), "a")
}

func TestTranslateKeyboardStateFailure(t *testing.T) {
	sim, tr, c := setup()
	sim.FailKeyboardState(errors.New("access denied"))
	sim.SetKeyDown(keyboard.VK_LSHIFT, true)

	// The live modifier check still applies to the zeroed table.
	expectRunes(t, press(sim, tr, c, keyboard.VK_B), "B")
}

func TestTranslateUnknownLayout(t *testing.T) {
	sim, tr, c := setup()
	got := tr.Translate(c, keyboard.VK_A, platform.ScanCode(keyboard.VK_A), 0, keyboard.Layout(0x04090409))
	if len(got) != 0 {
		t.Errorf("expected no characters for an unknown layout, got %q", string(got))
	}
	if sim.PendingDeadKey() {
		t.Error("native buffer should be untouched")
	}
}

func TestActiveLayout(t *testing.T) {
	_, tr, _ := setup()
	if got := tr.ActiveLayout(); got != platform.LayoutUSInternational {
		t.Errorf("expected layout %#x, got %#x", platform.LayoutUSInternational, got)
	}
}

// =============================================================================
// Dead keys
// =============================================================================

func TestDeadKeyComposes(t *testing.T) {
	sim, tr, c := setup()

	expectRunes(t, press(sim, tr, c, keyboard.VK_OEM_7), "")
	if !c.PendingDeadKey() {
		t.Fatal("carry should hold the dead key")
	}

	expectRunes(t, press(sim, tr, c, keyboard.VK_E), "é")
	if c.PendingDeadKey() {
		t.Error("dead flag should be cleared after composition")
	}
	if got := sim.AppText(); got != "é" {
		t.Errorf("focused window should also compose, got %q", got)
	}
}

func TestDeadKeyShiftedAccent(t *testing.T) {
	sim, tr, c := setup()

	// Shift is held only for the dead key; the carried snapshot keeps it.
	sim.SetKeyDown(keyboard.VK_LSHIFT, true)
	expectRunes(t, press(sim, tr, c, keyboard.VK_OEM_7), "")
	sim.SetKeyDown(keyboard.VK_LSHIFT, false)

	expectRunes(t, press(sim, tr, c, keyboard.VK_U), "ü")
	if got := sim.AppText(); got != "ü" {
		t.Errorf("expected focused window text %q, got %q", "ü", got)
	}
}

func TestDeadKeyUpperCaseBase(t *testing.T) {
	sim, tr, c := setup()

	expectRunes(t, press(sim, tr, c, keyboard.VK_OEM_3), "")
	sim.SetKeyDown(keyboard.VK_LSHIFT, true)
	expectRunes(t, press(sim, tr, c, keyboard.VK_A), "À")
}

func TestDeadKeyNotComposable(t *testing.T) {
	sim, tr, c := setup()

	expectRunes(t, press(sim, tr, c, keyboard.VK_OEM_7), "")
	expectRunes(t, press(sim, tr, c, keyboard.VK_Q), "q")

	// The window receives the accent followed by the base character.
	if got := sim.AppText(); got != "'q" {
		t.Errorf("expected focused window text %q, got %q", "'q", got)
	}
}

func TestDeadKeyThenSpace(t *testing.T) {
	sim, tr, c := setup()

	expectRunes(t, press(sim, tr, c, keyboard.VK_OEM_3), "")
	expectRunes(t, press(sim, tr, c, keyboard.VK_SPACE), "`")
}

func TestDeadKeySequence(t *testing.T) {
	sim, tr, c := setup()

	var out []rune
	for _, vk := range []keyboard.VirtualKey{
		keyboard.VK_OEM_7, keyboard.VK_E,
		keyboard.VK_T,
		keyboard.VK_OEM_7, keyboard.VK_E,
	} {
		out = append(out, press(sim, tr, c, vk)...)
	}
	expectRunes(t, out, "été")
	if got := sim.AppText(); got != "été" {
		t.Errorf("expected focused window text %q, got %q", "été", got)
	}
}

func TestDeadKeyDoesNotLeakIntoNextKey(t *testing.T) {
	sim, tr, c := setup()

	press(sim, tr, c, keyboard.VK_OEM_7)
	press(sim, tr, c, keyboard.VK_E)
	expectRunes(t, press(sim, tr, c, keyboard.VK_E), "e")
	if sim.PendingDeadKey() {
		t.Error("native buffer should be empty once the window consumed the composition")
	}
}

func TestDeadKeySurvivesNavigationKey(t *testing.T) {
	for _, between := range []keyboard.VirtualKey{keyboard.VK_LEFT, keyboard.VK_F1} {
		t.Run(between.String(), func(t *testing.T) {
			sim, tr, c := setup()

			var out []rune
			for _, vk := range []keyboard.VirtualKey{keyboard.VK_OEM_7, between, keyboard.VK_E} {
				out = append(out, press(sim, tr, c, vk)...)
			}
			expectRunes(t, out, "é")
			if got := sim.AppText(); got != "é" {
				t.Errorf("focused window should receive %q, got %q", "é", got)
			}
			if sim.PendingDeadKey() || c.PendingDeadKey() {
				t.Error("nothing should be pending after the composition")
			}
		})
	}
}

func TestDeadKeyPendingAcrossNavigationKey(t *testing.T) {
	sim, tr, c := setup()

	press(sim, tr, c, keyboard.VK_OEM_3)
	expectRunes(t, press(sim, tr, c, keyboard.VK_DOWN), "")
	if !c.PendingDeadKey() || c.LastKey() != keyboard.VK_OEM_3 {
		t.Errorf("dead key should stay carried, got %s pending=%v", c.LastKey(), c.PendingDeadKey())
	}
	if !sim.PendingDeadKey() {
		t.Error("focused window should still hold the dead key")
	}
}

func TestDeadKeyFollowedByDeadKey(t *testing.T) {
	sim, tr, c := setup()

	var out []rune
	for _, vk := range []keyboard.VirtualKey{keyboard.VK_OEM_7, keyboard.VK_OEM_3, keyboard.VK_E} {
		out = append(out, press(sim, tr, c, vk)...)
	}
	expectRunes(t, out, "'`e")
	if got := sim.AppText(); got != "'`e" {
		t.Errorf("expected focused window text %q, got %q", "'`e", got)
	}
}

func TestDeadKeyTwice(t *testing.T) {
	sim, tr, c := setup()

	press(sim, tr, c, keyboard.VK_OEM_7)
	got := press(sim, tr, c, keyboard.VK_OEM_7)
	if string(got) != sim.AppText() {
		t.Errorf("hook committed %q, focused window received %q", string(got), sim.AppText())
	}
	if c.PendingDeadKey() || sim.PendingDeadKey() {
		t.Error("a repeated dead key commits and clears the buffer")
	}
}

// fixedNative returns the same translation for every key. A non-zero n
// overrides the reported length.
type fixedNative struct {
	out   []uint16
	n     int
	calls *int
}

func (f fixedNative) AsyncKeyDown(keyboard.VirtualKey) bool  { return false }
func (f fixedNative) KeyboardState(*keyboard.KeyState) error { return nil }
func (f fixedNative) KeyToggled(keyboard.VirtualKey) bool    { return false }
func (f fixedNative) ForegroundThreadID() uint32             { return 1 }
func (f fixedNative) KeyboardLayout(uint32) keyboard.Layout  { return 1 }
func (f fixedNative) ToUnicodeEx(_ keyboard.VirtualKey, _ uint32, _ *keyboard.KeyState, buf []uint16, _ uint32, _ keyboard.Layout) int {
	if f.calls != nil {
		*f.calls++
	}
	written := copy(buf, f.out)
	if f.n != 0 {
		return f.n
	}
	return written
}

func TestTranslateKeepsSurrogatePairs(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"pair first", "😀a", "😀a"},
		{"pair second", "a😀b", "a😀"},
		{"two pairs", "😀😁😂", "😀😁"},
		{"three plain", "abc", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := keyboard.NewTranslator(fixedNative{out: utf16.Encode([]rune(tt.out))})
			expectRunes(t, tr.TranslateActive(&keyboard.Carry{}, keyboard.VK_A, 0, 0), tt.want)
		})
	}
}

func TestTranslateUnexpectedLength(t *testing.T) {
	tr := keyboard.NewTranslator(fixedNative{out: []uint16{'a'}, n: 500})
	got := tr.TranslateActive(&keyboard.Carry{}, keyboard.VK_A, 0, 0)
	if len(got) != 0 {
		t.Errorf("an impossible length means no character, got %q", string(got))
	}
}

func TestDrainIsBounded(t *testing.T) {
	calls := 0
	tr := keyboard.NewTranslator(fixedNative{n: -1, calls: &calls})
	c := &keyboard.Carry{}

	expectRunes(t, tr.TranslateActive(c, keyboard.VK_OEM_7, 0, 0), "")
	if !c.PendingDeadKey() {
		t.Error("a negative result is a dead key")
	}
	if calls > 16 {
		t.Errorf("drain should give up, made %d native calls", calls)
	}
}

// =============================================================================
// Carry
// =============================================================================

func TestCarryOverwrittenEveryCall(t *testing.T) {
	sim, tr, c := setup()

	press(sim, tr, c, keyboard.VK_A)
	if c.LastKey() != keyboard.VK_A {
		t.Errorf("expected last key A, got %s", c.LastKey())
	}

	// A key without output still replaces the carried key.
	press(sim, tr, c, keyboard.VK_F1)
	if c.LastKey() != keyboard.VK_F1 {
		t.Errorf("expected last key F1, got %s", c.LastKey())
	}

	press(sim, tr, c, keyboard.VK_OEM_7)
	press(sim, tr, c, keyboard.VK_E)
	if c.LastKey() != keyboard.VK_E || c.PendingDeadKey() {
		t.Errorf("composition should replace the dead key, got %s pending=%v", c.LastKey(), c.PendingDeadKey())
	}
}

func TestCarryReset(t *testing.T) {
	sim, tr, c := setup()

	press(sim, tr, c, keyboard.VK_OEM_7)
	c.Reset()
	if c.PendingDeadKey() || c.LastKey() != 0 {
		t.Error("Reset should forget the previous keystroke")
	}
}

func TestIndependentCarries(t *testing.T) {
	sim, tr, _ := setup()
	a, b := &keyboard.Carry{}, &keyboard.Carry{}

	press(sim, tr, a, keyboard.VK_OEM_7)
	if b.PendingDeadKey() {
		t.Error("carries must not share state")
	}
}
