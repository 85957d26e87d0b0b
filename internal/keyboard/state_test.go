package keyboard

import "testing"

type fakeProber map[VirtualKey]bool

func (f fakeProber) AsyncKeyDown(vk VirtualKey) bool { return f[vk] }

func TestResolveModifiers(t *testing.T) {
	tests := []struct {
		name string
		down []VirtualKey
		want Modifiers
	}{
		{"none", nil, 0},
		{"generic shift", []VirtualKey{VK_SHIFT}, ModShift},
		{"left shift", []VirtualKey{VK_LSHIFT}, ModShift},
		{"right shift", []VirtualKey{VK_RSHIFT}, ModShift},
		{"right control", []VirtualKey{VK_RCONTROL}, ModControl},
		{"left alt", []VirtualKey{VK_LMENU}, ModAlt},
		{"all", []VirtualKey{VK_LCONTROL, VK_RSHIFT, VK_MENU}, ModControl | ModShift | ModAlt},
		{"letters ignored", []VirtualKey{VK_A, VK_Z}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fakeProber{}
			for _, vk := range tt.down {
				p[vk] = true
			}
			if got := ResolveModifiers(p); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestModifiersString(t *testing.T) {
	if got := Modifiers(0).String(); got != "none" {
		t.Errorf("expected none, got %q", got)
	}
	if got := (ModControl | ModAlt).String(); got != "ctrl+alt" {
		t.Errorf("expected ctrl+alt, got %q", got)
	}
	m := ModShift
	if !m.Shift() || m.Control() || m.Alt() {
		t.Errorf("unexpected accessors for %s", m)
	}
}

func TestKeyStateDownAndToggled(t *testing.T) {
	var s KeyState
	s.SetDown(VK_RSHIFT, true)
	s.SetToggled(VK_CAPITAL, true)

	if !s.IsDown(VK_SHIFT) {
		t.Error("generic shift should follow the right shift key")
	}
	if s.IsDown(VK_LSHIFT) {
		t.Error("left shift should not be down")
	}
	if !s.IsToggled(VK_CAPITAL) {
		t.Error("capslock should be toggled")
	}
	if s.IsDown(VK_CAPITAL) {
		t.Error("toggling must not set the held bit")
	}

	s.SetDown(VK_CAPITAL, true)
	s.SetDown(VK_CAPITAL, false)
	if !s.IsToggled(VK_CAPITAL) {
		t.Error("releasing must keep the toggle bit")
	}
}

func TestKeyStateAreAllDown(t *testing.T) {
	var s KeyState
	s.SetDown(VK_LCONTROL, true)
	s.SetDown(VK_C, true)

	if !s.AreAllDown(VK_CONTROL, VK_C) {
		t.Error("expected ctrl+c down")
	}
	if s.AreAllDown(VK_CONTROL, VK_MENU, VK_C) {
		t.Error("alt is not down")
	}
	if !s.AreAllDown() {
		t.Error("empty set is trivially down")
	}
}

func TestKeyStateOutOfRange(t *testing.T) {
	var s KeyState
	s.SetDown(0x1FF, true)
	s.SetToggled(0x1FF, true)
	if s.IsDown(0x1FF) || s.IsToggled(0x1FF) {
		t.Error("keys above 0xFF must be ignored")
	}
}

func TestVirtualKeyHelpers(t *testing.T) {
	if vk, ok := Letter('k'); !ok || vk != VK_A+10 {
		t.Errorf("Letter('k') = %s, %v", vk, ok)
	}
	if _, ok := Letter('é'); ok {
		t.Error("accented letters have no virtual key")
	}

	for _, vk := range []VirtualKey{VK_SHIFT, VK_RMENU, VK_LWIN, VK_CAPITAL} {
		if !vk.IsModifier() {
			t.Errorf("%s should be a modifier", vk)
		}
	}
	for _, vk := range []VirtualKey{VK_A, VK_SPACE, VK_OEM_7, VK_PACKET} {
		if vk.IsModifier() {
			t.Errorf("%s should not be a modifier", vk)
		}
	}

	names := map[VirtualKey]string{
		VK_A:      "A",
		VK_0 + 7:  "7",
		VK_F1 + 4: "F5",
		VK_RETURN: "ENTER",
		0xFF:      "VK_0xFF",
	}
	for vk, want := range names {
		if got := vk.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
