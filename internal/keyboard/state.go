package keyboard

const (
	// KeyDownBit is set in a KeyState entry while the key is held.
	KeyDownBit byte = 0x80
	// KeyToggledBit is set in a KeyState entry while a lock key is on.
	KeyToggledBit byte = 0x01
)

// KeyState is a snapshot of the 256-entry table returned by GetKeyboardState.
type KeyState [256]byte

// IsDown reports whether vk was held when the snapshot was taken. The generic
// Shift, Control and Menu keys are reported down when either side is.
func (s *KeyState) IsDown(vk VirtualKey) bool {
	switch vk {
	case VK_SHIFT:
		return s.down(VK_SHIFT) || s.down(VK_LSHIFT) || s.down(VK_RSHIFT)
	case VK_CONTROL:
		return s.down(VK_CONTROL) || s.down(VK_LCONTROL) || s.down(VK_RCONTROL)
	case VK_MENU:
		return s.down(VK_MENU) || s.down(VK_LMENU) || s.down(VK_RMENU)
	}
	return s.down(vk)
}

// IsToggled reports whether a lock key such as CapsLock was on. Ordinary keys
// report false.
func (s *KeyState) IsToggled(vk VirtualKey) bool {
	if vk > 0xFF {
		return false
	}
	return s[vk]&KeyToggledBit != 0
}

// AreAllDown reports whether every key in keys was held.
func (s *KeyState) AreAllDown(keys ...VirtualKey) bool {
	for _, vk := range keys {
		if !s.IsDown(vk) {
			return false
		}
	}
	return true
}

// SetDown sets or clears the held bit of vk, keeping its toggle bit.
func (s *KeyState) SetDown(vk VirtualKey, down bool) {
	if vk > 0xFF {
		return
	}
	if down {
		s[vk] |= KeyDownBit
	} else {
		s[vk] &^= KeyDownBit
	}
}

// SetToggled sets or clears the toggle bit of vk, keeping its held bit.
func (s *KeyState) SetToggled(vk VirtualKey, on bool) {
	if vk > 0xFF {
		return
	}
	if on {
		s[vk] |= KeyToggledBit
	} else {
		s[vk] &^= KeyToggledBit
	}
}

func (s *KeyState) down(vk VirtualKey) bool {
	if vk > 0xFF {
		return false
	}
	return s[vk]&KeyDownBit != 0
}
