package ime

import "unicode"

// Special key codes. They match the legacy DOM keyCodes so key events from any
// platform layer can be normalised to the same values.
const (
	KeyBackspace uint16 = 8
	KeyEnter     uint16 = 13
	KeySpace     uint16 = 32
)

// Key represents a key event from the platform layer.
type Key struct {
	// Code identifies non-character keys (KeySpace, KeyBackspace,
	// KeyEnter). Zero for ordinary character keys.
	Code uint16

	// Char is the character the key produces, if any.
	Char rune

	// Modifiers indicates which modifier keys are held.
	Modifiers Modifiers
}

// NewKey creates a character Key. Space, backspace and enter characters get
// their key codes.
func NewKey(char rune) Key {
	k := Key{Char: char}
	switch char {
	case ' ':
		k.Code = KeySpace
	case '\b':
		k.Code = KeyBackspace
	case '\r', '\n':
		k.Code = KeyEnter
	}
	return k
}

// NewKeyWithCode creates a Key with explicit keycode and character.
func NewKeyWithCode(code uint16, char rune) Key {
	return Key{Code: code, Char: char}
}

// IsSpace reports whether k is the word separator.
func (k Key) IsSpace() bool { return k.Code == KeySpace }

// IsBackspace reports whether k deletes the last glyph.
func (k Key) IsBackspace() bool { return k.Code == KeyBackspace }

// IsEnter reports whether k requests a reset.
func (k Key) IsEnter() bool { return k.Code == KeyEnter }

// Shortcut reports whether k is bound to the host (Ctrl, Alt or Meta held)
// and should not produce a glyph.
func (k Key) Shortcut() bool {
	return k.Modifiers&(ModControl|ModAlt|ModMeta) != 0
}

// Printable reports whether k carries a character to insert.
func (k Key) Printable() bool {
	return k.Code == 0 && k.Char != 0 && unicode.IsPrint(k.Char) && !k.Shortcut()
}

// Modifiers represents modifier key state.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta // Command on macOS, Windows key on Windows
)
