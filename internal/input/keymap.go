package input

import (
	"strings"

	"kinetype/internal/glyph"
)

// KeyEntry is one renderable key.
type KeyEntry struct {
	Code  string
	Asset string
	Class glyph.Class
	Shift bool // produced with Shift on a US layout
}

// shifted lists the symbols that need Shift on a US layout.
const shifted = `!@#$%^&*()_+?:><"`

// KeyMap lists every character the raw keyboard can render: A-Z, 0-9 and the
// symbol set. Keys outside it are ignored in raw mode.
var KeyMap = buildKeyMap()

func buildKeyMap() map[string]KeyEntry {
	m := make(map[string]KeyEntry, 26+10+len(glyph.Symbols()))
	for r := 'A'; r <= 'Z'; r++ {
		code := string(r)
		m[code] = KeyEntry{Code: code, Asset: code, Class: glyph.ClassLetter}
	}
	for r := '0'; r <= '9'; r++ {
		code := string(r)
		m[code] = KeyEntry{Code: code, Asset: code, Class: glyph.ClassNumber}
	}
	for _, code := range glyph.Symbols() {
		m[code] = KeyEntry{
			Code:  code,
			Asset: glyph.AssetName(code),
			Class: glyph.ClassSymbol,
			Shift: strings.Contains(shifted, code),
		}
	}
	return m
}

// Renderable reports whether code is in KeyMap.
func Renderable(code string) bool {
	_, ok := KeyMap[code]
	return ok
}
