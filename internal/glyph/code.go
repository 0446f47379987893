// Package glyph resolves glyph codes to intrinsic widths and turns widths into
// flex weights.
//
// A glyph code is the canonical uppercase form of the character shown. Each
// code maps to an SVG asset <dir>/<asset>.svg whose width sets the glyph's
// share of its word.
package glyph

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// BaselineWidth is the width of the reference glyph. A glyph exactly this wide
// has flex weight 1.
const BaselineWidth = 17.21

var upper = cases.Upper(language.Vietnamese)

// Canonical returns the code for a character. Letters are uppercased with
// Vietnamese rules so precomposed forms like ấ map to Ấ.
func Canonical(r rune) string {
	return upper.String(string(r))
}

// Class groups codes the way the assets are organised.
type Class int

const (
	ClassUnknown Class = iota
	ClassLetter
	ClassNumber
	ClassSymbol
)

func (c Class) String() string {
	switch c {
	case ClassLetter:
		return "letter"
	case ClassNumber:
		return "number"
	case ClassSymbol:
		return "symbol"
	default:
		return "unknown"
	}
}

// symbolAssets names the asset file for each renderable symbol. Asset names
// predate this package and are kept as shipped, including the misspelling of
// exclamation and the trailing space after the asterisk.
var symbolAssets = map[string]string{
	"!":  "exclaimation",
	"@":  "at",
	"#":  "#",
	"$":  "dollar",
	"%":  "percent",
	"^":  "caret",
	"&":  "ampersand",
	"*":  "* ",
	"(":  "l-parentheses",
	")":  "r-parentheses",
	"_":  "underscore",
	"+":  "plus",
	"?":  "questionmark",
	":":  "colon",
	">":  "greaterthan",
	"<":  "lessthan",
	"\"": "quote",
	".":  "period",
	"-":  "dash",
	"/":  "slash",
	"\\": "backslash",
	"=":  "equals",
	"'":  "singlequote",
}

// Symbols returns the renderable symbol codes.
func Symbols() []string {
	out := make([]string, 0, len(symbolAssets))
	for code := range symbolAssets {
		out = append(out, code)
	}
	return out
}

// Classify reports the class of a canonical code.
func Classify(code string) Class {
	if _, ok := symbolAssets[code]; ok {
		return ClassSymbol
	}
	rs := []rune(code)
	if len(rs) != 1 {
		return ClassUnknown
	}
	switch r := rs[0]; {
	case r >= '0' && r <= '9':
		return ClassNumber
	case strings.ToUpper(string(r)) == string(r) && strings.ToLower(string(r)) != string(r):
		return ClassLetter
	}
	return ClassUnknown
}

// AssetName returns the file stem of the asset for code. Letters and digits
// are their own name.
func AssetName(code string) string {
	if name, ok := symbolAssets[code]; ok {
		return name
	}
	return code
}

// Weight converts an asset width to a flex weight rounded to two decimals.
func Weight(width float64) float64 {
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return 0
	}
	return math.Round(width/BaselineWidth*100) / 100
}
