package main

import (
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"kinetype/internal/layout"
)

// wordCells is one word laid out in terminal cells.
type wordCells struct {
	Text    string
	Current bool
}

// layoutRow splits width cells across the words by flex, then each word's
// cells across its glyphs by glyph flex.
func layoutRow(words []layout.WordView, width int) []wordCells {
	weights := make([]float64, len(words))
	for i, w := range words {
		weights[i] = w.Flex
	}
	cols := allocate(width, weights)

	out := make([]wordCells, len(words))
	for i, w := range words {
		out[i] = wordCells{Text: layoutWord(w, cols[i]), Current: w.Current}
	}
	return out
}

func layoutWord(w layout.WordView, cols int) string {
	if cols <= 0 {
		return ""
	}
	if len(w.Glyphs) == 0 {
		return strings.Repeat(" ", cols)
	}
	weights := make([]float64, len(w.Glyphs))
	for i, g := range w.Glyphs {
		weights[i] = g.Flex
	}
	gcols := allocate(cols, weights)

	var b strings.Builder
	for i, g := range w.Glyphs {
		b.WriteString(center(g.Code, gcols[i]))
	}
	return b.String()
}

// center pads s to exactly cols cells, truncating when it does not fit.
func center(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, cols, "")
	pad := cols - runewidth.StringWidth(s)
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

// allocate divides total cells in proportion to weights using the largest
// remainder method. Non-positive weights get nothing.
func allocate(total int, weights []float64) []int {
	out := make([]int, len(weights))
	var sum float64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if total <= 0 || sum == 0 {
		return out
	}

	type remainder struct {
		i    int
		frac float64
	}
	rems := make([]remainder, 0, len(weights))
	used := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		exact := float64(total) * w / sum
		out[i] = int(exact)
		used += out[i]
		rems = append(rems, remainder{i: i, frac: exact - float64(out[i])})
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := 0; used < total; k++ {
		out[rems[k%len(rems)].i]++
		used++
	}
	return out
}

// plainRow joins a laid out row without styling.
func plainRow(row []wordCells) string {
	var b strings.Builder
	for _, w := range row {
		b.WriteString(w.Text)
	}
	return b.String()
}
