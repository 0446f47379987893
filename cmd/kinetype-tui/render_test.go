package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinetype/internal/layout"
)

func TestAllocate(t *testing.T) {
	tests := []struct {
		total   int
		weights []float64
		want    []int
	}{
		{10, []float64{1, 1}, []int{5, 5}},
		{10, []float64{1, 2, 2}, []int{2, 4, 4}},
		{7, []float64{1, 1}, []int{4, 3}},
		{9, []float64{0, 3}, []int{0, 9}},
		{0, []float64{1}, []int{0}},
		{5, nil, []int{}},
	}
	for _, tt := range tests {
		got := allocate(tt.total, tt.weights)
		assert.Equal(t, tt.want, got, "allocate(%d, %v)", tt.total, tt.weights)
	}
}

func TestCenter(t *testing.T) {
	assert.Equal(t, " A ", center("A", 3))
	assert.Equal(t, "A ", center("A", 2))
	assert.Equal(t, "Ể", center("Ể", 1))
	assert.Equal(t, "", center("A", 0))
	assert.Equal(t, "SL", center("SLASH", 2))
}

func TestLayoutRow(t *testing.T) {
	words := []layout.WordView{
		{Flex: 3, Glyphs: []layout.GlyphView{{Code: "A", Flex: 2}, {Code: "B", Flex: 1}}},
		{Flex: 1, Current: true},
	}
	row := layoutRow(words, 8)
	require.Len(t, row, 2)
	assert.Equal(t, " A  B ", row[0].Text)
	assert.Equal(t, "  ", row[1].Text)
	assert.True(t, row[1].Current)
	assert.Equal(t, " A  B   ", plainRow(row))
}

func writeSmokeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KINETYPE_DATA_DIR", dir)
	t.Setenv("KINETYPE_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	assets := filepath.Join(dir, "chars")
	require.NoError(t, os.MkdirAll(assets, 0700))
	cfg := `
[typing]
char_delay_ms = 1
space_delay_ms = 1

[glyphs]
asset_dir = "` + filepath.ToSlash(assets) + `"
cache_path = "` + filepath.ToSlash(filepath.Join(dir, "glyphs.db")) + `"
watch = false

[vision]
demo_delay_ms = 1

[logging]
file_path = "` + filepath.ToSlash(filepath.Join(dir, "tui.log")) + `"
`
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))
	return path
}

func TestSmokeText(t *testing.T) {
	path := writeSmokeConfig(t)

	var out bytes.Buffer
	err := run(context.Background(), options{configPath: path, smoke: true, text: "AB C", width: 12}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "| A   B   C  |", lines[0])
	assert.Equal(t, "AB C", lines[1])
}

func TestSmokeImage(t *testing.T) {
	path := writeSmokeConfig(t)
	img := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(img, append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...), 0600))

	var out bytes.Buffer
	err := run(context.Background(), options{configPath: path, smoke: true, image: img, width: 40}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotEmpty(t, lines[1])
	assert.Equal(t, strings.ToUpper(lines[1]), lines[1])
}

func TestSmokeNeedsInput(t *testing.T) {
	path := writeSmokeConfig(t)
	err := run(context.Background(), options{configPath: path, smoke: true}, &bytes.Buffer{})
	assert.Error(t, err)

	err = run(context.Background(), options{configPath: path, smoke: true, image: filepath.Join(t.TempDir(), "nope.png")}, &bytes.Buffer{})
	assert.Error(t, err)
}
