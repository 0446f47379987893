package glyph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinetype/internal/domain"
)

func TestParseSVGWidth(t *testing.T) {
	tests := []struct {
		name    string
		svg     string
		want    float64
		wantErr bool
	}{
		{"width attribute", `<svg xmlns="http://www.w3.org/2000/svg" width="17.21" height="40"/>`, 17.21, false},
		{"width with unit", `<svg width="20px" height="40px"></svg>`, 20, false},
		{"width wins over viewBox", `<svg width="12" viewBox="0 0 99 40"/>`, 12, false},
		{"viewBox fallback", `<svg viewBox="0 0 25.5 40"/>`, 25.5, false},
		{"viewBox commas", `<svg viewBox="0,0,8,40"/>`, 8, false},
		{"prolog and comment", `<?xml version="1.0"?><!-- glyph --><svg width="9"/>`, 9, false},
		{"no width", `<svg height="40"/>`, 0, true},
		{"short viewBox", `<svg viewBox="0 0 10"/>`, 0, true},
		{"bad width", `<svg width="auto"/>`, 0, true},
		{"not svg", `<html/>`, 0, true},
		{"empty", ``, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSVGWidth(strings.NewReader(tc.svg))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func writeAsset(t *testing.T, dir, name, svg string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".svg"), []byte(svg), 0644))
}

func TestFileResolver(t *testing.T) {
	dir := t.TempDir()
	writeAsset(t, dir, "A", `<svg width="17.21"/>`)
	writeAsset(t, dir, "exclaimation", `<svg viewBox="0 0 6 40"/>`)

	r := NewFileResolver(dir)
	ctx := context.Background()

	w, err := r.ResolveWidth(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 17.21, w)

	w, err = r.ResolveWidth(ctx, "!")
	require.NoError(t, err)
	assert.Equal(t, 6.0, w)

	_, err = r.ResolveWidth(ctx, "Q")
	assert.True(t, errors.Is(err, domain.ErrAssetNotFound), "got %v", err)

	info, err := r.Stat("A")
	require.NoError(t, err)
	assert.Equal(t, "A", info.Name)
	assert.Positive(t, info.Size)

	_, err = r.Stat("Q")
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestFileResolverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileResolver(t.TempDir()).ResolveWidth(ctx, "A")
	assert.ErrorIs(t, err, context.Canceled)
}
