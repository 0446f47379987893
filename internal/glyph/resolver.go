package glyph

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kinetype/internal/domain"
)

// Resolver returns the intrinsic width of the asset for a glyph code.
// Misses wrap domain.ErrAssetNotFound.
type Resolver interface {
	ResolveWidth(ctx context.Context, code string) (float64, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, code string) (float64, error)

// ResolveWidth calls f.
func (f ResolverFunc) ResolveWidth(ctx context.Context, code string) (float64, error) {
	return f(ctx, code)
}

// AssetInfo describes an asset file on disk.
type AssetInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// FileResolver reads widths from SVG assets in a directory.
type FileResolver struct {
	Dir string
}

// NewFileResolver returns a resolver over dir.
func NewFileResolver(dir string) *FileResolver {
	return &FileResolver{Dir: dir}
}

// Path returns the asset path for code.
func (r *FileResolver) Path(code string) string {
	return filepath.Join(r.Dir, AssetName(code)+".svg")
}

// Stat looks up the asset for code without reading it.
func (r *FileResolver) Stat(code string) (AssetInfo, error) {
	path := r.Path(code)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return AssetInfo{}, fmt.Errorf("%s: %w", path, domain.ErrAssetNotFound)
	}
	if err != nil {
		return AssetInfo{}, fmt.Errorf("stat asset: %w", err)
	}
	return AssetInfo{Name: AssetName(code), Path: path, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// ResolveWidth implements Resolver.
func (r *FileResolver) ResolveWidth(ctx context.Context, code string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path := r.Path(code)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%s: %w", path, domain.ErrAssetNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	w, err := ParseSVGWidth(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// ErrNoWidth is returned when an SVG root has neither a usable width
// attribute nor a four-part viewBox.
var ErrNoWidth = errors.New("svg has no width")

// ParseSVGWidth reads the root <svg> element and returns its width attribute,
// falling back to the third viewBox value.
func ParseSVGWidth(r io.Reader) (float64, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("no svg element: %w", ErrNoWidth)
		}
		if err != nil {
			return 0, fmt.Errorf("parse svg: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return 0, fmt.Errorf("root element <%s>: %w", start.Name.Local, ErrNoWidth)
		}
		return widthFromAttrs(start.Attr)
	}
}

func widthFromAttrs(attrs []xml.Attr) (float64, error) {
	var width, viewBox string
	var hasWidth bool
	for _, a := range attrs {
		switch a.Name.Local {
		case "width":
			width, hasWidth = a.Value, true
		case "viewBox":
			viewBox = a.Value
		}
	}

	if hasWidth {
		if v, ok := leadingFloat(width); ok {
			return v, nil
		}
		return 0, fmt.Errorf("width %q: %w", width, ErrNoWidth)
	}

	parts := strings.FieldsFunc(viewBox, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(parts) == 4 {
		if v, ok := leadingFloat(parts[2]); ok {
			return v, nil
		}
	}
	return 0, ErrNoWidth
}

// leadingFloat parses the longest numeric prefix of s, so "17.21px" is 17.21.
func leadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	seenDot, seenDigit := false, false
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
		case r == '.' && !seenDot:
			seenDot = true
		case (r == '-' || r == '+') && i == 0:
		default:
			break scan
		}
		end = i + 1
	}
	if !seenDigit {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
