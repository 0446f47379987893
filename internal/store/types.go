// Package store provides SQLite-backed caching of glyph asset widths.
package store

import "time"

// WidthEntry is one cached measurement of a glyph asset.
type WidthEntry struct {
	Asset      string
	Width      float64
	ModTimeNs  int64
	Size       int64
	ResolvedAt time.Time
}

// Fresh reports whether the entry was measured from a file with the given
// modification time and size.
func (e WidthEntry) Fresh(modTimeNs, size int64) bool {
	return e.ModTimeNs == modTimeNs && e.Size == size
}

// Stats summarises the cache contents.
type Stats struct {
	Widths int64
	Misses int64
}
