package glyph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kinetype/internal/domain"
	"kinetype/internal/logging"
	"kinetype/internal/store"
)

// CachedResolver memoises FileResolver widths in a store.Store. An entry is
// reused only while the asset's modification time and size are unchanged.
// Hits are also kept in memory, and missing assets are remembered, until
// Invalidate is called for them; the asset watcher does that on change.
type CachedResolver struct {
	files *FileResolver
	db    *store.Store
	log   *logging.Logger

	mu  sync.RWMutex
	mem map[string]float64
}

// NewCachedResolver layers db over files. log may be nil.
func NewCachedResolver(files *FileResolver, db *store.Store, log *logging.Logger) *CachedResolver {
	if log == nil {
		log = logging.Nop()
	}
	return &CachedResolver{
		files: files,
		db:    db,
		log:   log.WithComponent("glyph-cache"),
		mem:   make(map[string]float64),
	}
}

// ResolveWidth implements Resolver.
func (c *CachedResolver) ResolveWidth(ctx context.Context, code string) (float64, error) {
	asset := AssetName(code)

	c.mu.RLock()
	w, ok := c.mem[asset]
	c.mu.RUnlock()
	if ok {
		return w, nil
	}

	miss, err := c.db.IsMiss(asset)
	if err != nil {
		c.log.Warn("width cache unavailable", "asset", asset, "error", err)
		return c.files.ResolveWidth(ctx, code)
	}
	if miss {
		return 0, fmt.Errorf("%s (cached): %w", asset, domain.ErrAssetNotFound)
	}

	info, err := c.files.Stat(code)
	if errors.Is(err, domain.ErrAssetNotFound) {
		if err := c.db.RecordMiss(asset); err != nil {
			c.log.Warn("record miss failed", "asset", asset, "error", err)
		}
		return 0, err
	}
	if err != nil {
		return 0, err
	}

	entry, err := c.db.GetWidth(asset)
	if err == nil && entry.Fresh(info.ModTime.UnixNano(), info.Size) {
		c.remember(asset, entry.Width)
		return entry.Width, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotCached) {
		c.log.Warn("width lookup failed", "asset", asset, "error", err)
	}

	w, err = c.files.ResolveWidth(ctx, code)
	if err != nil {
		return 0, err
	}
	if err := c.db.PutWidth(store.WidthEntry{
		Asset:     asset,
		Width:     w,
		ModTimeNs: info.ModTime.UnixNano(),
		Size:      info.Size,
	}); err != nil {
		c.log.Warn("width store failed", "asset", asset, "error", err)
	}
	c.remember(asset, w)
	c.log.Debug("width measured", "asset", asset, "width", w)
	return w, nil
}

func (c *CachedResolver) remember(asset string, w float64) {
	c.mu.Lock()
	c.mem[asset] = w
	c.mu.Unlock()
}

// Invalidate forgets everything known about the named asset file stem.
func (c *CachedResolver) Invalidate(asset string) error {
	c.mu.Lock()
	delete(c.mem, asset)
	c.mu.Unlock()
	return c.db.Invalidate(asset)
}

// InvalidateAll forgets every cached width.
func (c *CachedResolver) InvalidateAll() error {
	c.mu.Lock()
	c.mem = make(map[string]float64)
	c.mu.Unlock()
	return c.db.Purge()
}
