// Package watcher monitors the glyph asset directory and invalidates cached
// widths when an asset changes.
package watcher

import (
	"crypto/sha256"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"kinetype/internal/logging"
)

// DefaultSettle is how long an asset must stay unchanged before it is reported.
const DefaultSettle = 200 * time.Millisecond

// Invalidator drops cached facts about an asset. *glyph.CachedResolver
// implements it.
type Invalidator interface {
	Invalidate(asset string) error
}

// Event reports an asset whose content changed, appeared or disappeared.
type Event struct {
	Path      string
	Asset     string // file stem, as glyph.AssetName returns it
	Removed   bool
	Hash      [32]byte
	Timestamp time.Time
}

// Watcher monitors one directory of .svg assets.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	settle    time.Duration
	target    Invalidator
	log       *logging.Logger

	// path -> time of the last raw event
	pendingMu sync.Mutex
	pending   map[string]time.Time

	// path -> last reported content hash
	hashes map[string][32]byte

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle sets the debounce interval.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) { w.log = l.WithComponent("watcher") }
}

// New creates a watcher over dir that calls target for every changed asset.
// target may be nil when only Events are consumed.
func New(dir string, target Invalidator, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		dir:       dir,
		settle:    DefaultSettle,
		target:    target,
		log:       logging.Nop(),
		pending:   make(map[string]time.Time),
		hashes:    make(map[string][32]byte),
		events:    make(chan Event, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Events returns the channel of asset change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start records the current assets and begins watching.
func (w *Watcher) Start() error {
	absDir, err := filepath.Abs(w.dir)
	if err != nil {
		return err
	}
	w.dir = absDir

	info, err := os.Stat(absDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("watcher: asset path is not a directory")
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isAsset(entry.Name()) {
			continue
		}
		path := filepath.Join(absDir, entry.Name())
		if h, _, err := HashFile(path); err == nil {
			w.hashes[path] = h
		}
	}

	if err := w.fsWatcher.Add(absDir); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

func isAsset(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".svg")
}

// AssetOf returns the asset name for a path.
func AssetOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !isAsset(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.pendingMu.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := w.settle / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.flushSettled(now)
		}
	}
}

// flushSettled reports paths that have been quiet for the settle interval.
// Hashing happens outside the pending lock so eventLoop is never blocked.
func (w *Watcher) flushSettled(now time.Time) {
	threshold := now.Add(-w.settle)

	var settled []string
	w.pendingMu.Lock()
	for path, last := range w.pending {
		if last.Before(threshold) {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range settled {
		ev := Event{Path: path, Asset: AssetOf(path), Timestamp: now}

		hash, _, err := HashFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if _, known := w.hashes[path]; !known {
				continue
			}
			delete(w.hashes, path)
			ev.Removed = true
		case err != nil:
			w.report(err)
			continue
		default:
			if prev, known := w.hashes[path]; known && prev == hash {
				continue
			}
			w.hashes[path] = hash
			ev.Hash = hash
		}

		if w.target != nil {
			if err := w.target.Invalidate(ev.Asset); err != nil {
				w.report(err)
			}
		}
		w.log.Debug("asset changed", "asset", ev.Asset, "removed", ev.Removed)

		select {
		case w.events <- ev:
		default:
			// Nobody is listening; the invalidation already happened.
		}
	}
}

func (w *Watcher) report(err error) {
	select {
	case w.errors <- err:
	default:
		w.log.Warn("watcher error dropped", "error", err)
	}
}

// HashFile computes SHA-256 hash of a file using streaming.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// PendingFiles returns the number of paths waiting to settle.
func (w *Watcher) PendingFiles() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}
