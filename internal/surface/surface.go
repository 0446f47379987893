// Package surface wires the word tree, the input router, playback, width
// resolution, vision captioning, the highlight loops and the theme into the
// single object a renderer talks to.
package surface

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"kinetype/internal/animation"
	"kinetype/internal/config"
	"kinetype/internal/domain"
	"kinetype/internal/glyph"
	"kinetype/internal/ime"
	"kinetype/internal/input"
	"kinetype/internal/layout"
	"kinetype/internal/logging"
	"kinetype/internal/playback"
	"kinetype/internal/store"
	"kinetype/internal/theme"
	"kinetype/internal/vision"
	"kinetype/internal/watcher"
)

// ErrTeardownActive is returned when text is requested while the surface is
// being cleared.
var ErrTeardownActive = fmt.Errorf("surface: teardown in progress: %w", domain.ErrPlaybackActive)

// EventType identifies a surface event.
type EventType int

const (
	EventChanged EventType = iota
	EventPlaybackStarted
	EventPlaybackEnded
	EventResetStarted
	EventResetDone
	EventThemeChanged
	EventVisionFailed
)

func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "changed"
	case EventPlaybackStarted:
		return "playback-started"
	case EventPlaybackEnded:
		return "playback-ended"
	case EventResetStarted:
		return "reset-started"
	case EventResetDone:
		return "reset-done"
	case EventThemeChanged:
		return "theme-changed"
	case EventVisionFailed:
		return "vision-failed"
	default:
		return "unknown"
	}
}

// Event is pushed to subscribers. Message carries the user-facing text of a
// vision failure.
type Event struct {
	Type      EventType
	Message   string
	Palette   theme.Palette
	Timestamp time.Time
}

// Option configures a Surface.
type Option func(*Surface)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Surface) { s.log = l }
}

// WithResolver replaces the configured asset resolver. The width cache and
// the asset watcher are not opened.
func WithResolver(r glyph.Resolver) Option {
	return func(s *Surface) { s.resolver = r }
}

// WithProvider replaces the configured vision provider.
func WithProvider(p vision.Provider) Option {
	return func(s *Surface) { s.provider = p }
}

// WithTheme replaces the theme.
func WithTheme(t *theme.Theme) Option {
	return func(s *Surface) { s.theme = t }
}

// Surface is the kinetic typography engine behind one window.
type Surface struct {
	cfg *config.Config
	log *logging.Logger

	tree       *layout.Tree
	resolver   glyph.Resolver
	tracker    *glyph.Tracker
	router     *input.Router
	player     *playback.Scheduler
	provider   vision.Provider
	theme      *theme.Theme
	sequential *animation.Highlighter
	noise      *animation.Highlighter

	db      *store.Store
	assets  *watcher.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	mu          sync.Mutex
	enterPolicy string
	tick        time.Duration
	keyboard    bool
	teardown    context.CancelFunc
	closed      bool

	subMu       sync.Mutex
	subscribers []chan Event
	subClosed   bool
}

// New builds a surface from cfg. A nil cfg means config.DefaultConfig().
// Failing to open the width cache or the asset watcher is logged and
// the surface runs without them.
func New(cfg *config.Config, opts ...Option) (*Surface, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Surface{
		cfg:         cfg,
		log:         logging.Nop(),
		ctx:         ctx,
		cancel:      cancel,
		enterPolicy: cfg.Typing.EnterPolicy,
		tick:        cfg.Typing.TeardownTick(),
		keyboard:    true,
	}
	for _, o := range opts {
		o(s)
	}
	root := s.log
	s.log = root.WithComponent("surface")

	if s.resolver == nil {
		s.resolver = s.openResolver(root)
	}
	if s.provider == nil {
		s.provider = newProvider(cfg.Vision, root)
	}
	if s.theme == nil {
		s.theme = theme.New(theme.WithBackground(cfg.Theme.Background))
	}

	s.tree = layout.New()
	s.tracker = glyph.NewTracker(s.resolver, s.tree,
		glyph.WithResolveTimeout(cfg.Glyphs.ResolveTimeout()),
		glyph.WithTrackerLogger(root),
	)
	s.tree.Observe(s.tracker)
	s.tree.Observe(s)

	s.router = input.NewRouter(s.tree, s.tracker,
		input.WithLogger(root),
		input.WithVietnamese(cfg.Typing.Vietnamese),
	)
	s.player = playback.New(s.router,
		playback.WithCharDelay(cfg.Typing.CharDelay()),
		playback.WithSpaceDelay(cfg.Typing.SpaceDelay()),
		playback.WithLogger(root),
	)

	interval := animation.WithInterval(cfg.Animation.Interval())
	s.sequential = animation.New(s.tree,
		animation.Style{Name: animation.Sequential.Name, Factor: cfg.Animation.SequentialFactor},
		interval, animation.WithLogger(root))
	s.noise = animation.New(s.tree,
		animation.Style{Name: animation.Noise.Name, Factor: cfg.Animation.NoiseFactor},
		interval, animation.WithLogger(root))

	s.tree.EnsureWord()
	return s, nil
}

func (s *Surface) openResolver(root *logging.Logger) glyph.Resolver {
	g := s.cfg.Glyphs
	files := glyph.NewFileResolver(g.AssetPath())
	if g.CachePath == "" {
		return files
	}

	db, err := store.Open(g.CachePath)
	if err != nil {
		s.log.Warn("width cache disabled", "path", g.CachePath, "error", err)
		return files
	}
	s.db = db
	cache := glyph.NewCachedResolver(files, db, root)

	if !g.Watch {
		return cache
	}
	w, err := watcher.New(g.AssetPath(), cache,
		watcher.WithSettle(g.Settle()),
		watcher.WithLogger(root),
	)
	if err == nil {
		err = w.Start()
	}
	if err != nil {
		s.log.Warn("asset watcher disabled", "dir", g.AssetPath(), "error", err)
		if w != nil {
			w.Stop()
		}
		return cache
	}
	s.assets = w
	s.workers.Add(1)
	go s.watchAssets(w)
	return cache
}

// watchAssets logs asset changes. Invalidation already happened in the
// watcher; glyphs already on screen keep their width until re-typed.
func (s *Surface) watchAssets(w *watcher.Watcher) {
	defer s.workers.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			s.log.Info("glyph asset changed", "asset", ev.Asset, "removed", ev.Removed)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			s.log.Warn("asset watcher error", "error", err)
		}
	}
}

func newProvider(v config.VisionConfig, log *logging.Logger) vision.Provider {
	if !vision.UsableKey(v.APIKey) {
		log.WithComponent("vision").Info("no vision API key; using demo captions")
		return vision.NewDemoProvider(vision.WithDemoDelay(v.DemoDelay()))
	}
	return vision.NewOpenAIClient(strings.TrimSpace(v.APIKey),
		vision.WithBaseURL(v.BaseURL),
		vision.WithModel(v.Model),
		vision.WithMaxTokens(v.MaxTokens),
		vision.WithHTTPTimeout(v.Timeout()),
		vision.WithPreflight(v.Preflight),
		vision.WithLogger(log),
	)
}

// GlyphRemoved implements layout.Observer.
func (s *Surface) GlyphRemoved(layout.GlyphID) {}

// TreeChanged implements layout.Observer.
func (s *Surface) TreeChanged() {
	s.emit(Event{Type: EventChanged})
}

// HandleKey routes one keyboard event. Enter starts a reset according to the
// enter policy.
func (s *Surface) HandleKey(k ime.Key) input.Effect {
	eff := s.router.HandleKey(k)
	if eff == input.EffectReset {
		s.startReset()
	}
	return eff
}

// SetVietnamese selects Telex composition or raw keys.
func (s *Surface) SetVietnamese(on bool) {
	s.router.SetVietnamese(on)
}

// Vietnamese reports whether Telex composition is selected.
func (s *Surface) Vietnamese() bool {
	return s.router.Vietnamese()
}

// SetKeyboardEnabled gates keyboard input. A running teardown keeps the
// keyboard disabled until it finishes.
func (s *Surface) SetKeyboardEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyboard = on
	if s.teardown == nil {
		s.router.SetKeyboardEnabled(on)
	}
}

// KeyboardEnabled reports the user's keyboard toggle.
func (s *Surface) KeyboardEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyboard
}

// Mode returns the router mode.
func (s *Surface) Mode() input.Mode {
	return s.router.Mode()
}

// TypeText plays text into the current content.
func (s *Surface) TypeText(ctx context.Context, text string) (*playback.Run, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("type text: empty: %w", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playableLocked(); err != nil {
		return nil, err
	}
	return s.playLocked(ctx, input.ModeManualPlayback, text)
}

// TypeFromVision clears the surface and plays caption into a fresh first
// word.
func (s *Surface) TypeFromVision(ctx context.Context, caption string) (*playback.Run, error) {
	caption = vision.NormalizeCaption(caption)
	if caption == "" {
		return nil, fmt.Errorf("type caption: %w", vision.ErrEmptyCaption)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playableLocked(); err != nil {
		return nil, err
	}
	s.stopAnimations()
	s.tree.Clear()
	s.router.Reset()
	s.tree.CreateWord()
	return s.playLocked(ctx, input.ModeAIPlayback, caption)
}

// DescribeAndType captions image and types the caption. Nothing is typed
// when validation or the provider fails; the error also goes to subscribers
// as an EventVisionFailed carrying vision.UserMessage.
func (s *Surface) DescribeAndType(ctx context.Context, image []byte) (*playback.Run, error) {
	mime, err := vision.ValidateImage(image, s.cfg.Vision.MaxImageBytes)
	if err != nil {
		return nil, s.visionFailed(err)
	}

	s.mu.Lock()
	err = s.playableLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	caption, err := s.provider.Describe(ctx, image, mime)
	if err != nil {
		return nil, s.visionFailed(err)
	}
	s.log.Info("image described", "caption", caption, "elapsed", time.Since(start).Round(time.Millisecond))
	return s.TypeFromVision(ctx, caption)
}

// DescribeFile loads the image at path and calls DescribeAndType.
func (s *Surface) DescribeFile(ctx context.Context, path string) (*playback.Run, error) {
	data, _, err := vision.LoadImage(path, s.cfg.Vision.MaxImageBytes)
	if err != nil {
		return nil, s.visionFailed(err)
	}
	return s.DescribeAndType(ctx, data)
}

func (s *Surface) visionFailed(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	msg := vision.UserMessage(err)
	s.log.Warn("vision failed", "error", err)
	s.emit(Event{Type: EventVisionFailed, Message: msg})
	return err
}

func (s *Surface) playableLocked() error {
	switch {
	case s.closed:
		return fmt.Errorf("surface closed: %w", domain.ErrInvalidInput)
	case s.teardown != nil:
		return ErrTeardownActive
	case s.player.Active():
		return playback.ErrBusy
	}
	return nil
}

func (s *Surface) playLocked(ctx context.Context, m input.Mode, text string) (*playback.Run, error) {
	run, err := s.player.Play(ctx, m, text)
	if err != nil {
		return nil, err
	}
	s.emit(Event{Type: EventPlaybackStarted})
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		<-run.Done()
		s.emit(Event{Type: EventPlaybackEnded})
	}()
	return run, nil
}

// CancelPlayback stops the running playback, if any.
func (s *Surface) CancelPlayback() {
	s.player.Cancel()
}

// Playing reports whether a playback run is active.
func (s *Surface) Playing() bool {
	return s.player.Active()
}

func (s *Surface) startReset() {
	s.mu.Lock()
	policy := s.enterPolicy
	s.mu.Unlock()

	if policy == config.EnterClear {
		s.Clear()
		return
	}
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		if err := s.DeleteAll(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Debug("reset skipped", "error", err)
		}
	}()
}

// DeleteAll removes one glyph per teardown tick with keyboard input
// disabled, then leaves one empty word and re-rolls the theme. It fails with
// ErrTeardownActive while another teardown runs and with playback.ErrBusy
// during playback.
func (s *Surface) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	if err := s.playableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.teardown = cancel
	tick := s.tick
	s.router.SetKeyboardEnabled(false)
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.teardown = nil
		s.router.SetKeyboardEnabled(s.keyboard)
		s.mu.Unlock()
	}()

	s.emit(Event{Type: EventResetStarted})
	err := s.tree.DeleteAllSequential(ctx, tick, nil, func() {
		s.router.Reset()
	})
	if err != nil {
		s.router.Reset()
		return err
	}
	s.finishReset()
	return nil
}

// Clear empties the surface at once, then re-rolls the theme.
func (s *Surface) Clear() {
	s.mu.Lock()
	if s.teardown != nil {
		s.teardown()
	}
	s.mu.Unlock()

	s.tree.Clear()
	s.router.Reset()
	s.tree.CreateWord()
	s.finishReset()
}

func (s *Surface) finishReset() {
	p := s.theme.Roll()
	s.log.Debug("surface reset", "background", p.Background, "foreground", p.Foreground)
	s.emit(Event{Type: EventResetDone, Palette: p})
	s.emit(Event{Type: EventThemeChanged, Palette: p})
}

// RemoveLastWord drops the tail word.
func (s *Surface) RemoveLastWord() bool {
	s.router.Reset()
	return s.tree.RemoveLastWord()
}

// SetHighlight starts or stops the sequential highlight loop. Starting it
// stops the noise loop.
func (s *Surface) SetHighlight(on bool) {
	s.toggle(s.sequential, s.noise, on)
}

// SetNoise starts or stops the noise loop. Starting it stops the sequential
// loop.
func (s *Surface) SetNoise(on bool) {
	s.toggle(s.noise, s.sequential, on)
}

func (s *Surface) toggle(h, other *animation.Highlighter, on bool) {
	if on {
		other.Stop()
		h.Start(s.ctx)
		return
	}
	h.Stop()
}

// Animation returns the name of the running highlight loop, or "".
func (s *Surface) Animation() string {
	switch {
	case s.sequential.Active():
		return s.sequential.Style().Name
	case s.noise.Active():
		return s.noise.Style().Name
	}
	return ""
}

func (s *Surface) stopAnimations() {
	s.sequential.Stop()
	s.noise.Stop()
}

// Palette returns the current colors.
func (s *Surface) Palette() theme.Palette {
	return s.theme.Palette()
}

// SetBackground locks the background color.
func (s *Surface) SetBackground(hex string) error {
	if err := s.theme.SetBackground(hex); err != nil {
		return err
	}
	s.emit(Event{Type: EventThemeChanged, Palette: s.theme.Palette()})
	return nil
}

// Reconfigure applies the settings that can change while running: Telex
// selection, the enter policy, the teardown tick and the locked background.
// Delays, assets and the vision provider keep their startup values.
func (s *Surface) Reconfigure(cfg *config.Config) {
	c := cfg.Clone()
	s.mu.Lock()
	s.enterPolicy = c.Typing.EnterPolicy
	s.tick = c.Typing.TeardownTick()
	s.mu.Unlock()

	if s.router.Vietnamese() != c.Typing.Vietnamese {
		s.router.SetVietnamese(c.Typing.Vietnamese)
	}
	if c.Theme.Background == "" {
		s.theme.Unlock()
	} else if err := s.SetBackground(c.Theme.Background); err != nil {
		s.log.Warn("background not applied", "error", err)
	}
	s.log.Info("configuration applied", "enter_policy", c.Typing.EnterPolicy, "vietnamese", c.Typing.Vietnamese)
}

// Snapshot copies the tree for rendering.
func (s *Surface) Snapshot() []layout.WordView {
	return s.tree.Snapshot()
}

// Text returns the glyph codes with one space between words.
func (s *Surface) Text() string {
	return s.tree.Text()
}

// Wait blocks until pending width lookups have finished.
func (s *Surface) Wait() {
	s.tracker.Wait()
}

// Subscribe returns a channel of surface events. Slow subscribers miss
// events; the channel is closed by Close.
func (s *Surface) Subscribe() <-chan Event {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan Event, 64)
	if s.subClosed {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

func (s *Surface) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close stops playback, animations and background work and releases the
// width cache.
func (s *Surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.teardown != nil {
		s.teardown()
	}
	s.mu.Unlock()

	s.player.Cancel()
	s.stopAnimations()
	s.cancel()

	var errs []error
	if s.assets != nil {
		errs = append(errs, s.assets.Stop())
	}
	s.workers.Wait()
	s.tracker.Close()
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}

	s.subMu.Lock()
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
	s.subClosed = true
	s.subMu.Unlock()

	return errors.Join(errs...)
}
