package ui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"gioui.org/io/event"
	"gioui.org/io/key"
	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"kinetype/cmd/kinetype/internal/theme"
	"kinetype/internal/ime"
	kl "kinetype/internal/layout"
	"kinetype/internal/logging"
	"kinetype/internal/surface"
	"kinetype/internal/vision"
)

// Actions are the inputs the window can replay on demand.
type Actions struct {
	Text      string // typed with Shortcut+P
	ImagePath string // captioned with Shortcut+I
}

// Canvas renders the word tree and turns key events into surface calls.
type Canvas struct {
	theme   *theme.Theme
	surface *surface.Surface
	actions Actions
	log     *logging.Logger
	ctx     context.Context

	mu     sync.Mutex
	status string
	failed bool
}

// NewCanvas creates the canvas.
func NewCanvas(ctx context.Context, t *theme.Theme, s *surface.Surface, a Actions, log *logging.Logger) *Canvas {
	return &Canvas{
		theme:   t,
		surface: s,
		actions: a,
		log:     log.WithComponent("ui"),
		ctx:     ctx,
	}
}

// Watch redraws on every surface event until events is closed.
func (c *Canvas) Watch(events <-chan surface.Event, invalidate func()) {
	for ev := range events {
		switch ev.Type {
		case surface.EventVisionFailed:
			c.setStatus(ev.Message, true)
		case surface.EventPlaybackStarted:
			c.setStatus("", false)
		}
		invalidate()
	}
}

func (c *Canvas) setStatus(msg string, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status, c.failed = msg, failed
}

// Layout renders the canvas.
func (c *Canvas) Layout(gtx layout.Context) layout.Dimensions {
	c.handleKeys(gtx)

	pal := c.theme.Colors(c.surface.Palette())
	paint.Fill(gtx.Ops, pal.Background)

	area := clip.Rect{Max: gtx.Constraints.Max}.Push(gtx.Ops)
	event.Op(gtx.Ops, c)
	area.Pop()

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return c.layoutWords(gtx, pal)
		}),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return c.layoutStatus(gtx, pal)
		}),
	)
}

func (c *Canvas) handleKeys(gtx layout.Context) {
	if !gtx.Focused(c) {
		gtx.Execute(key.FocusCmd{Tag: c})
	}
	for {
		ev, ok := gtx.Event(
			key.FocusFilter{Target: c},
			key.Filter{Focus: c, Name: key.NameReturn},
			key.Filter{Focus: c, Name: key.NameEnter},
			key.Filter{Focus: c, Name: key.NameDeleteBackward},
			key.Filter{Focus: c, Name: key.NameEscape},
			key.Filter{Focus: c, Name: "T", Required: key.ModShortcut},
			key.Filter{Focus: c, Name: "K", Required: key.ModShortcut},
			key.Filter{Focus: c, Name: "H", Required: key.ModShortcut},
			key.Filter{Focus: c, Name: "N", Required: key.ModShortcut},
			key.Filter{Focus: c, Name: "P", Required: key.ModShortcut},
			key.Filter{Focus: c, Name: "I", Required: key.ModShortcut},
			key.Filter{Focus: c, Name: "W", Required: key.ModShortcut},
		)
		if !ok {
			break
		}
		switch e := ev.(type) {
		case key.EditEvent:
			for _, r := range e.Text {
				c.surface.HandleKey(ime.NewKey(r))
			}
		case key.Event:
			if e.State == key.Press {
				c.command(e)
			}
		}
	}
}

func (c *Canvas) command(e key.Event) {
	if !e.Modifiers.Contain(key.ModShortcut) {
		switch e.Name {
		case key.NameReturn, key.NameEnter:
			c.surface.HandleKey(ime.NewKeyWithCode(ime.KeyEnter, '\r'))
		case key.NameDeleteBackward:
			c.surface.HandleKey(ime.NewKeyWithCode(ime.KeyBackspace, '\b'))
		case key.NameEscape:
			c.surface.CancelPlayback()
		}
		return
	}

	switch e.Name {
	case "T":
		c.surface.SetVietnamese(!c.surface.Vietnamese())
	case "K":
		c.surface.SetKeyboardEnabled(!c.surface.KeyboardEnabled())
	case "H":
		c.surface.SetHighlight(c.surface.Animation() != "sequential")
	case "N":
		c.surface.SetNoise(c.surface.Animation() != "noise")
	case "W":
		c.surface.RemoveLastWord()
	case "P":
		if c.actions.Text == "" {
			c.setStatus("no -text given", true)
			return
		}
		if _, err := c.surface.TypeText(c.ctx, c.actions.Text); err != nil {
			c.setStatus(err.Error(), true)
		}
	case "I":
		if c.actions.ImagePath == "" {
			c.setStatus(vision.UserMessage(vision.ErrNoImage), true)
			return
		}
		c.setStatus("Analyzing image...", false)
		go c.describe()
	}
}

func (c *Canvas) describe() {
	_, err := c.surface.DescribeFile(c.ctx, c.actions.ImagePath)
	if err != nil && !errors.Is(err, context.Canceled) {
		// Vision failures already arrived as an event; this covers a busy surface.
		c.mu.Lock()
		if c.status == "Analyzing image..." {
			c.status, c.failed = vision.UserMessage(err), true
		}
		c.mu.Unlock()
		c.log.Debug("describe failed", "error", err)
	}
}

func (c *Canvas) layoutWords(gtx layout.Context, pal theme.Palette) layout.Dimensions {
	words := c.surface.Snapshot()
	children := make([]layout.FlexChild, 0, len(words))
	for _, w := range words {
		children = append(children, layout.Flexed(float32(w.Flex), func(gtx layout.Context) layout.Dimensions {
			return c.layoutWord(gtx, w, pal)
		}))
	}
	if len(children) == 0 {
		return layout.Dimensions{Size: gtx.Constraints.Max}
	}
	return layout.Flex{Axis: layout.Horizontal}.Layout(gtx, children...)
}

func (c *Canvas) layoutWord(gtx layout.Context, w kl.WordView, pal theme.Palette) layout.Dimensions {
	size := gtx.Constraints.Max
	gtx.Constraints.Min = size

	children := make([]layout.FlexChild, 0, len(w.Glyphs))
	for _, g := range w.Glyphs {
		children = append(children, layout.Flexed(float32(g.Flex), func(gtx layout.Context) layout.Dimensions {
			return c.layoutGlyph(gtx, g, pal)
		}))
	}
	if len(children) > 0 {
		layout.Flex{Axis: layout.Horizontal}.Layout(gtx, children...)
	}

	if w.Current {
		h := gtx.Dp(c.theme.Config.Cursor)
		rect := clip.Rect{Min: image.Pt(0, size.Y-h), Max: size}.Op()
		paint.FillShape(gtx.Ops, pal.Cursor, rect)
	}
	return layout.Dimensions{Size: size}
}

func (c *Canvas) layoutGlyph(gtx layout.Context, g kl.GlyphView, pal theme.Palette) layout.Dimensions {
	gtx.Constraints.Min = gtx.Constraints.Max
	px := float32(gtx.Constraints.Max.Y) * c.theme.Config.GlyphScale
	return layout.Center.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		l := material.Label(c.theme.Theme, unit.Sp(px/gtx.Metric.PxPerSp), g.Code)
		l.Color = pal.Foreground
		l.Alignment = text.Middle
		l.MaxLines = 1
		return l.Layout(gtx)
	})
}

func (c *Canvas) layoutStatus(gtx layout.Context, pal theme.Palette) layout.Dimensions {
	c.mu.Lock()
	status, failed := c.status, c.failed
	c.mu.Unlock()

	parts := []string{
		c.surface.Mode().String(),
		"telex " + onOff(c.surface.Vietnamese()),
		"keyboard " + onOff(c.surface.KeyboardEnabled()),
	}
	if a := c.surface.Animation(); a != "" {
		parts = append(parts, a)
	}
	line := strings.Join(parts, " | ")
	if status != "" {
		line = fmt.Sprintf("%s | %s", line, status)
	}

	return layout.UniformInset(c.theme.Config.Padding).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		l := material.Label(c.theme.Theme, c.theme.Config.FontStatus, line)
		l.Color = pal.Status
		if failed {
			l.Color = pal.Error
		}
		return l.Layout(gtx)
	})
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
