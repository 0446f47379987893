package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"gioui.org/app"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"kinetype/cmd/kinetype/internal/theme"
	"kinetype/cmd/kinetype/internal/ui"
	"kinetype/internal/config"
	"kinetype/internal/logging"
	"kinetype/internal/surface"
)

func main() {
	configPath := flag.String("config", "", "config file (default: search the standard locations)")
	text := flag.String("text", "", "text typed with Ctrl+P")
	image := flag.String("image", "", "image captioned with Ctrl+I")
	flag.Parse()

	path := *configPath
	if path == "" {
		if path = config.FindConfigFile(); path == "" {
			path = config.ConfigPath()
		}
	}

	s, logger, loader, err := start(path)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		w := new(app.Window)
		w.Option(app.Title("kinetype"))
		w.Option(app.Size(unit.Dp(1024), unit.Dp(480)))

		err := loop(w, s, logger, ui.Actions{Text: *text, ImagePath: *image})
		loader.Close()
		if cerr := s.Close(); err == nil {
			err = cerr
		}
		logger.Close()
		if err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}()
	app.Main()
}

func start(path string) (*surface.Surface, *logging.Logger, *config.Loader, error) {
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, nil, err
	}

	lc, err := cfg.Logging.LoggerConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open log: %w", err)
	}
	logging.SetDefault(logger)

	for _, w := range config.Check(cfg).Warnings() {
		logger.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	s, err := surface.New(cfg, surface.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}

	loader.OnChange(s.Reconfigure)
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "path", path, "error", err)
	}
	go func() {
		for err := range loader.Errors() {
			logger.Warn("config reload rejected", "error", err)
		}
	}()

	logger.Info("kinetype started", "config", path, "assets", cfg.Glyphs.AssetPath())
	return s, logger, loader, nil
}

func loop(w *app.Window, s *surface.Surface, logger *logging.Logger, actions ui.Actions) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := theme.NewTheme(material.NewTheme())
	canvas := ui.NewCanvas(ctx, t, s, actions, logger)
	go canvas.Watch(s.Subscribe(), w.Invalidate)

	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			canvas.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}
