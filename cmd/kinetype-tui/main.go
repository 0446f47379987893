// Command kinetype-tui renders the kinetic typography surface in a terminal.
//
// With -smoke it runs headless: it captions -image and/or types -text,
// waits for every width lookup, prints the laid out row and the text and
// exits. Logs always go to the configured log file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"

	"kinetype/internal/config"
	"kinetype/internal/logging"
	"kinetype/internal/surface"
	"kinetype/internal/vision"
)

func main() {
	configPath := flag.String("config", "", "config file (default: search the standard locations)")
	smoke := flag.Bool("smoke", false, "run headless, print the result and exit")
	text := flag.String("text", "", "text to type (ctrl+p in the terminal)")
	image := flag.String("image", "", "image to caption (ctrl+o in the terminal)")
	width := flag.Int("width", 80, "row width in cells for -smoke")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := options{
		configPath: *configPath,
		smoke:      *smoke,
		text:       *text,
		image:      *image,
		width:      *width,
	}
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "kinetype-tui:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	smoke      bool
	text       string
	image      string
	width      int
}

func run(ctx context.Context, opts options, out io.Writer) error {
	path := opts.configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	// The terminal belongs to the renderer.
	cfg.Logging.Output = "file"
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	lc, err := cfg.Logging.LoggerConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logger.Close()

	s, err := surface.New(cfg, surface.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.smoke {
		return smokeRun(ctx, s, opts, out)
	}

	p := tea.NewProgram(newModel(ctx, s, opts.text, opts.image), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func smokeRun(ctx context.Context, s *surface.Surface, opts options, out io.Writer) error {
	if opts.image == "" && opts.text == "" {
		return errors.New("-smoke needs -text or -image")
	}

	if opts.image != "" {
		r, err := s.DescribeFile(ctx, opts.image)
		if err != nil {
			return errors.New(vision.UserMessage(err))
		}
		if err := r.Err(); err != nil {
			return err
		}
	}
	if opts.text != "" {
		r, err := s.TypeText(ctx, opts.text)
		if err != nil {
			return err
		}
		if err := r.Err(); err != nil {
			return err
		}
	}
	s.Wait()

	row := layoutRow(s.Snapshot(), opts.width)
	fmt.Fprintf(out, "|%s|\n", plainRow(row))
	fmt.Fprintln(out, s.Text())
	return nil
}
