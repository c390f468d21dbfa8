// Command framedemo runs the gpuframe frame loop against a headless surface
// and clears every back buffer to a fixed color.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/gpuframe"
	"github.com/gogpu/gpuframe/backend"
	_ "github.com/gogpu/gpuframe/backend/native"
	_ "github.com/gogpu/gpuframe/backend/sim"
	"github.com/gogpu/gputypes"
	"golang.org/x/sync/errgroup"
)

// headless is a window-less surface target of a fixed size.
type headless struct{ width, height uint32 }

func (headless) NativeHandle() uintptr          { return 0 }
func (h headless) Size() (width, height uint32) { return h.width, h.height }

var clearColor = gputypes.Color{R: 0.4, G: 0.6, B: 0.9, A: 1}

func main() {
	var (
		configPath  = flag.String("config", "", "TOML config file")
		writeConfig = flag.Bool("write-config", false, "print the effective config and exit")
		backendName = flag.String("backend", "", "driver name (native, sim); empty picks the best available")
		buffers     = flag.Int("buffers", gpuframe.DefaultBufferCount, "swapchain images")
		warp        = flag.Bool("warp", false, "use the software rasterizer adapter")
		vsync       = flag.Bool("vsync", true, "wait for vertical blank on present")
		frames      = flag.Int("frames", 600, "frames to render, 0 runs until interrupted")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	var width, height uint
	flag.UintVar(&width, "width", gpuframe.DefaultWidth, "surface width")
	flag.UintVar(&width, "w", gpuframe.DefaultWidth, "shorthand for -width")
	flag.UintVar(&height, "height", gpuframe.DefaultHeight, "surface height")
	flag.UintVar(&height, "h", gpuframe.DefaultHeight, "shorthand for -height")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gpuframe.SetLogger(logger)

	cfg := gpuframe.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = gpuframe.LoadConfig(*configPath); err != nil {
			logger.Error("load config", "error", err)
			os.Exit(1)
		}
	}
	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backendName
		case "width", "w":
			cfg.Width = uint32(width)
		case "height", "h":
			cfg.Height = uint32(height)
		case "buffers":
			cfg.BufferCount = *buffers
		case "warp":
			cfg.PreferSoftware = *warp
		case "vsync":
			cfg.VSync = *vsync
		}
	})
	if *writeConfig {
		if err := gpuframe.WriteConfig(os.Stdout, cfg); err != nil {
			logger.Error("write config", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger, cfg, *frames); err != nil {
		logger.Error("framedemo", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg gpuframe.Config, frames int) error {
	gc, err := gpuframe.Open(cfg, headless{cfg.Width, cfg.Height})
	if err != nil {
		return err
	}
	defer func() {
		if err := gc.Close(); err != nil {
			logger.Error("close", "error", err)
		}
	}()

	info := gc.Adapter().Info()
	logger.Info("running",
		"adapter", info.Name,
		"buffers", gc.Surface().BufferCount(),
		"tearing", gc.Surface().TearingSupported(),
		"vsync", cfg.VSync)

	rec := gpuframe.RecorderFunc(func(f *gpuframe.Frame) error {
		f.List.Barrier(f.BackBuffer, backend.StatePresent, backend.StateRenderTarget)
		f.List.ClearColor(f.BackBuffer, clearColor)
		f.List.Barrier(f.BackBuffer, backend.StateRenderTarget, backend.StatePresent)
		return nil
	})

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		for n := 0; frames == 0 || n < frames; n++ {
			if ctx.Err() != nil {
				return nil
			}
			if err := gc.Render(rec); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s := gc.Scheduler().Stats()
				logger.Info("frames", "count", s.Frames, "fps", s.FPS, "blocked", s.Blocked)
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	s := gc.Scheduler().Stats()
	logger.Info("done", "frames", s.Frames, "last_frame", s.LastFrame, "blocked", s.Blocked)
	return nil
}
