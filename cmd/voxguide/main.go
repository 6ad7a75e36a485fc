// Command voxguide is the voice guide client: it captures the microphone,
// streams audio to the guide backend, and plays the spoken replies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wayfarelabs/voxguide/internal/app"
	"github.com/wayfarelabs/voxguide/internal/config"
	"github.com/wayfarelabs/voxguide/internal/voice"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	endpoint := flag.String("endpoint", "", "guide backend URL (overrides the config file)")
	flag.Parse()

	// .env is optional; deployed environments set variables directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voxguide: load .env: %v\n", err)
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Configuration (with hot reload of the log level) ──────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.CaptureChanged || d.EndpointChanged {
			slog.Info("configuration changed; restart to apply",
				"capture", d.CaptureChanged, "endpoint", d.EndpointChanged)
		}
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxguide: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxguide: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	level.Set(cfg.LogLevel.Level())

	slog.Info("voxguide starting",
		"config", *configPath,
		"endpoint", cfg.Endpoint,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Echo the conversation to stdout.
	sub := application.Client().Subscribe(printEvent)
	defer sub.Cancel()

	slog.Info("session starting — press Ctrl+C to quit")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	return 0
}

// printEvent renders conversation events as terminal lines. Status changes
// and mic levels stay on the structured log.
func printEvent(evt voice.Event) {
	switch e := evt.(type) {
	case voice.TranscriptEvent:
		if !e.Partial {
			fmt.Printf("you   > %s\n", e.Text)
		}
	case voice.ReplyTextEvent:
		fmt.Printf("guide > %s\n", e.Text)
	case voice.FactEvent:
		fmt.Printf("fact  > [%s] %s\n", e.Category, e.Text)
	case voice.SuggestedLocationEvent:
		fmt.Printf("visit > %s (%d)\n", e.Name, e.Year)
	case voice.MusicEvent:
		fmt.Printf("music > %s\n", e.TrackURL)
	}
}
