// Package app wires the voxguide subsystems into a running client.
//
// The App struct owns the full lifecycle: New constructs the audio pipeline,
// the session client, and the diagnostics endpoint; Run drives the session
// supervisor until the context is cancelled; Shutdown tears everything down
// in order.
//
// For testing, inject doubles via functional options (WithCaptureFactory,
// WithPlayer). When an option is not provided, New creates the real
// PortAudio-backed implementations.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wayfarelabs/voxguide/internal/config"
	"github.com/wayfarelabs/voxguide/internal/health"
	"github.com/wayfarelabs/voxguide/internal/observe"
	"github.com/wayfarelabs/voxguide/internal/view"
	"github.com/wayfarelabs/voxguide/internal/voice"
	"github.com/wayfarelabs/voxguide/pkg/audio/capture"
	"github.com/wayfarelabs/voxguide/pkg/audio/playback"
)

// diagReadTimeout bounds request reads on the diagnostics listener.
const diagReadTimeout = 10 * time.Second

// App owns all subsystem lifetimes and orchestrates the voxguide pipeline.
type App struct {
	cfg *config.Config

	newCapture voice.CaptureFactory
	player     voice.Player
	client     *voice.Client
	model      *view.Model
	sup        *Supervisor

	diag         *http.Server
	otelShutdown func(context.Context) error

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCaptureFactory injects a capture factory instead of the PortAudio mic.
func WithCaptureFactory(f voice.CaptureFactory) Option {
	return func(a *App) { a.newCapture = f }
}

// WithPlayer injects a playback implementation instead of the PortAudio sink.
func WithPlayer(p voice.Player) Option {
	return func(a *App) { a.player = p }
}

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: telemetry providers, the audio pipeline, the session client,
// the view model, and the diagnostics server are all ready when New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return nil, err
	}
	a.otelShutdown = shutdown

	// ── 2. Audio pipeline ────────────────────────────────────────────────
	if a.player == nil {
		a.player = playback.New(&playback.PortAudioSink{})
	}
	if a.newCapture == nil {
		capCfg := capture.Config{
			VoiceThreshold: cfg.Capture.VoiceThreshold,
			VoiceCooldown:  cfg.Capture.VoiceCooldown(),
			LevelInterval:  cfg.Capture.LevelInterval(),
			FrameBuffer:    cfg.Capture.FrameBuffer,
		}
		a.newCapture = func() voice.Capture {
			return capture.New(&capture.PortAudioDevice{}, capCfg)
		}
	}

	// ── 3. Session client + view model ───────────────────────────────────
	a.client = voice.New(cfg.Endpoint, a.newCapture, a.player)
	a.model = view.New(a.client)
	a.closers = append(a.closers, func() error {
		a.model.Close()
		return nil
	})

	// ── 4. Session supervisor ────────────────────────────────────────────
	a.sup = NewSupervisor(a.client, cfg.Endpoint, cfg.FallbackEndpoints, SupervisorConfig{})

	// ── 5. Diagnostics endpoint ──────────────────────────────────────────
	if addr := cfg.Diagnostics.ListenAddr; addr != "" {
		a.diag = &http.Server{
			Addr:              addr,
			Handler:           a.diagHandler(),
			ReadHeaderTimeout: diagReadTimeout,
		}
	}

	return a, nil
}

// Model returns the presentation model mirroring the session state.
func (a *App) Model() *view.Model { return a.model }

// Client returns the underlying session client.
func (a *App) Client() *voice.Client { return a.client }

// diagHandler builds the diagnostics mux: health probes plus the Prometheus
// scrape endpoint, wrapped in the tracing middleware.
func (a *App) diagHandler() http.Handler {
	mux := http.NewServeMux()

	h := health.New(health.Checker{
		Name: "session",
		Check: func(context.Context) error {
			if a.client.Status() == voice.StatusError {
				return errors.New("session in error state")
			}
			return nil
		},
	})
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(observe.DefaultMetrics())(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the diagnostics listener and drives the session supervisor until
// ctx is cancelled or the session ends cleanly.
func (a *App) Run(ctx context.Context) error {
	if a.diag != nil {
		go func() {
			slog.Info("diagnostics listening", "addr", a.diag.Addr)
			if err := a.diag.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("diagnostics server error", "err", err)
			}
		}()
	}

	return a.sup.Run(ctx)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// End the session first so playback and capture release the device.
		a.client.Disconnect()

		if a.diag != nil {
			if err := a.diag.Shutdown(ctx); err != nil {
				slog.Warn("diagnostics shutdown error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		if a.otelShutdown != nil {
			if err := a.otelShutdown(ctx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
